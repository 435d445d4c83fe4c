package output

import (
	"testing"
)

func TestColorSchemes(t *testing.T) {
	defaultScheme := DefaultColorScheme()
	for i, c := range defaultScheme.all() {
		if c == nil {
			t.Errorf("DefaultColorScheme color %d should not be nil", i)
		}
	}

	noColor := NoColorScheme()
	if got := noColor.Fail.Sprint("x"); got != "x" {
		t.Errorf("NoColorScheme should not emit escapes, got %q", got)
	}
}

func TestRatioColor(t *testing.T) {
	s := DefaultColorScheme()
	tests := []struct {
		ratio float64
		want  interface{}
	}{
		{1.0, s.Pass},
		{0.99, s.Pass},
		{0.97, s.Warn},
		{0.5, s.Fail},
	}
	for _, tt := range tests {
		if got := s.ratio(tt.ratio); got != tt.want {
			t.Errorf("ratio(%v) picked the wrong color", tt.ratio)
		}
	}
}

func TestIcons(t *testing.T) {
	tests := []struct {
		name string
		fn   func(bool) string
		want string
	}{
		{"success", SuccessIcon, "✓"},
		{"error", ErrorIcon, "✗"},
		{"warning", WarningIcon, "⚠"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(true); got != tt.want {
				t.Errorf("%s icon = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}
