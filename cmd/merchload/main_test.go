package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/wesleyorama2/merchload/internal/engine"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"thresholds", engine.ErrThresholdsFailed, 99},
		{"wrapped thresholds", fmt.Errorf("run: %w", engine.ErrThresholdsFailed), 99},
		{"other", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
