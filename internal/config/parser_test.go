package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "standard seconds", input: "30s", expected: 30 * time.Second},
		{name: "standard minutes", input: "5m", expected: 5 * time.Minute},
		{name: "milliseconds", input: "500ms", expected: 500 * time.Millisecond},
		{name: "combined duration", input: "1h30m", expected: 90 * time.Minute},
		{name: "integer as seconds", input: "30", expected: 30 * time.Second},
		{name: "empty string", input: "", expected: 0},
		{name: "invalid format", input: "abc", wantErr: true},
		{name: "trailing garbage", input: "30x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationString(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDurationString(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationString(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseDurationString(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

const sampleYAML = `
name: smoke
baseUrl: http://shop.local:8080/
scenario:
  rate: 50
  timeUnit: 1s
  duration: 30
  preAllocatedVUs: 5
  maxVUs: 20
  gracefulStop: 5s
thresholds:
  http_req_duration: ["p(95) < 200ms"]
  errors: ["rate<0.01"]
shop:
  users: 10
  sendCoinProbability: 0
  items: [pen, cup]
  maxIdle: 0s
`

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML), "test.yaml")
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	ApplyDefaults(cfg)

	if cfg.Name != "smoke" {
		t.Errorf("Name = %q, want smoke", cfg.Name)
	}
	if cfg.Scenario.Rate != 50 {
		t.Errorf("Rate = %v, want 50", cfg.Scenario.Rate)
	}
	if cfg.Scenario.Duration.Std() != 30*time.Second {
		t.Errorf("Duration = %v, want 30s", cfg.Scenario.Duration)
	}
	if cfg.Scenario.Executor != ExecutorConstantArrivalRate {
		t.Errorf("Executor = %q, want default", cfg.Scenario.Executor)
	}
	if len(cfg.Thresholds) != 2 {
		t.Errorf("Thresholds = %v, want the two declared series only", cfg.Thresholds)
	}

	// An explicit zero probability survives defaulting.
	sc := cfg.ShopConfig()
	if sc.SendCoinProbability != 0 {
		t.Errorf("SendCoinProbability = %v, want 0", sc.SendCoinProbability)
	}
	if sc.BuyItemProbability != 0.2 {
		t.Errorf("BuyItemProbability = %v, want default 0.2", sc.BuyItemProbability)
	}
	if sc.MaxIdle != 0 {
		t.Errorf("MaxIdle = %v, want 0", sc.MaxIdle)
	}
	if len(sc.Items) != 2 {
		t.Errorf("Items = %v, want [pen cup]", sc.Items)
	}

	ec := cfg.ExecutorConfig()
	if ec.MaxVUs != 20 || ec.PreAllocatedVUs != 5 || ec.GracefulStop != 5*time.Second {
		t.Errorf("ExecutorConfig() = %+v", ec)
	}
	if err := ec.Validate(); err != nil {
		t.Errorf("ExecutorConfig().Validate() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestParseConfig_JSON(t *testing.T) {
	data := `{"baseUrl":"http://localhost:9000","scenario":{"rate":10,"duration":"1s"},"metrics":{"trendMode":"exact"}}`
	cfg, err := ParseConfig([]byte(data), "run.json")
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	ApplyDefaults(cfg)

	if cfg.Scenario.Duration.Std() != time.Second {
		t.Errorf("Duration = %v, want 1s", cfg.Scenario.Duration)
	}
	if got := cfg.MetricsConfig().TrendMode; got != "exact" {
		t.Errorf("TrendMode = %q, want exact", got)
	}
	if len(cfg.Thresholds) != len(DefaultThresholds()) {
		t.Errorf("Thresholds = %v, want defaults", cfg.Thresholds)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	if _, err := ParseConfig([]byte(`{"scenario":`), "bad.json"); err == nil {
		t.Error("expected JSON error")
	}
	if _, err := ParseConfig([]byte("scenario:\n  duration: soon\n"), "bad.yaml"); err == nil {
		t.Error("expected duration error")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merchload.yml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.BaseURL != "http://shop.local:8080/" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Scenario.Rate != 1000 || cfg.Scenario.Duration.Std() != 5*time.Minute {
		t.Errorf("scenario = %+v", cfg.Scenario)
	}
	if cfg.Scenario.PreAllocatedVUs != 100 || cfg.Scenario.MaxVUs != 1000 {
		t.Errorf("VUs = %d/%d, want 100/1000", cfg.Scenario.PreAllocatedVUs, cfg.Scenario.MaxVUs)
	}
	if cfg.HTTP.RequestTimeout.Std() != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.HTTP.RequestTimeout)
	}
	if got := cfg.Thresholds["http_req_duration"]; len(got) != 1 || got[0] != "p(99.99) < 50" {
		t.Errorf("http_req_duration thresholds = %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}

	// An explicitly empty thresholds map stays empty.
	cfg = &TestConfig{Thresholds: map[string][]string{}}
	ApplyDefaults(cfg)
	if len(cfg.Thresholds) != 0 {
		t.Errorf("Thresholds = %v, want empty", cfg.Thresholds)
	}

	// A small maxVUs caps the preallocation default.
	cfg = &TestConfig{Scenario: ScenarioConfig{MaxVUs: 10}}
	ApplyDefaults(cfg)
	if cfg.Scenario.PreAllocatedVUs != 10 {
		t.Errorf("PreAllocatedVUs = %d, want 10", cfg.Scenario.PreAllocatedVUs)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvBaseURL:  "http://staging:8080",
		EnvRate:     "250",
		EnvDuration: "2m",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := &TestConfig{BaseURL: "http://file:8080"}
	if err := ApplyEnv(cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}
	if cfg.BaseURL != "http://staging:8080" || cfg.Scenario.Rate != 250 || cfg.Scenario.Duration.Std() != 2*time.Minute {
		t.Errorf("ApplyEnv() = %+v", cfg)
	}

	env[EnvRate] = "fast"
	if err := ApplyEnv(cfg, lookup); err == nil || !strings.Contains(err.Error(), EnvRate) {
		t.Errorf("ApplyEnv() error = %v, want mention of %s", err, EnvRate)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.BaseURL = "ftp://shop"
	cfg.Scenario.Rate = 0
	cfg.Scenario.PreAllocatedVUs = 2000
	cfg.Thresholds["errors"] = []string{"rate<<1"}
	bad := 1.5
	cfg.Shop.BuyItemProbability = &bad
	cfg.Shop.Items = []string{"yacht"}
	cfg.Metrics.TrendMode = "tdigest"
	cfg.Telemetry.Exporter = "otlp-grpc"

	err := cfg.Validate()
	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %v, want *ValidationErrors", err)
	}

	want := []string{
		"baseUrl",
		"scenario.rate",
		"scenario.preAllocatedVUs",
		"thresholds.errors[0]",
		"shop.buyItemProbability",
		"shop.items[0]",
		"metrics.trendMode",
		"telemetry.endpoint",
	}
	fields := make(map[string]bool)
	for _, e := range verrs.Errors {
		fields[e.Field] = true
	}
	for _, f := range want {
		if !fields[f] {
			t.Errorf("missing validation error for %s; got %v", f, verrs.Error())
		}
	}
}

func TestDuration_JSONRoundTrip(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1.5s"` {
		t.Errorf("MarshalJSON() = %s", b)
	}
	var back Duration
	if err := back.UnmarshalJSON(b); err != nil || back != d {
		t.Errorf("UnmarshalJSON() = %v, %v", back, err)
	}
}
