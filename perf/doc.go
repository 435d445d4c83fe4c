// Package perf runs merch shop load tests from Go code.
//
// It wraps the same engine the merchload CLI uses: a constant arrival rate
// executor that starts iterations on a fixed schedule, drops ticks when no
// virtual user is free, and evaluates k6-style thresholds at the end.
//
// # Quick Start
//
//	cfg, err := perf.LoadConfig("load.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	runner, err := perf.NewRunner(cfg, perf.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	summary, err := runner.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("iterations: %d dropped: %d\n",
//	    summary.Executor.Iterations, summary.Executor.Dropped)
//	if errors.Is(summary.Err(), perf.ErrThresholdsFailed) {
//	    os.Exit(99)
//	}
//
// # Programmatic Configuration
//
// A zero Config is valid; every field has a default:
//
//	cfg := &perf.Config{BaseURL: "http://localhost:8080"}
//	cfg.Scenario.Rate = 200
//	cfg.Scenario.Duration = perf.Duration(time.Minute)
//	cfg.Thresholds = map[string][]string{
//	    "http_req_duration": {"p(95)<200"},
//	    "errors":            {"rate<0.001"},
//	}
//
// # Live Progress
//
//	perf.WithProgress(func(p perf.Progress) {
//	    fmt.Printf("%.0f%% %d iterations\n", p.Progress*100, p.Iterations)
//	}, time.Second)
package perf
