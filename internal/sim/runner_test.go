package sim

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/yndnr/entmesh-go/internal/server/config"
	"github.com/yndnr/entmesh-go/internal/storage/memory"
	"github.com/yndnr/entmesh-go/internal/telemetry/logger"
	"github.com/yndnr/entmesh-go/internal/telemetry/metric"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: io.Discard})
	if err != nil {
		t.Fatalf("logger.New() error = %v", err)
	}
	return log
}

func runScenario(t *testing.T, cfg config.SimSection) *Report {
	t.Helper()

	runner := NewRunner(cfg,
		WithLogger(testLogger(t)),
		WithMetrics(metric.NewRegistry()),
		WithRegistry(memory.New()))

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return report
}

func sumTotals(totals map[string]uint64) uint64 {
	var sum uint64
	for _, v := range totals {
		sum += v
	}
	return sum
}

func TestRun_SingleClient(t *testing.T) {
	report := runScenario(t, config.SimSection{
		Clients:  1,
		Entities: 1,
		RunFor:   300 * time.Millisecond,
	})

	if report.Invocations == 0 {
		t.Fatal("scenario completed no invocations")
	}
	if report.Failures != 0 {
		t.Errorf("failures = %d, want 0", report.Failures)
	}
	if report.RunID == "" {
		t.Error("report should carry a run ID")
	}
	if report.OpsDispatched["INVOKE/ok"] == 0 {
		t.Error("dispatch counter snapshot missing INVOKE/ok")
	}

	// Each successful invocation added exactly 1. Invocations cut off
	// by the deadline may still have been applied, so the total can
	// run ahead of the success count but never behind it.
	if sum := sumTotals(report.Totals); sum < report.Invocations {
		t.Errorf("totals sum = %d, want >= %d invocations", sum, report.Invocations)
	}
}

func TestRun_ConcurrentClientsConverge(t *testing.T) {
	report := runScenario(t, config.SimSection{
		Clients:  8,
		Entities: 2,
		RunFor:   300 * time.Millisecond,
	})

	if report.Failures != 0 {
		t.Errorf("failures = %d, want 0", report.Failures)
	}
	if len(report.Totals) != 2 {
		t.Fatalf("totals for %d entities, want 2", len(report.Totals))
	}
	if sum := sumTotals(report.Totals); sum < report.Invocations {
		t.Errorf("totals sum = %d, want >= %d invocations", sum, report.Invocations)
	}
}

func TestRun_PassiveReplicaMatches(t *testing.T) {
	report := runScenario(t, config.SimSection{
		Clients:  4,
		Entities: 1,
		RunFor:   300 * time.Millisecond,
		Passive:  true,
	})

	if report.Invocations == 0 {
		t.Fatal("scenario completed no invocations")
	}
	if len(report.ReplicaTotals) != 1 {
		t.Fatalf("replica totals for %d entities, want 1", len(report.ReplicaTotals))
	}
	for name, total := range report.Totals {
		if replica := report.ReplicaTotals[name]; replica != total {
			t.Errorf("replica %s = %d, active = %d", name, replica, total)
		}
	}
}

func TestRun_RateLimit(t *testing.T) {
	report := runScenario(t, config.SimSection{
		Clients:       2,
		Entities:      1,
		RunFor:        500 * time.Millisecond,
		RatePerClient: 20,
	})

	if report.Failures != 0 {
		t.Errorf("failures = %d, want 0", report.Failures)
	}

	// 2 clients at 20/s for 0.5s, plus one initial burst token each.
	// Allow generous slack; the point is that the limiter bites.
	if report.Invocations > 60 {
		t.Errorf("invocations = %d, want rate-limited to well under 60", report.Invocations)
	}
}

func TestRun_ReconnectInjection(t *testing.T) {
	report := runScenario(t, config.SimSection{
		Clients:        2,
		Entities:       1,
		RunFor:         500 * time.Millisecond,
		ReconnectEvery: 100 * time.Millisecond,
	})

	if report.Reconnects == 0 {
		t.Error("no reconnects were injected")
	}
	if report.Failures != 0 {
		t.Errorf("failures = %d, want 0", report.Failures)
	}
}

func TestProcessStatuses(t *testing.T) {
	runner := NewRunner(config.SimSection{
		Clients:  1,
		Entities: 1,
		RunFor:   50 * time.Millisecond,
		Passive:  true,
	},
		WithLogger(testLogger(t)))

	if got := runner.ProcessStatuses(); len(got) != 0 {
		t.Errorf("statuses before run = %d, want 0", len(got))
	}

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	statuses := runner.ProcessStatuses()
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if statuses[0].Role != "active" || statuses[1].Role != "passive" {
		t.Errorf("roles = %s/%s, want active/passive", statuses[0].Role, statuses[1].Role)
	}
}
