package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/entmesh-go/internal/client"
	"github.com/yndnr/entmesh-go/internal/server/adminhttp"
	"github.com/yndnr/entmesh-go/internal/server/config"
	"github.com/yndnr/entmesh-go/internal/server/process"
	"github.com/yndnr/entmesh-go/internal/storage"
	"github.com/yndnr/entmesh-go/internal/telemetry/logger"
	"github.com/yndnr/entmesh-go/internal/telemetry/metric"
)

// setupTimeout bounds entity creation and the final read-back pass.
const setupTimeout = 30 * time.Second

// Runner executes one scripted scenario against a freshly built
// platform.
type Runner struct {
	cfg      config.SimSection
	runID    string
	log      logger.Logger
	metrics  *metric.Registry
	registry storage.Registry

	mu    sync.Mutex
	procs []procStatus
}

type procStatus struct {
	name   string
	role   string
	booted bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithMetrics sets the metric registry shared with the admin endpoint.
func WithMetrics(m *metric.Registry) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithRegistry persists entity records through the given registry.
func WithRegistry(registry storage.Registry) Option {
	return func(r *Runner) { r.registry = registry }
}

// NewRunner creates a scenario runner.
func NewRunner(cfg config.SimSection, opts ...Option) *Runner {
	r := &Runner{
		cfg:   cfg,
		runID: ulid.Make().String(),
		log:   logger.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "sim", "run", r.runID)
	return r
}

// RunID returns the identifier stamped on this runner's scenario.
func (r *Runner) RunID() string { return r.runID }

// Report summarizes one scenario run.
type Report struct {
	// RunID identifies the scenario run.
	RunID string

	// Invocations is the number of invocations that completed successfully.
	Invocations uint64

	// Failures is the number of invocations that completed with an error.
	Failures uint64

	// Reconnects is the number of injected client reconnects.
	Reconnects uint64

	// Elapsed is the wall-clock scenario duration.
	Elapsed time.Duration

	// Totals maps entity name to its final counter value.
	Totals map[string]uint64

	// ReplicaTotals maps entity name to the passive replica's value,
	// present only when a passive was attached.
	ReplicaTotals map[string]uint64

	// OpsDispatched is the dispatch counter snapshot keyed by
	// "type/outcome", taken from the metric registry.
	OpsDispatched map[string]uint64
}

// Run executes the scenario and blocks until every client finishes.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	started := time.Now()

	active := process.NewActive("active",
		process.WithServices(NewCounterService()),
		process.WithRegistry(r.registry),
		process.WithLogger(r.log),
		process.WithMetrics(r.metrics))
	if err := active.Restore(); err != nil {
		return nil, fmt.Errorf("sim: restore active: %w", err)
	}
	active.Start()
	defer active.Stop()
	r.addProc("active", "active")

	var passiveSvc *counterService
	if r.cfg.Passive {
		passiveSvc = &counterService{}
		passive := process.NewPassive("passive",
			process.WithServices(passiveSvc),
			process.WithLogger(r.log),
			process.WithMetrics(r.metrics))
		passive.Start()
		defer passive.Stop()
		active.AttachPassive(passive)
		r.addProc("passive", "passive")
	}

	names, err := r.createEntities(ctx, active)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if r.cfg.RunFor > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.RunFor)
		defer cancel()
	}

	var invocations, failures, reconnects atomic.Uint64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Clients; i++ {
		wg.Add(1)
		go func(clientIdx int) {
			defer wg.Done()
			r.clientLoop(runCtx, active, names[clientIdx%len(names)],
				&invocations, &failures, &reconnects)
		}(i)
	}
	wg.Wait()

	report := &Report{
		RunID:       r.runID,
		Invocations: invocations.Load(),
		Failures:    failures.Load(),
		Reconnects:  reconnects.Load(),
		Elapsed:     time.Since(started),
	}
	if r.metrics != nil {
		report.OpsDispatched, err = r.metrics.OperationCounts()
		if err != nil {
			return nil, fmt.Errorf("sim: gather metrics: %w", err)
		}
	}

	// The run deadline has usually expired by now; read the final
	// totals on a fresh context.
	readCtx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	report.Totals, err = r.readTotals(readCtx, active, names)
	if err != nil {
		return nil, err
	}
	if passiveSvc != nil {
		report.ReplicaTotals = replicaTotals(passiveSvc, names)
	}

	r.log.Info("scenario finished",
		"invocations", report.Invocations,
		"failures", report.Failures,
		"reconnects", report.Reconnects,
		"elapsed", report.Elapsed.String())
	return report, nil
}

// createEntities provisions the counter entities the clients target.
func (r *Runner) createEntities(ctx context.Context, active *process.Process) ([]string, error) {
	setupCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	conn := client.Connect(active, client.WithLogger(r.log))
	defer conn.Close(setupCtx)

	names := make([]string, r.cfg.Entities)
	for i := range names {
		names[i] = fmt.Sprintf("counter-%04d", i)
		if err := conn.CreateEntity(setupCtx, CounterClass, names[i], CounterVersion, nil); err != nil {
			return nil, fmt.Errorf("sim: create %s: %w", names[i], err)
		}
	}
	return names, nil
}

// clientLoop is one simulated client: fetch, invoke until the run
// context expires, release.
func (r *Runner) clientLoop(ctx context.Context, active *process.Process, entityName string, invocations, failures, reconnects *atomic.Uint64) {
	conn := client.Connect(active, client.WithLogger(r.log))

	closeCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), setupTimeout)
	}
	defer func() {
		cctx, cancel := closeCtx()
		defer cancel()
		conn.Close(cctx)
	}()

	endpoint, err := conn.FetchEntity(ctx, CounterClass, entityName, CounterVersion)
	if err != nil {
		if !isContextErr(err) {
			r.log.Error("fetch failed", "entity", entityName, "error", err)
			failures.Add(1)
		}
		return
	}

	limit := rate.Inf
	if r.cfg.RatePerClient > 0 {
		limit = rate.Limit(r.cfg.RatePerClient)
	}
	limiter := rate.NewLimiter(limit, 1)

	lastReconnect := time.Now()
	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		if r.cfg.ReconnectEvery > 0 && time.Since(lastReconnect) >= r.cfg.ReconnectEvery {
			if err := conn.Reconnect(ctx); err != nil {
				if !isContextErr(err) {
					r.log.Error("reconnect failed", "entity", entityName, "error", err)
					failures.Add(1)
				}
				break
			}
			reconnects.Add(1)
			lastReconnect = time.Now()
		}

		builder, err := endpoint.BeginInvoke()
		if err != nil {
			break
		}
		future, err := builder.Payload(EncodeAdd(1)).Invoke()
		if err != nil {
			break
		}
		if _, err := future.Get(ctx); err != nil {
			if !isContextErr(err) {
				failures.Add(1)
			}
			break
		}
		invocations.Add(1)
	}

	cctx, cancel := closeCtx()
	defer cancel()
	if err := endpoint.Close(cctx); err != nil {
		r.log.Warn("endpoint close failed", "entity", entityName, "error", err)
	}
}

// readTotals fetches every entity once more and reads its final value.
func (r *Runner) readTotals(ctx context.Context, active *process.Process, names []string) (map[string]uint64, error) {
	conn := client.Connect(active, client.WithLogger(r.log))
	defer conn.Close(ctx)

	totals := make(map[string]uint64, len(names))
	for _, name := range names {
		endpoint, err := conn.FetchEntity(ctx, CounterClass, name, CounterVersion)
		if err != nil {
			return nil, fmt.Errorf("sim: fetch %s: %w", name, err)
		}
		builder, err := endpoint.BeginInvoke()
		if err != nil {
			return nil, fmt.Errorf("sim: read %s: %w", name, err)
		}
		future, err := builder.Payload(EncodeGet()).Invoke()
		if err != nil {
			return nil, fmt.Errorf("sim: read %s: %w", name, err)
		}
		response, err := future.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("sim: read %s: %w", name, err)
		}
		total, err := DecodeTotal(response)
		if err != nil {
			return nil, err
		}
		totals[name] = total
		if err := endpoint.Close(ctx); err != nil {
			return nil, fmt.Errorf("sim: release %s: %w", name, err)
		}
	}
	return totals, nil
}

// replicaTotals snapshots the passive replicas created by the service.
// The counter streams its full value, so each replica maps 1:1 to one
// entity in creation order.
func replicaTotals(svc *counterService, names []string) map[string]uint64 {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	totals := make(map[string]uint64, len(svc.passives))
	for i, p := range svc.passives {
		if i < len(names) {
			totals[names[i]] = p.Value()
		}
	}
	return totals
}

func (r *Runner) addProc(name, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs = append(r.procs, procStatus{name: name, role: role, booted: true})
}

// ProcessStatuses implements adminhttp.StatusSource.
func (r *Runner) ProcessStatuses() []adminhttp.ProcessStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]adminhttp.ProcessStatus, 0, len(r.procs))
	for _, p := range r.procs {
		statuses = append(statuses, adminhttp.ProcessStatus{
			Name:   p.name,
			Role:   p.role,
			Booted: p.booted,
		})
	}
	return statuses
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
