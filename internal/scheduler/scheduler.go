// Package scheduler owns the recurring execution of persisted queries: it
// arms one cron entry per fid, runs the query-to-grid pipeline on each
// firing, and tears schedules down when their target grid disappears.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/plotly/falcon/internal/domain"
	"github.com/plotly/falcon/internal/schedule"
)

// Deps carries everything a Scheduler needs.
type Deps struct {
	Queries            domain.QueryRepository
	Connections        domain.ConnectionRepository
	Credentials        domain.CredentialResolver
	Gateway            domain.DataSourceGateway
	Grid               domain.GridClient
	MinRefreshInterval int64
	Logger             *slog.Logger
}

// job is one armed schedule.
type job struct {
	entryID  cron.EntryID
	cronExpr string
	running  bool
}

// Scheduler maps fids to cron entries. All state transitions happen under mu;
// the pipeline itself runs outside it so long queries never block scheduling.
type Scheduler struct {
	cron   *cron.Cron
	deps   Deps
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// New creates a stopped scheduler. Call Start once wiring is complete.
func New(deps Deps) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		cron:   cron.New(cron.WithParser(schedule.Parser)),
		deps:   deps,
		logger: logger.With("component", "scheduler"),
		jobs:   make(map[string]*job),
	}
}

// Start begins firing armed entries.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// ScheduleQuery validates, persists, and arms a definition. Scheduling an fid
// that already has a timer is a full replacement: the old entry is removed
// and the stored record is overwritten. The next firing time is computed and
// persisted before this returns, so readers of the store never observe an
// armed query without one.
func (s *Scheduler) ScheduleQuery(ctx context.Context, def *domain.QueryDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	cronExpr, err := schedule.Resolve(def, s.deps.MinRefreshInterval)
	if err != nil {
		return err
	}
	next, err := schedule.NextAfter(cronExpr, time.Now())
	if err != nil {
		return err
	}
	def.NextScheduledAt = next.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deps.Queries.Save(def); err != nil {
		return err
	}

	if old, ok := s.jobs[def.Fid]; ok {
		s.cron.Remove(old.entryID)
		delete(s.jobs, def.Fid)
	}

	fid := def.Fid
	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.fire(fid)
	})
	if err != nil {
		return domain.ErrInvalidSchedule("invalid cron expression %q: %v", cronExpr, err)
	}
	s.jobs[fid] = &job{entryID: entryID, cronExpr: cronExpr}

	s.logger.Info("scheduled query",
		"fid", fid,
		"cron", cronExpr,
		"nextScheduledAt", def.NextScheduledAt,
	)
	return nil
}

// ClearQuery disarms the fid's timer. The stored definition is untouched and
// clearing an unknown fid is a no-op.
func (s *Scheduler) ClearQuery(fid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(fid)
}

func (s *Scheduler) clearLocked(fid string) {
	if j, ok := s.jobs[fid]; ok {
		s.cron.Remove(j.entryID)
		delete(s.jobs, fid)
		s.logger.Info("cleared query schedule", "fid", fid)
	}
}

// ClearQueries disarms every timer.
func (s *Scheduler) ClearQueries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fid := range s.jobs {
		s.clearLocked(fid)
	}
}

// Scheduled reports whether the fid currently has an armed timer.
func (s *Scheduler) Scheduled(fid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[fid]
	return ok
}

// LoadQueries arms every persisted definition. A definition that fails to
// schedule is logged and skipped; one bad record must not keep the rest from
// running.
func (s *Scheduler) LoadQueries(ctx context.Context) error {
	defs, err := s.deps.Queries.GetAll()
	if err != nil {
		return err
	}
	for i := range defs {
		def := defs[i]
		if err := s.ScheduleQuery(ctx, &def); err != nil {
			s.logger.Warn("skipping stored query", "fid", def.Fid, "error", err)
		}
	}
	s.logger.Info("loaded stored queries", "count", len(defs))
	return nil
}

// fire is the cron callback for one fid. Overlap control happens here: if
// the previous run of this fid is still in flight, the firing is skipped
// without touching the stored record.
func (s *Scheduler) fire(fid string) {
	s.mu.Lock()
	j, ok := s.jobs[fid]
	if !ok {
		s.mu.Unlock()
		return
	}
	if j.running {
		s.mu.Unlock()
		s.logger.Warn("skipping run, previous execution still in flight", "fid", fid)
		return
	}
	j.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		// The job may have been replaced mid-run; only release our own flag.
		if cur, ok := s.jobs[fid]; ok && cur == j {
			cur.running = false
		}
		s.mu.Unlock()
	}()

	if err := s.RunJob(context.Background(), fid); err != nil {
		s.logger.Error("query run failed", "fid", fid, "error", err)
	}
	s.advanceNextScheduledAt(fid, j.cronExpr)
}

// RunJob executes the full pipeline for one fid: mark running, resolve
// credentials, run the query, push the result into the grid, and record the
// outcome. It is also the immediate-run entry point for the HTTP layer.
func (s *Scheduler) RunJob(ctx context.Context, fid string) error {
	def, err := s.deps.Queries.Get(fid)
	if err != nil {
		return err
	}
	if def == nil {
		// Stored record is gone but a timer survived; disarm it.
		s.ClearQuery(fid)
		return domain.ErrNotFound("no query registered for fid %s", fid)
	}

	startedAt := time.Now()
	s.recordExecution(fid, func(d *domain.QueryDefinition) {
		d.LastExecution = &domain.Execution{
			Status:    domain.ExecutionStatusRunning,
			StartedAt: startedAt.UnixMilli(),
		}
	})

	result, uids, runErr := s.execute(ctx, def)

	if errors.Is(runErr, domain.ErrGridDeleted) {
		// Self-heal: the target grid is gone, so the schedule has nothing
		// left to feed. Remove both the timer and the stored record without
		// recording a failure.
		s.logger.Info("target grid deleted upstream, removing query", "fid", fid)
		s.ClearQuery(fid)
		if err := s.deps.Queries.Delete(fid); err != nil {
			return err
		}
		return nil
	}

	completedAt := time.Now()
	s.recordExecution(fid, func(d *domain.QueryDefinition) {
		exec := &domain.Execution{
			StartedAt:   startedAt.UnixMilli(),
			CompletedAt: completedAt.UnixMilli(),
			Duration:    int64(completedAt.Sub(startedAt).Seconds()),
		}
		if runErr != nil {
			exec.Status = domain.ExecutionStatusFailed
			exec.ErrorMessage = runErr.Error()
		} else {
			exec.Status = domain.ExecutionStatusOK
			exec.RowCount = int64(len(result.Rows))
			d.UIDs = uids
		}
		d.LastExecution = exec
	})

	return runErr
}

// execute runs the query and pushes its result, returning the reconciled
// column uids on success.
func (s *Scheduler) execute(ctx context.Context, def *domain.QueryDefinition) (*domain.QueryResult, []string, error) {
	creds, err := s.deps.Credentials.Resolve(def.Requestor)
	if err != nil {
		return nil, nil, err
	}
	if !creds.Authenticated() {
		return nil, nil, domain.ErrUnauthenticated(
			"Attempting to update grid %s but the authentication credentials for the user %q do not exist.",
			def.Fid, def.Requestor,
		)
	}

	conn, err := s.deps.Connections.Get(def.ConnectionID)
	if err != nil {
		return nil, nil, err
	}
	if conn == nil {
		return nil, nil, domain.ErrNotFound("connection %s does not exist", def.ConnectionID)
	}

	result, err := s.deps.Gateway.Query(ctx, def.Query, conn)
	if err != nil {
		return nil, nil, &domain.QueryExecutionError{Err: err}
	}

	uids, err := s.deps.Grid.UpdateGrid(ctx, result, def.Fid, def.Requestor)
	if err != nil {
		return nil, nil, err
	}
	return result, uids, nil
}

// recordExecution re-reads the stored definition, applies the mutation, and
// writes it back. Re-reading instead of holding the in-memory copy keeps a
// long run from clobbering a replacement saved while it was executing. A
// record deleted mid-run stays deleted.
func (s *Scheduler) recordExecution(fid string, mutate func(*domain.QueryDefinition)) {
	def, err := s.deps.Queries.Get(fid)
	if err != nil {
		s.logger.Error("reading query for execution record", "fid", fid, "error", err)
		return
	}
	if def == nil {
		return
	}
	mutate(def)
	if err := s.deps.Queries.Save(def); err != nil {
		s.logger.Error("persisting execution record", "fid", fid, "error", err)
	}
}

// advanceNextScheduledAt refreshes the stored next-firing time after a run.
func (s *Scheduler) advanceNextScheduledAt(fid, cronExpr string) {
	next, err := schedule.NextAfter(cronExpr, time.Now())
	if err != nil {
		return
	}
	s.recordExecution(fid, func(d *domain.QueryDefinition) {
		d.NextScheduledAt = next.UnixMilli()
	})
}
