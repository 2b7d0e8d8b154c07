// Package scheduler runs cron-scheduled folder rescans.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wesm/msglist/internal/config"
)

var (
	// ErrStopped is returned by Trigger after Stop.
	ErrStopped = errors.New("scheduler is stopped")
	// ErrNotScheduled is returned by Trigger for an unknown folder.
	ErrNotScheduled = errors.New("folder is not scheduled")
	// ErrBusy is returned by Trigger while the folder's rescan runs.
	ErrBusy = errors.New("rescan already running")
)

// RescanFunc rescans the named folder. ctx is cancelled on Stop.
type RescanFunc func(ctx context.Context, folder string) error

// FolderStatus is the schedule state of one folder.
type FolderStatus struct {
	Folder    string
	Schedule  string
	Running   bool
	LastRun   time.Time
	NextRun   time.Time
	LastError string
}

type job struct {
	entry    cron.EntryID
	schedule string
	running  bool
	lastRun  time.Time
	lastErr  error
}

// Scheduler triggers folder rescans on cron schedules. A folder never has
// two rescans in flight.
type Scheduler struct {
	cron   *cron.Cron
	rescan RescanFunc
	logger *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// New creates a Scheduler calling rescan for due folders.
func New(rescan RescanFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		rescan: rescan,
		logger: slog.Default(),
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddFolder schedules rescans of name, replacing any earlier schedule.
func (s *Scheduler) AddFolder(name, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.cron.AddFunc(cronExpr, func() {
		if s.begin(name) {
			s.run(name)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	j := s.jobs[name]
	if j == nil {
		j = &job{}
		s.jobs[name] = j
	} else {
		s.cron.Remove(j.entry)
	}
	j.entry = entry
	j.schedule = cronExpr
	s.logger.Info("scheduled rescan", "folder", name, "schedule", cronExpr,
		"next_run", s.cron.Entry(entry).Next)
	return nil
}

// AddFoldersFromConfig schedules every folder with a refresh schedule and
// returns how many were scheduled along with the failures.
func (s *Scheduler) AddFoldersFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	scheduled := 0
	for _, f := range cfg.ScheduledFolders() {
		if err := s.AddFolder(f.Name, f.RefreshSchedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		scheduled++
	}
	return scheduled, errs
}

// RemoveFolder drops the schedule of name. A running rescan finishes.
func (s *Scheduler) RemoveFolder(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		s.cron.Remove(j.entry)
		delete(s.jobs, name)
		s.logger.Info("removed schedule", "folder", name)
	}
}

// IsScheduled reports whether name has a schedule.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// Start begins executing scheduled rescans.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "folders", n)
}

// IsRunning reports whether the scheduler was started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// Stop halts the schedule and cancels running rescans. The returned
// context is done once every rescan has returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, done := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		done()
	}()
	s.logger.Info("scheduler stopping")
	return ctx
}

// Trigger starts a rescan of name outside its schedule.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotScheduled)
	}
	if j.running {
		return fmt.Errorf("%s: %w", name, ErrBusy)
	}
	j.running = true
	s.wg.Add(1)
	go s.run(name)
	return nil
}

// begin marks name running unless it already is or the scheduler stopped.
func (s *Scheduler) begin(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if s.stopped || !ok || j.running {
		return false
	}
	j.running = true
	s.wg.Add(1)
	return true
}

// run performs one rescan. The caller has marked the job running and
// added to wg.
func (s *Scheduler) run(name string) {
	defer s.wg.Done()

	start := time.Now()
	err := s.rescan(s.ctx, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return
	}
	j.running = false
	j.lastErr = err
	if err != nil {
		s.logger.Error("scheduled rescan failed", "folder", name,
			"duration", time.Since(start), "error", err)
		return
	}
	j.lastRun = time.Now()
	s.logger.Debug("scheduled rescan completed", "folder", name, "duration", time.Since(start))
}

// Status returns the state of every scheduled folder, sorted by name.
func (s *Scheduler) Status() []FolderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]FolderStatus, 0, len(s.jobs))
	for name, j := range s.jobs {
		st := FolderStatus{
			Folder:   name,
			Schedule: j.schedule,
			Running:  j.running,
			LastRun:  j.lastRun,
			NextRun:  s.cron.Entry(j.entry).Next,
		}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Folder < out[b].Folder })
	return out
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
