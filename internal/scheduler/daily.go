package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kjannette/hrp-allocator/internal/logger"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

type DailyConfig struct {
	Hour       int // wall-clock hour of the daily run, default 22
	Minute     int
	Location   *time.Location
	RunTimeout time.Duration // per-run deadline, default 5m
	Now        func() time.Time
}

// DailyScheduler runs a job once at start and then every day at a fixed
// wall-clock time.
type DailyScheduler struct {
	job Job
	cfg DailyConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewDailyScheduler(job Job, cfg DailyConfig) *DailyScheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DailyScheduler{job: job, cfg: cfg}
}

// NextRun returns the first scheduled instant strictly after now.
func (s *DailyScheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.cfg.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.Hour, s.cfg.Minute, 0, 0, s.cfg.Location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.cfg.Hour, s.cfg.Minute, 0, 0, s.cfg.Location)
	}
	return next
}

func (s *DailyScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Info("[SCHEDULER] Already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runOnce("startup")

		for {
			now := s.cfg.Now()
			next := s.NextRun(now)
			logger.Info("[SCHEDULER] Next run at %s", next.Format(time.RFC3339))
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-stopCh:
				timer.Stop()
				return
			case <-timer.C:
				s.runOnce("daily")
			}
		}
	}()

	logger.Info("[SCHEDULER] Started (daily at %02d:%02d %s)", s.cfg.Hour, s.cfg.Minute, s.cfg.Location)
}

// Stop halts the loop and waits for an in-flight run to finish.
func (s *DailyScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("[SCHEDULER] Stopped")
}

func (s *DailyScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow triggers the job outside the normal schedule.
func (s *DailyScheduler) RunNow(ctx context.Context) error {
	logger.Info("[SCHEDULER] Manual run triggered")
	return s.job(ctx)
}

func (s *DailyScheduler) runOnce(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	if err := s.job(ctx); err != nil {
		logger.Error("[SCHEDULER] %s run failed after %s: %v", trigger, time.Since(start).Round(time.Millisecond), err)
		return
	}
	logger.Info("[SCHEDULER] %s run completed in %s", trigger, time.Since(start).Round(time.Millisecond))
}
