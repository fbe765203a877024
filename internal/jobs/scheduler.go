// Package jobs schedules the background maintenance tasks.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Job is a named task with a standard five-field cron schedule (or a @descriptor).
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler owns the registered jobs and the underlying cron runner.
type Scheduler struct {
	cron *cron.Cron
	jobs map[string]Job
}

func NewScheduler() *Scheduler {
	logger := cron.PrintfLogger(&log.Logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		jobs: make(map[string]Job),
	}
}

// Register validates the schedule and adds the job. Names are case-insensitive.
func (s *Scheduler) Register(j Job) error {
	name := strings.ToLower(strings.TrimSpace(j.Name))
	if name == "" || j.Run == nil {
		return fmt.Errorf("job %q: name and run function are required", j.Name)
	}
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}
	if _, err := cron.ParseStandard(j.Schedule); err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", name, j.Schedule, err)
	}
	j.Name = name
	s.jobs[name] = j
	return nil
}

// Names returns the registered job names, sorted.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunOnce executes a single job immediately.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	j, ok := s.jobs[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unknown job %q (known: %s)", name, strings.Join(s.Names(), ", "))
	}
	return s.execute(ctx, j)
}

func (s *Scheduler) execute(ctx context.Context, j Job) error {
	start := time.Now()
	err := j.Run(ctx)
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("job", j.Name).Dur("took", time.Since(start)).Msg("job finished")
	return err
}

// Run starts every registered job and blocks until ctx is done, then waits
// for running jobs to complete.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, name := range s.Names() {
		j := s.jobs[name]
		if _, err := s.cron.AddFunc(j.Schedule, func() { _ = s.execute(ctx, j) }); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		log.Info().Str("job", name).Str("schedule", j.Schedule).Msg("job scheduled")
	}
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
	return nil
}
