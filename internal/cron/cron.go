// Package cron triggers scheduled library scans on a per-library cron
// expression, replacing the teacher's hand-rolled
// internal/scheduler.Scheduler ticker loop with
// github.com/robfig/cron/v3 (also a direct dependency of
// alexander-bruun/magi's comic indexer) so each library can carry its
// own schedule instead of one fixed global interval.
package cron

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ScanTrigger is called when a library's schedule fires.
type ScanTrigger func(libraryPath string)

// LibrarySchedule pairs a library path with the cron expression that
// governs it.
type LibrarySchedule struct {
	LibraryPath string
	Expression  string
}

// Scheduler wraps a robfig/cron/v3 Cron instance, registering one
// entry per library schedule.
type Scheduler struct {
	c       *cron.Cron
	trigger ScanTrigger
	log     *logrus.Entry
}

// New builds a Scheduler that calls trigger when any registered
// schedule fires.
func New(trigger ScanTrigger) *Scheduler {
	return &Scheduler{
		c:       cron.New(),
		trigger: trigger,
		log:     logrus.WithField("component", "cron"),
	}
}

// Register adds a schedule; invalid cron expressions are logged and
// skipped rather than failing startup, since one bad schedule should
// not take down scans for every other library.
func (s *Scheduler) Register(sched LibrarySchedule) {
	path := sched.LibraryPath
	_, err := s.c.AddFunc(sched.Expression, func() {
		s.log.WithField("library_path", path).Info("scheduled scan due")
		s.trigger(path)
	})
	if err != nil {
		s.log.WithError(err).WithField("library_path", path).Warn("invalid cron expression, schedule skipped")
	}
}

// Start begins running registered schedules in the background.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the scheduler and waits for any running job functions to
// return.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}
