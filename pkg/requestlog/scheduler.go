package requestlog

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs Archive once a day at a fixed local hour.
type Scheduler struct {
	logger        *Logger
	hour          int
	olderThanDays int
	log           *slog.Logger
}

// NewScheduler creates a Scheduler archiving partitions older than olderThanDays
// every day at hour:00 local time.
func NewScheduler(l *Logger, hour, olderThanDays int) *Scheduler {
	if hour < 0 || hour > 23 {
		hour = 2
	}
	return &Scheduler{
		logger:        l,
		hour:          hour,
		olderThanDays: olderThanDays,
		log:           l.log.With("job", "archive"),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := s.logger.now()
		wait := nextRun(now, s.hour).Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.log.Info("running log archive job", "older_than_days", s.olderThanDays)
		n, err := s.logger.Archive(s.olderThanDays)
		if err != nil {
			s.log.Error("log archive job failed", "error", err)
			continue
		}
		s.log.Info("log archive job done", "archived", n)
	}
}

// nextRun returns the first hour:00 strictly after now, in now's location.
func nextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
