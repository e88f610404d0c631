package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Abandoner moves idle active sessions into the abandoned state.
type Abandoner interface {
	Abandon(ctx context.Context, before time.Time, limit int) (int, error)
}

var _ CronJob = (*SessionSweepTask)(nil)

// SessionSweepTask abandons sessions without activity for longer than the inactivity threshold.
type SessionSweepTask struct {
	sessions   Abandoner
	schedule   string
	inactivity time.Duration
	batch      int
	timeout    time.Duration
	clock      func() time.Time
}

func NewSessionSweepTask(sessions Abandoner, schedule string, inactivity time.Duration, batch int) *SessionSweepTask {
	if batch <= 0 {
		batch = 500
	}

	return &SessionSweepTask{
		sessions:   sessions,
		schedule:   schedule,
		inactivity: inactivity,
		batch:      batch,
		timeout:    time.Minute,
		clock:      time.Now,
	}
}

func (s *SessionSweepTask) ID() string {
	return "session_sweep"
}

func (s *SessionSweepTask) Schedule() string {
	return s.schedule
}

func (s *SessionSweepTask) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil {
		logrus.Errorf("session sweep failed: %v", err)
	}
}

// Sweep abandons idle sessions batch by batch and returns the total moved.
func (s *SessionSweepTask) Sweep(ctx context.Context) (int, error) {
	before := s.clock().Add(-s.inactivity)

	total := 0
	for {
		n, err := s.sessions.Abandon(ctx, before, s.batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.batch {
			break
		}
	}

	if total > 0 {
		logrus.Infof("session sweep abandoned %d sessions idle since %s", total, before.Format(time.RFC3339))
	}

	return total, nil
}
