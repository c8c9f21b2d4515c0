// Package jobs runs the background work of the coordinator: the per-alert
// escalation deadlines and the periodic sweeps that back them up.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/logger"
)

// Expirer performs the lock-guarded pending to expired transition
type Expirer interface {
	Expire(ctx context.Context, alertID string) (bool, error)
	PendingAlerts(ctx context.Context) ([]database.Alert, error)
	Deadline(alert *database.Alert) time.Time
}

type escalationEntry struct {
	timer    *time.Timer
	deadline time.Time
}

// EscalationScheduler keeps one timer per pending alert. Timers are only a
// trigger: the expirer re-checks the alert under its lock, so a timer racing
// an accept or a cancel resolves to whichever took the lock first.
type EscalationScheduler struct {
	expirer Expirer

	mu      sync.Mutex
	entries map[string]*escalationEntry
	stopped bool
	inWork  sync.WaitGroup
}

// NewEscalationScheduler creates a scheduler that expires alerts through expirer
func NewEscalationScheduler(expirer Expirer) *EscalationScheduler {
	return &EscalationScheduler{
		expirer: expirer,
		entries: make(map[string]*escalationEntry),
	}
}

// Arm schedules the alert's expiry at deadline, replacing any earlier timer.
// A deadline in the past fires immediately.
func (s *EscalationScheduler) Arm(alertID string, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.entries[alertID]; ok {
		old.timer.Stop()
	}

	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}
	entry := &escalationEntry{deadline: deadline}
	entry.timer = time.AfterFunc(delay, func() { s.fire(alertID, entry) })
	s.entries[alertID] = entry
}

// Cancel drops the alert's timer if one is armed
func (s *EscalationScheduler) Cancel(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[alertID]; ok {
		entry.timer.Stop()
		delete(s.entries, alertID)
	}
}

// Armed returns the number of alerts with a live timer
func (s *EscalationScheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// DeadlineOf returns the armed deadline of an alert
func (s *EscalationScheduler) DeadlineOf(alertID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[alertID]
	if !ok {
		return time.Time{}, false
	}
	return entry.deadline, true
}

func (s *EscalationScheduler) fire(alertID string, entry *escalationEntry) {
	s.mu.Lock()
	if s.stopped || s.entries[alertID] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.entries, alertID)
	s.inWork.Add(1)
	s.mu.Unlock()
	defer s.inWork.Done()

	ctx := logger.WithKV(context.Background(), "job", "escalation", "alert_id", alertID)
	expired, err := s.expirer.Expire(ctx, alertID)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to expire alert", "error", err)
		return
	}
	if expired {
		logger.DebugKV(ctx, "Escalation deadline reached")
	}
}

// Recover re-arms every pending alert from its stored creation time. Alerts
// whose window already elapsed while the process was down are expired
// before Recover returns.
func (s *EscalationScheduler) Recover(ctx context.Context) (armed int, expired int, err error) {
	pending, err := s.expirer.PendingAlerts(ctx)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now()
	for i := range pending {
		alert := &pending[i]
		deadline := s.expirer.Deadline(alert)
		if !now.Before(deadline) {
			ok, err := s.expirer.Expire(ctx, alert.ID)
			if err != nil {
				logger.ErrorKV(ctx, "Failed to expire overdue alert", "alert_id", alert.ID, "error", err)
				continue
			}
			if ok {
				expired++
			}
			continue
		}
		s.Arm(alert.ID, deadline)
		armed++
	}
	logger.InfoKV(ctx, "Escalation timers recovered", "armed", armed, "expired", expired)
	return armed, expired, nil
}

// Sweep expires pending alerts whose deadline has passed. It backs up the
// timers against clock jumps and lost callbacks.
func (s *EscalationScheduler) Sweep(ctx context.Context) (int, error) {
	pending, err := s.expirer.PendingAlerts(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	expired := 0
	for i := range pending {
		alert := &pending[i]
		if now.Before(s.expirer.Deadline(alert)) {
			continue
		}
		ok, err := s.expirer.Expire(ctx, alert.ID)
		if err != nil {
			logger.ErrorKV(ctx, "Sweep failed to expire alert", "alert_id", alert.ID, "error", err)
			continue
		}
		if ok {
			s.Cancel(alert.ID)
			expired++
		}
	}
	return expired, nil
}

// Start runs Sweep every interval until stop is closed
func (s *EscalationScheduler) Start(interval time.Duration, stop <-chan struct{}) {
	ctx := logger.WithKV(context.Background(), "job", "escalation-sweep")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			expired, err := s.Sweep(ctx)
			if err != nil {
				logger.ErrorKV(ctx, "Escalation sweep error", "error", err)
			} else if expired > 0 {
				logger.Infof(ctx, "Escalation sweep: expired %d alerts", expired)
			}
		case <-stop:
			logger.InfoKV(ctx, "Escalation sweep stopped")
			return
		}
	}
}

// Stop cancels every timer and waits for callbacks already running
func (s *EscalationScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, entry := range s.entries {
		entry.timer.Stop()
		delete(s.entries, id)
	}
	s.mu.Unlock()
	s.inWork.Wait()
}
