package jobs

import (
	"context"
	"time"

	"github.com/ideavolution/coordinator/internal/logger"
)

// StaleCanceller cancels accepted alerts that never got a driver
type StaleCanceller interface {
	CancelStaleAccepted(ctx context.Context, maxWait time.Duration) (int, error)
}

// AcceptedMonitor checks for accepted alerts that have waited too long for a
// driver and cancels them. A zero maxWait disables it.
type AcceptedMonitor struct {
	alerts  StaleCanceller
	maxWait time.Duration
}

// NewAcceptedMonitor creates a new accepted-alert monitor
func NewAcceptedMonitor(alerts StaleCanceller, maxWait time.Duration) *AcceptedMonitor {
	return &AcceptedMonitor{alerts: alerts, maxWait: maxWait}
}

// Enabled reports whether a timeout is configured
func (m *AcceptedMonitor) Enabled() bool {
	return m.maxWait > 0
}

// CheckAndTransition cancels every accepted alert older than maxWait
func (m *AcceptedMonitor) CheckAndTransition(ctx context.Context) (int, error) {
	if !m.Enabled() {
		return 0, nil
	}
	return m.alerts.CancelStaleAccepted(ctx, m.maxWait)
}

// Start begins the periodic monitoring
func (m *AcceptedMonitor) Start(interval time.Duration, stop <-chan struct{}) {
	if !m.Enabled() {
		return
	}
	ctx := logger.WithKV(context.Background(), "job", "accepted-monitor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cancelled, err := m.CheckAndTransition(ctx)
			if err != nil {
				logger.ErrorKV(ctx, "Accepted monitor error", "error", err)
			} else if cancelled > 0 {
				logger.Infof(ctx, "Accepted monitor: cancelled %d alerts without a driver", cancelled)
			}
		case <-stop:
			logger.InfoKV(ctx, "Accepted monitor stopped")
			return
		}
	}
}
