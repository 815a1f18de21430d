package scheduler

import (
	"time"

	"github.com/lib/pq"

	"github.com/jeremybastin1207/mindia/internal/logger"
	"github.com/jeremybastin1207/mindia/pkg/task"
)

// pqNotifier wraps a dedicated lib/pq LISTEN connection on
// task.NotifyChannel, decoupled from GORM's connection pool lifecycle
// (SPEC_FULL.md §B: "GORM's pool does not expose a dedicated listener
// connection"). Postgres-only; SQLite deployments never construct one and
// the scheduler degrades to poll-only (SPEC_FULL.md §E.4).
type pqNotifier struct {
	listener *pq.Listener
	wake     chan struct{}
}

func newPQNotifier(dsn string) (*pqNotifier, error) {
	wake := make(chan struct{}, 1)
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("scheduler: listener event", "event", int(ev), "error", err)
		}
	}
	l := pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)
	if err := l.Listen(task.NotifyChannel); err != nil {
		l.Close()
		return nil, err
	}
	n := &pqNotifier{listener: l, wake: wake}
	go n.pump()
	return n, nil
}

func (n *pqNotifier) pump() {
	for {
		select {
		case notice, ok := <-n.listener.Notify:
			if !ok {
				return
			}
			if notice == nil {
				// Reconnected: the connection may have missed notifies
				// while down. Wake the poller to catch up.
			}
			select {
			case n.wake <- struct{}{}:
			default:
			}
		case <-time.After(90 * time.Second):
			// Per the pq.Listener docs: ping periodically so a dead
			// connection is detected even with no incoming notifies.
			_ = n.listener.Ping()
		}
	}
}

func (n *pqNotifier) Close() error {
	return n.listener.Close()
}
