package coordination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lineflow/scheduler/internal/observability"
)

// LeaderElector ensures only one Orchestrator instance runs compute_proposal
// against a shared Gateway at a time. Instances that are not leader still
// serve reads (GET endpoints) but reject writes with ErrNotLeader.
type LeaderElector struct {
	lease  Lease
	nodeID string
	key    string
	ttl    time.Duration

	onElected func(ctx context.Context)
	onLost    func()

	mu           sync.RWMutex
	isLeader     bool
	leaseValue   string
	currentEpoch int64
	leaderCtx    context.Context
	leaderCancel context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
}

// NewLeaderElector builds an elector for the shared key "lineflow:lock:orchestrator".
func NewLeaderElector(lease Lease, nodeID string, ttl time.Duration) *LeaderElector {
	ctx, cancel := context.WithCancel(context.Background())
	return &LeaderElector{
		lease:  lease,
		nodeID: nodeID,
		key:    "lineflow:lock:orchestrator",
		ttl:    ttl,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetCallbacks registers hooks invoked on leadership gain/loss. onElected
// receives a context cancelled the instant leadership is lost.
func (l *LeaderElector) SetCallbacks(onElected func(context.Context), onLost func()) {
	l.onElected = onElected
	l.onLost = onLost
}

// Start begins the acquire/renew loop in the background.
func (l *LeaderElector) Start(ctx context.Context) { go l.loop(ctx) }

// Stop cancels the loop and releases leadership if held.
func (l *LeaderElector) Stop() {
	l.cancel()
	if l.IsLeader() {
		l.release()
	}
}

func (l *LeaderElector) loop(ctx context.Context) {
	interval := l.ttl / 3
	minInterval := interval
	maxInterval := 10 * l.ttl

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if l.IsLeader() {
				l.release()
			}
			return
		case <-l.ctx.Done():
			return
		case <-timer.C:
			var err error
			if l.IsLeader() {
				var renewed bool
				renewed, err = l.renew(ctx)
				if err == nil && !renewed {
					l.stepDown()
				}
			} else {
				var acquired bool
				acquired, err = l.acquire(ctx)
				if err == nil && acquired {
					l.becomeLeader()
				}
			}

			if err != nil {
				interval *= 2
				if interval > maxInterval {
					interval = maxInterval
				}
			} else {
				interval = minInterval
			}
			timer.Reset(interval)
		}
	}
}

// IsLeader reports whether this instance currently holds leadership.
func (l *LeaderElector) IsLeader() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isLeader
}

// Epoch returns the fencing epoch of the current (or most recent) lease.
func (l *LeaderElector) Epoch() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.currentEpoch
}

func (l *LeaderElector) acquire(ctx context.Context) (bool, error) {
	epoch, err := l.lease.IncrementEpoch(ctx, l.key)
	if err != nil {
		return false, err
	}
	value := fmt.Sprintf("%s:%d", l.nodeID, epoch)
	acquired, err := l.lease.AcquireLease(ctx, l.key, value, l.ttl)
	if err != nil {
		return false, err
	}
	if acquired {
		l.mu.Lock()
		l.leaseValue = value
		l.currentEpoch = epoch
		l.mu.Unlock()
	}
	return acquired, nil
}

func (l *LeaderElector) renew(ctx context.Context) (bool, error) {
	l.mu.RLock()
	value := l.leaseValue
	l.mu.RUnlock()
	if value == "" {
		return false, nil
	}
	return l.lease.RenewLease(ctx, l.key, value, l.ttl)
}

func (l *LeaderElector) release() {
	l.mu.RLock()
	value := l.leaseValue
	l.mu.RUnlock()
	if value == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l.lease.ReleaseLease(ctx, l.key, value)
}

func (l *LeaderElector) becomeLeader() {
	l.mu.Lock()
	l.isLeader = true
	ctx, cancel := context.WithCancel(context.Background())
	l.leaderCancel = cancel
	l.leaderCtx = ctx
	epoch := l.currentEpoch
	l.mu.Unlock()

	observability.LeaderStatus.Set(1)
	observability.LeadershipTransitions.WithLabelValues(l.nodeID, "acquired").Inc()

	if l.onElected != nil {
		go l.onElected(l.leaderCtx)
	}
	_ = epoch
}

func (l *LeaderElector) stepDown() {
	l.mu.Lock()
	if !l.isLeader {
		l.mu.Unlock()
		return
	}
	l.isLeader = false
	if l.leaderCancel != nil {
		l.leaderCancel()
	}
	l.mu.Unlock()

	observability.LeaderStatus.Set(0)
	observability.LeadershipTransitions.WithLabelValues(l.nodeID, "lost").Inc()
	if l.onLost != nil {
		l.onLost()
	}
}
