package operatorchannel

import (
	"context"
	"sync"
)

// Memory is a test double recording every sent message.
type Memory struct {
	mu        sync.Mutex
	Schedules []ScheduleMessage
	Failures  []FactoryFailureMessage
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) SendSchedule(ctx context.Context, msg ScheduleMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Schedules = append(m.Schedules, msg)
	return nil
}

func (m *Memory) SendFactoryFailure(ctx context.Context, msg FactoryFailureMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures = append(m.Failures, msg)
	return nil
}

var _ Channel = (*Memory)(nil)
