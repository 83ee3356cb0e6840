package gateway

import (
	"context"
	"sync"
)

// SentMessage records one Send call made on a MockGateway session.
type SentMessage struct {
	Phone string
	Text  string
}

// MockGateway is a hand-written, in-memory Gateway used in tests and in
// dry-run mode. Results are scripted per call; calls past the script succeed.
type MockGateway struct {
	mu sync.Mutex

	// Optional overrides, set in tests to simulate failure paths.
	OpenErr error
	// Results[i] is the delivery result of the i-th Send call.
	Results []bool
	// Errs[i], when non-nil, is returned by the i-th Send call.
	Errs []error
	// OnSend runs inside every Send call before the result is returned.
	OnSend func(call int, phone, text string)

	sent   []SentMessage
	opens  int
	closes int
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Open(_ context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	return &mockSession{m: m}, nil
}

// Sent returns a copy of every message passed to Send, in call order.
func (m *MockGateway) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// Opens returns how many times Open was called.
func (m *MockGateway) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Closes returns how many times a session was closed.
func (m *MockGateway) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

type mockSession struct {
	m *MockGateway
}

func (s *mockSession) Send(_ context.Context, phone, text string) (bool, error) {
	s.m.mu.Lock()
	call := len(s.m.sent)
	s.m.sent = append(s.m.sent, SentMessage{Phone: phone, Text: text})
	onSend := s.m.OnSend
	ok := true
	if call < len(s.m.Results) {
		ok = s.m.Results[call]
	}
	var err error
	if call < len(s.m.Errs) {
		err = s.m.Errs[call]
	}
	s.m.mu.Unlock()

	if onSend != nil {
		onSend(call, phone, text)
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *mockSession) Close() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.closes++
	return nil
}

var _ Gateway = (*MockGateway)(nil)
