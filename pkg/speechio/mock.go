package speechio

import (
	"context"
	"sync"
)

// Mock is a scripted Client for tests and sim mode.
type Mock struct {
	mu sync.RWMutex

	started bool

	onAudioChunk    func(pcm []byte)
	onUserText      func(text string)
	onAssistantText func(text string)

	// Configurable behavior
	StartFunc func(ctx context.Context) error
	StopFunc  func() error

	// Captured state for assertions
	StartCalls int
	StopCalls  int
}

// NewMock creates a new Mock client.
func NewMock() *Mock {
	return &Mock{}
}

// Start implements Client.
func (m *Mock) Start(ctx context.Context) error {
	m.mu.Lock()
	m.StartCalls++
	fn := m.StartFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	return nil
}

// Stop implements Client.
func (m *Mock) Stop() error {
	m.mu.Lock()
	m.StopCalls++
	fn := m.StopFunc
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

// Started reports whether the mock session is running.
func (m *Mock) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// OnAudioChunk implements Client.
func (m *Mock) OnAudioChunk(fn func(pcm []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAudioChunk = fn
}

// OnUserText implements Client.
func (m *Mock) OnUserText(fn func(text string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUserText = fn
}

// OnAssistantText implements Client.
func (m *Mock) OnAssistantText(fn func(text string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAssistantText = fn
}

// Test helpers

// EmitAudio triggers the OnAudioChunk callback.
func (m *Mock) EmitAudio(pcm []byte) {
	m.mu.RLock()
	fn := m.onAudioChunk
	m.mu.RUnlock()
	if fn != nil {
		fn(pcm)
	}
}

// EmitUserText triggers the OnUserText callback.
func (m *Mock) EmitUserText(text string) {
	m.mu.RLock()
	fn := m.onUserText
	m.mu.RUnlock()
	if fn != nil {
		fn(text)
	}
}

// EmitAssistantText triggers the OnAssistantText callback.
func (m *Mock) EmitAssistantText(text string) {
	m.mu.RLock()
	fn := m.onAssistantText
	m.mu.RUnlock()
	if fn != nil {
		fn(text)
	}
}

var _ Client = (*Mock)(nil)
