package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alem-hub/student-insights/internal/domain/shared"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func completed(studentID int64, status string) shared.Event {
	return shared.NewAnalysisCompletedEvent("run-1", studentID, status, 2, 0, "workflow")
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventAnalysisCompleted, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(completed(1, "good")))
	require.NoError(t, bus.Publish(shared.NewAnalysisFallbackEvent("run-2", 1, "boom")))

	assert.Equal(t, []shared.EventType{shared.EventAnalysisCompleted}, typed)
	assert.Equal(t, []shared.EventType{shared.EventAnalysisCompleted, shared.EventAnalysisFallback}, all)
}

func TestInMemoryEventBus_HandlerFailuresAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var after bool
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("failed") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { after = true; return nil }))

	assert.NoError(t, bus.Publish(completed(1, "critical")))
	assert.True(t, after)

	err := safeCall(completed(1, "critical"), func(shared.Event) error { panic("x") })
	assert.ErrorIs(t, err, ErrHandlerPanic)
}

func TestInMemoryEventBus_AsyncCloseWaits(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})
	var delivered atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		delivered.Add(1)
		return nil
	}))

	for i := int64(1); i <= 10; i++ {
		require.NoError(t, bus.Publish(completed(i, "good")))
	}
	require.NoError(t, bus.Close())
	assert.EqualValues(t, 10, delivered.Load())

	assert.ErrorIs(t, bus.Publish(completed(1, "good")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventAlertRaised, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_Validation(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()
	assert.ErrorIs(t, bus.Subscribe(shared.EventAlertRaised, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	payloads []string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel, payload string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func TestRedisEventBus_FansOutAndDeliversLocally(t *testing.T) {
	local := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	pub := &recordingPublisher{}
	bus, err := NewRedisEventBus(local, pub, "worker-1", nil)
	require.NoError(t, err)
	defer bus.Close()

	var got int
	require.NoError(t, bus.Subscribe(shared.EventAnalysisCompleted, func(shared.Event) error { got++; return nil }))
	require.NoError(t, bus.Publish(completed(42, "critical")))

	assert.Equal(t, 1, got)
	require.Len(t, pub.payloads, 1)
	assert.Equal(t, DefaultChannel, pub.channels[0])

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(pub.payloads[0]), &env))
	assert.Equal(t, "worker-1", env.InstanceID)
	assert.Equal(t, shared.EventAnalysisCompleted, env.EventType)
	assert.Equal(t, "42", env.AggregateID)
	assert.Equal(t, "critical", env.Payload["overall_status"])
}

func TestRedisEventBus_RemoteFailureKeepsLocalDelivery(t *testing.T) {
	local := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	bus, err := NewRedisEventBus(local, &recordingPublisher{err: errors.New("redis down")}, "worker-1", nil)
	require.NoError(t, err)
	defer bus.Close()

	var got int
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { got++; return nil }))
	assert.NoError(t, bus.Publish(completed(1, "good")))
	assert.Equal(t, 1, got)

	_, err = NewRedisEventBus(nil, &recordingPublisher{}, "x", nil)
	assert.Error(t, err)
}
