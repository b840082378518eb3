package eventbus

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jkaninda/chatwire/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubscribeOrderPreserved(t *testing.T) {
	bus := New(testLogger())

	var order []string
	bus.Subscribe(func(*protocol.Event) { order = append(order, "a") }, protocol.EventMessageCreate)
	bus.Subscribe(func(*protocol.Event) { order = append(order, "b") }, protocol.EventMessageCreate)

	handlers := bus.Resolve(protocol.EventMessageCreate)
	if len(handlers) != 2 {
		t.Fatalf("resolved %d handlers, want 2", len(handlers))
	}
	for _, h := range handlers {
		h(nil)
	}
	if order[0] != "a" || order[1] != "b" {
		t.Errorf("callback order = %v, want [a b]", order)
	}
}

func TestUnsubscribeRemovesFromAllEvents(t *testing.T) {
	bus := New(testLogger())

	sub := bus.Subscribe(func(*protocol.Event) {}, protocol.EventMessageCreate, protocol.EventMessageDelete)
	if bus.Subscribers(protocol.EventMessageCreate) != 1 || bus.Subscribers(protocol.EventMessageDelete) != 1 {
		t.Fatal("subscription not registered under both events")
	}

	bus.Unsubscribe(sub)
	if bus.Subscribers(protocol.EventMessageCreate) != 0 || bus.Subscribers(protocol.EventMessageDelete) != 0 {
		t.Error("subscription still registered after unsubscribe")
	}

	// Second removal and nil handle are no-ops.
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)
}

func TestUnsubscribeRemovesOnlyThatHandle(t *testing.T) {
	bus := New(testLogger())

	var got []string
	subA := bus.Subscribe(func(*protocol.Event) { got = append(got, "a") }, protocol.EventMessageCreate)
	bus.Subscribe(func(*protocol.Event) { got = append(got, "b") }, protocol.EventMessageCreate)

	bus.Unsubscribe(subA)

	for _, h := range bus.Resolve(protocol.EventMessageCreate) {
		h(nil)
	}
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("handlers after unsubscribe = %v, want [b]", got)
	}
}

func TestResolveReturnsSnapshot(t *testing.T) {
	bus := New(testLogger())

	calls := 0
	var sub *Subscription
	sub = bus.Subscribe(func(*protocol.Event) {
		calls++
		// Unsubscribing mid-dispatch must not disturb the snapshot
		// already being iterated.
		bus.Unsubscribe(sub)
	}, protocol.EventMessageCreate)

	snapshot := bus.Resolve(protocol.EventMessageCreate)
	for _, h := range snapshot {
		h(nil)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	if got := bus.Resolve(protocol.EventMessageCreate); len(got) != 0 {
		t.Errorf("resolved %d handlers after self-unsubscribe, want 0", len(got))
	}
}

func TestResolveUnknownEventEmpty(t *testing.T) {
	bus := New(testLogger())
	if got := bus.Resolve("NO_SUCH_EVENT"); len(got) != 0 {
		t.Errorf("resolved %d handlers for unknown event, want 0", len(got))
	}
}
