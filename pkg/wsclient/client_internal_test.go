package wsclient

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
)

func newTestManager() *manager {
	return &manager{
		cfg:    Config{SubscriptionBuffer: 4},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		end:    make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func TestNextRetryAfter_Sequence(t *testing.T) {
	const (
		start = 5 * time.Second
		max   = 60 * time.Second
	)

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}

	current := time.Duration(0)
	for i, expected := range want {
		current = nextRetryAfter(current, start, max)
		if current != expected {
			t.Fatalf("step %d: got %v, want %v", i, current, expected)
		}
	}
}

func TestFilter_AnyCollapsesOtherItems(t *testing.T) {
	f := NewFilter().Pong().Any().Connected().CallReturnForID(3)

	if len(f.items) != 1 || f.items[0].kind != filterAny {
		t.Fatalf("expected single any item, got %#v", f.items)
	}

	for _, event := range []Event{
		Connected{},
		Reconnecting{RetryAfterSecs: 5},
		APIMessage{Message: api.Pong{}},
		Ended{},
	} {
		if !f.matches(event) {
			t.Errorf("any filter must match %T", event)
		}
	}
}

func TestFilter_DoesNotDuplicateItems(t *testing.T) {
	f := NewFilter().Pong().Pong().CallReturnForID(1).CallReturnForID(1)

	if len(f.items) != 2 {
		t.Errorf("expected 2 distinct items, got %#v", f.items)
	}
}

func TestFilter_CallReturnForID(t *testing.T) {
	f := NewFilter().CallReturnForID(7)

	match := APIMessage{Message: api.MethodCallReturn{CallID: 7, Success: api.Ack}}
	other := APIMessage{Message: api.MethodCallReturn{CallID: 8, Success: api.Ack}}

	if !f.matches(match) {
		t.Error("filter must match its call id")
	}

	if f.matches(other) {
		t.Error("filter must not match a different call id")
	}

	if f.matches(APIMessage{Message: api.Pong{}}) {
		t.Error("filter must not match unrelated messages")
	}

	if !NewFilter().CallReturn().matches(other) {
		t.Error("unqualified call return filter must match any call id")
	}
}

func TestFilter_SubscriptionDataForID(t *testing.T) {
	f := NewFilter().SubscriptionDataForID(4)

	match := APIMessage{Message: api.SubscriptionData{SubscriptionID: 4}}
	other := APIMessage{Message: api.SubscriptionData{SubscriptionID: 5}}

	if !f.matches(match) || f.matches(other) {
		t.Error("subscription filter must select by subscription id")
	}
}

func TestDispatch_RoutesByFilter(t *testing.T) {
	m := newTestManager()

	pongSub := m.register(NewFilter().Pong(), false)
	anySub := m.register(NewFilter().Any(), false)

	m.dispatch(APIMessage{Message: api.Pong{}})
	m.dispatch(Connected{})

	if got := len(pongSub.ch); got != 1 {
		t.Errorf("pong subscriber expected 1 event, got %d", got)
	}

	if got := len(anySub.ch); got != 2 {
		t.Errorf("any subscriber expected 2 events, got %d", got)
	}
}

func TestDispatch_OneShotDeliversOnceAndCloses(t *testing.T) {
	m := newTestManager()

	sub := m.register(NewFilter().Pong(), true)

	m.dispatch(APIMessage{Message: api.Pong{}})
	m.dispatch(APIMessage{Message: api.Pong{}})

	if _, ok := <-sub.ch; !ok {
		t.Fatal("one-shot subscriber must receive the first event")
	}

	if _, ok := <-sub.ch; ok {
		t.Error("one-shot channel must be closed after delivery")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.subs) != 0 {
		t.Errorf("one-shot subscription must leave the registry, got %d", len(m.subs))
	}
}

func TestDispatch_EndedClosesAllSubscribers(t *testing.T) {
	m := newTestManager()

	sub := m.register(NewFilter().Any(), false)
	silent := m.register(NewFilter().Pong(), false)

	m.dispatch(Ended{})

	if event, ok := <-sub.ch; !ok {
		t.Fatal("matching subscriber must receive Ended before close")
	} else if _, isEnded := event.(Ended); !isEnded {
		t.Fatalf("expected Ended, got %T", event)
	}

	if _, ok := <-sub.ch; ok {
		t.Error("subscriber channel must be closed after Ended")
	}

	// Неподходящий фильтр события не получает, но канал всё равно
	// закрывается.
	if _, ok := <-silent.ch; ok {
		t.Error("non-matching subscriber channel must still be closed")
	}
}

func TestRegister_AfterEndedReturnsClosedChannel(t *testing.T) {
	m := newTestManager()
	m.dispatch(Ended{})

	sub := m.register(NewFilter().Any(), true)

	if _, ok := <-sub.ch; ok {
		t.Error("subscription after Ended must be born closed")
	}
}

func TestUnregister_IsIdempotent(t *testing.T) {
	m := newTestManager()

	sub := m.register(NewFilter().Pong(), false)

	m.unregister(sub.id)
	m.unregister(sub.id)

	if _, ok := <-sub.ch; ok {
		t.Error("unregistered channel must be closed")
	}
}

func TestDispatch_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := newTestManager()
	m.cfg.SubscriptionBuffer = 1

	sub := m.register(NewFilter().Pong(), false)

	done := make(chan struct{})
	go func() {
		defer close(done)

		m.dispatch(APIMessage{Message: api.Pong{}})
		m.dispatch(APIMessage{Message: api.Pong{}})
		m.dispatch(APIMessage{Message: api.Pong{}})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch must never block on a full subscriber")
	}

	if got := len(sub.ch); got != 1 {
		t.Errorf("expected buffer to hold 1 event, got %d", got)
	}
}
