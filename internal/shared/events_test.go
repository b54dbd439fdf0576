package shared_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mkeloo/loyalty-program/internal/shared"
	_ "github.com/mkeloo/loyalty-program/testing"
)

func newTestBroker(t *testing.T) *shared.Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	broker := shared.NewBroker(context.Background(), client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = broker.Close() })
	return broker
}

func receive(t *testing.T, ch <-chan shared.SessionEvent) shared.SessionEvent {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return shared.SessionEvent{}
	}
}

func TestBrokerFansOutBySessionID(t *testing.T) {
	broker := newTestBroker(t)

	chA, cancelA := broker.Subscribe("session-a")
	defer cancelA()
	chB, cancelB := broker.Subscribe("session-b")
	defer cancelB()
	chAll, cancelAll := broker.Subscribe("")
	defer cancelAll()

	evt := shared.SessionEvent{Kind: shared.SessionSignedOut, SessionID: "session-a", UserID: "1"}
	if err := broker.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := receive(t, chA)
	if got.Kind != shared.SessionSignedOut || got.SessionID != "session-a" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.At.IsZero() {
		t.Fatal("publish must stamp the event time")
	}

	wildcard := receive(t, chAll)
	if wildcard.SessionID != "session-a" {
		t.Fatalf("wildcard subscriber got %+v", wildcard)
	}

	select {
	case evt := <-chB:
		t.Fatalf("subscriber for another session received %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBrokerCancelReleasesSubscription(t *testing.T) {
	broker := newTestBroker(t)

	_, cancel := broker.Subscribe("session-a")
	if broker.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", broker.Subscribers())
	}

	cancel()
	cancel() // safe to call twice
	if broker.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", broker.Subscribers())
	}
}

func TestBrokerExpiredEventCrossesProcesses(t *testing.T) {
	// Two brokers on the same Redis stand in for the web and worker processes.
	mr := miniredis.RunT(t)
	client1 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client1.Close(); _ = client2.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	web := shared.NewBroker(context.Background(), client1, logger)
	worker := shared.NewBroker(context.Background(), client2, logger)
	t.Cleanup(func() { _ = web.Close(); _ = worker.Close() })

	ch, cancel := web.Subscribe("session-x")
	defer cancel()

	evt := shared.SessionEvent{Kind: shared.SessionExpired, SessionID: "session-x", UserID: "9"}
	if err := worker.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := receive(t, ch)
	if got.Kind != shared.SessionExpired {
		t.Fatalf("expected expired event, got %+v", got)
	}
}
