package realtime

import (
	"testing"

	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
)

func testRegistry() *handlerRegistry {
	logger, _ := logrustest.NewNullLogger()
	return newHandlerRegistry(logger)
}

func TestRegistryDispatchExactThenWildcard(t *testing.T) {
	r := testRegistry()

	var order []string
	r.subscribe(events.TypeAlertRaised, func(events.Event) { order = append(order, "exact1") })
	r.subscribe(events.TypeAlertRaised, func(events.Event) { order = append(order, "exact2") })
	r.subscribe(events.Wildcard, func(events.Event) { order = append(order, "wildcard") })

	r.dispatch(events.Event{EventType: events.TypeAlertRaised})

	if len(order) != 3 {
		t.Fatalf("expected 3 invocations, got %d (%v)", len(order), order)
	}
	if order[0] != "exact1" || order[1] != "exact2" || order[2] != "wildcard" {
		t.Fatalf("wrong dispatch order: %v", order)
	}
}

func TestRegistryDispatchOnlyMatching(t *testing.T) {
	r := testRegistry()

	var alertCount, ticketCount int
	r.subscribe(events.TypeAlertRaised, func(events.Event) { alertCount++ })
	r.subscribe(events.TypeTicketCreated, func(events.Event) { ticketCount++ })

	r.dispatch(events.Event{EventType: events.TypeAlertRaised})

	if alertCount != 1 || ticketCount != 0 {
		t.Fatalf("expected 1/0, got %d/%d", alertCount, ticketCount)
	}
}

func TestRegistryUnsubscribeRemovesOnlyThatRegistration(t *testing.T) {
	r := testRegistry()

	var first, second int
	unsub := r.subscribe(events.TypeAlertRaised, func(events.Event) { first++ })
	r.subscribe(events.TypeAlertRaised, func(events.Event) { second++ })

	unsub()
	r.dispatch(events.Event{EventType: events.TypeAlertRaised})

	if first != 0 {
		t.Fatalf("unsubscribed handler fired %d times", first)
	}
	if second != 1 {
		t.Fatalf("remaining handler fired %d times, expected 1", second)
	}
}

func TestRegistryUnsubscribeIdempotent(t *testing.T) {
	r := testRegistry()

	unsubA := r.subscribe(events.TypeAlertRaised, func(events.Event) {})
	var calls int
	r.subscribe(events.TypeAlertRaised, func(events.Event) { calls++ })

	unsubA()
	unsubA() // second call must not remove anyone else

	r.dispatch(events.Event{EventType: events.TypeAlertRaised})
	if calls != 1 {
		t.Fatalf("expected surviving handler to fire once, got %d", calls)
	}
}

func TestRegistryEmptyTypeEntryRemoved(t *testing.T) {
	r := testRegistry()

	unsub := r.subscribe(events.TypeAlertRaised, func(events.Event) {})
	if r.count(events.TypeAlertRaised) != 1 {
		t.Fatal("expected one registration")
	}
	unsub()
	if r.count(events.TypeAlertRaised) != 0 {
		t.Fatal("expected empty registration set to be removed")
	}
	r.mu.Lock()
	_, exists := r.handlers[events.TypeAlertRaised]
	r.mu.Unlock()
	if exists {
		t.Fatal("expected map entry to be deleted when last handler unsubscribes")
	}
}

func TestRegistryPanickingHandlerDoesNotAbortDispatch(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	r := newHandlerRegistry(logger)

	var delivered int
	r.subscribe(events.TypeAlertRaised, func(events.Event) { panic("boom") })
	r.subscribe(events.TypeAlertRaised, func(events.Event) { delivered++ })
	r.subscribe(events.Wildcard, func(events.Event) { delivered++ })

	r.dispatch(events.Event{EventType: events.TypeAlertRaised})

	if delivered != 2 {
		t.Fatalf("expected delivery to continue past panic, got %d", delivered)
	}
	if len(hook.Entries) == 0 {
		t.Fatal("expected handler panic to be logged")
	}
}

func TestRegistryClear(t *testing.T) {
	r := testRegistry()

	var calls int
	r.subscribe(events.Wildcard, func(events.Event) { calls++ })
	r.clear()
	r.dispatch(events.Event{EventType: events.TypeAlertRaised})

	if calls != 0 {
		t.Fatalf("expected no delivery after clear, got %d", calls)
	}
}

func TestRegistrySubscribeFromHandler(t *testing.T) {
	r := testRegistry()

	var late int
	r.subscribe(events.TypeAlertRaised, func(events.Event) {
		r.subscribe(events.TypeAlertRaised, func(events.Event) { late++ })
	})

	// First dispatch must not deadlock and must not invoke the handler
	// registered during dispatch.
	r.dispatch(events.Event{EventType: events.TypeAlertRaised})
	if late != 0 {
		t.Fatalf("handler registered mid-dispatch fired in same dispatch")
	}
	r.dispatch(events.Event{EventType: events.TypeAlertRaised})
	if late != 1 {
		t.Fatalf("expected late handler to fire on next dispatch, got %d", late)
	}
}
