package presence

import (
	"errors"
	"sync"
	"testing"

	"github.com/danmuck/autowire/internal/testutil/testlog"
)

type fakeHandle struct {
	id int32

	mu     sync.Mutex
	closed string
}

func (h *fakeHandle) ID() int32 { return h.id }

func (h *fakeHandle) ForceClose(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = reason
}

func (h *fakeHandle) closedReason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func TestBindStealsWhenAllowed(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	old := &fakeHandle{id: 1}
	if _, err := r.Bind("client-a", old, true); err != nil {
		t.Fatalf("first bind: %v", err)
	}

	next := &fakeHandle{id: 2}
	stole, err := r.Bind("client-a", next, true)
	if err != nil {
		t.Fatalf("steal bind: %v", err)
	}
	if !stole {
		t.Fatalf("steal not reported")
	}
	if old.closedReason() == "" {
		t.Fatalf("displaced session not force-closed")
	}
	if cur, _ := r.Lookup("client-a"); cur.ID() != 2 {
		t.Fatalf("identity not rebound: %d", cur.ID())
	}
}

func TestBindRejectsWhenStealingDisabled(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	old := &fakeHandle{id: 1}
	if _, err := r.Bind("client-a", old, false); err != nil {
		t.Fatalf("first bind: %v", err)
	}

	next := &fakeHandle{id: 2}
	if _, err := r.Bind("client-a", next, false); !errors.Is(err, ErrIdentityTaken) {
		t.Fatalf("expected ErrIdentityTaken, got %v", err)
	}
	if old.closedReason() != "" {
		t.Fatalf("existing session closed on rejected bind")
	}
	if cur, _ := r.Lookup("client-a"); cur.ID() != 1 {
		t.Fatalf("identity moved: %d", cur.ID())
	}
}

func TestReleaseOnlyByCurrentHolder(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	old := &fakeHandle{id: 1}
	next := &fakeHandle{id: 2}
	if _, err := r.Bind("client-a", old, true); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := r.Bind("client-a", next, true); err != nil {
		t.Fatalf("steal: %v", err)
	}

	// The stolen session cleans up last; it must not unbind its thief.
	r.Release("client-a", old)
	if _, held := r.Lookup("client-a"); !held {
		t.Fatalf("thief unbound by displaced session")
	}
	r.Release("client-a", next)
	if r.Len() != 0 {
		t.Fatalf("registry not empty: %d", r.Len())
	}
}

func TestEmptyIdentityIsNotTracked(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	if _, err := r.Bind("", &fakeHandle{id: 1}, false); err != nil {
		t.Fatalf("empty bind: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("empty identity stored")
	}
}
