package registry

import (
	"sync"
	"testing"

	"github.com/dropvault/dropvault/internal/rendezvous"
)

func TestInsertUnique(t *testing.T) {
	r := New()
	e := &Entry{State: WaitingForRecipient}
	if !r.InsertUnique("id1", e) {
		t.Fatalf("expected first insert to succeed")
	}
	if r.InsertUnique("id1", e) {
		t.Fatalf("expected second insert of same id to fail")
	}
}

func TestTake_NonExistentIsNoop(t *testing.T) {
	r := New()
	entry, ok := r.Take("missing")
	if ok || entry != nil {
		t.Fatalf("expected Take on missing id to return (nil, false), got (%v, %v)", entry, ok)
	}
}

func TestTake_RemovesEntry(t *testing.T) {
	r := New()
	r.InsertUnique("id1", &Entry{State: WaitingForRecipient})

	entry, ok := r.Take("id1")
	if !ok || entry == nil {
		t.Fatalf("expected Take to return the inserted entry")
	}
	if _, ok := r.Take("id1"); ok {
		t.Fatalf("expected second Take on the same id to fail")
	}
}

func TestSequentialClaimsViaReconnecting(t *testing.T) {
	r := New()
	r.InsertUnique("id1", &Entry{State: WaitingForRecipient})

	first, ok := r.Take("id1")
	if !ok || first.State != WaitingForRecipient {
		t.Fatalf("expected first claim to see WaitingForRecipient")
	}
	r.Put("id1", &Entry{State: Reconnecting})

	second, ok := r.Take("id1")
	if !ok || second.State != Reconnecting {
		t.Fatalf("expected second claim to see Reconnecting")
	}
}

func TestConcurrentClaims_ExactlyOneSucceeds(t *testing.T) {
	r := New()
	r.InsertUnique("id1", &Entry{State: WaitingForRecipient})

	const n = 50
	var wg sync.WaitGroup
	successes := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Take("id1"); ok {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one successful claim among %d racers, got %d", n, count)
	}
}

func TestSweep_RemovesOnlyMatching(t *testing.T) {
	r := New()
	r.InsertUnique("done1", &Entry{State: Done})
	r.InsertUnique("done2", &Entry{State: Done})
	r.InsertUnique("active1", &Entry{State: Active})

	removed := r.Sweep(func(e *Entry) bool { return e.State == Done })
	if removed != 2 {
		t.Fatalf("expected 2 entries swept, got %d", removed)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", r.Len())
	}
	if _, ok := r.Peek("active1"); !ok {
		t.Fatalf("expected active1 to survive the sweep")
	}
}

func TestTakeIf_RejectsNonClaimableWithoutRemoving(t *testing.T) {
	r := New()
	r.InsertUnique("id1", &Entry{State: Active})

	entry, ok := r.TakeIf("id1", func(e *Entry) bool { return e.State == WaitingForRecipient })
	if ok {
		t.Fatalf("expected TakeIf to reject an Active entry")
	}
	if entry == nil || entry.State != Active {
		t.Fatalf("expected the rejected entry to be returned for inspection, got %+v", entry)
	}
	if _, ok := r.Peek("id1"); !ok {
		t.Fatalf("expected the entry to remain in the registry after a rejected TakeIf")
	}
}

func TestTakeIf_MissingIDReturnsNilFalse(t *testing.T) {
	r := New()
	entry, ok := r.TakeIf("missing", func(e *Entry) bool { return true })
	if ok || entry != nil {
		t.Fatalf("expected (nil, false) for a missing id, got (%v, %v)", entry, ok)
	}
}

func TestTakeIf_RemovesMatchingEntryExactlyOnce(t *testing.T) {
	r := New()
	r.InsertUnique("id1", &Entry{State: WaitingForRecipient})
	pred := func(e *Entry) bool { return e.State == WaitingForRecipient }

	var wg sync.WaitGroup
	successes := make(chan struct{}, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.TakeIf("id1", pred); ok {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winning TakeIf among 50 racers, got %d", count)
	}
}

func TestEntryCarriesLinkTx(t *testing.T) {
	r := New()
	linkCh := make(chan rendezvous.Link, 1)
	r.InsertUnique("id1", &Entry{State: WaitingForRecipient, LinkTx: linkCh})

	entry, ok := r.Take("id1")
	if !ok {
		t.Fatalf("expected Take to succeed")
	}
	entry.LinkTx <- rendezvous.Link{ResumeOffset: 0}

	select {
	case link := <-linkCh:
		if link.ResumeOffset != 0 {
			t.Fatalf("unexpected resume offset %d", link.ResumeOffset)
		}
	default:
		t.Fatalf("expected link to be receivable from the original channel")
	}
}
