package reconcile

import (
	"errors"
	"testing"
)

func TestStore_InsertHonorsNaturalOrder(t *testing.T) {
	feed := NewStore[note](NewestFirst)
	thread := NewStore[note](OldestFirst)
	for _, id := range []string{"a", "b", "c"} {
		if err := feed.Insert(Confirmed(id, note{Text: id})); err != nil {
			t.Fatalf("feed insert: %v", err)
		}
		if err := thread.Insert(Confirmed(id, note{Text: id})); err != nil {
			t.Fatalf("thread insert: %v", err)
		}
	}
	if got := ids(feed.Records()); got[0] != "c" || got[2] != "a" {
		t.Fatalf("expected newest first got %v", got)
	}
	if got := ids(thread.Records()); got[0] != "a" || got[2] != "c" {
		t.Fatalf("expected oldest first got %v", got)
	}
	if err := feed.Insert(Confirmed("a", note{Text: "again"})); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID got %v", err)
	}
}

func TestStore_ReplaceMissingIsNoOp(t *testing.T) {
	s := NewStore[note](OldestFirst)
	seed(t, s, "a")
	if err := s.ReplaceByID("zzz", Confirmed("zzz", note{Text: "x"})); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	if got := ids(s.Records()); len(got) != 1 || got[0] != "a" {
		t.Fatalf("store changed by missing replace: %v", got)
	}
}

func TestStore_RemoveAndInsertAt(t *testing.T) {
	s := NewStore[note](OldestFirst)
	seed(t, s, "a", "b", "c")

	rec, idx, err := s.RemoveByID("b")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if idx != 1 || rec.ID != "b" {
		t.Fatalf("expected b at 1 got %s at %d", rec.ID, idx)
	}
	if err := s.InsertAt(idx, rec); err != nil {
		t.Fatalf("insert at: %v", err)
	}
	if got := ids(s.Records()); got[1] != "b" {
		t.Fatalf("expected b restored at 1 got %v", got)
	}
	if err := s.InsertAt(99, Confirmed("d", note{Text: "d"})); err != nil {
		t.Fatalf("insert at clamp: %v", err)
	}
	if got := ids(s.Records()); got[len(got)-1] != "d" {
		t.Fatalf("expected d appended got %v", got)
	}
	if _, _, err := s.RemoveByID("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	s := NewStore[note](OldestFirst)
	if err := s.Insert(Confirmed("a", note{Text: "a", Tags: []string{"x"}})); err != nil {
		t.Fatalf("insert: %v", err)
	}
	snap := s.Records()
	snap[0].Payload.Tags[0] = "mutated"
	got, _ := s.Get("a")
	if got.Payload.Tags[0] != "x" {
		t.Fatal("snapshot mutation leaked into the store")
	}
}

func TestStore_RefreshKeepsPendingRecords(t *testing.T) {
	s := NewStore[note](NewestFirst)
	seed(t, s, "a", "b")
	if err := s.ReplaceByID("a", Record[note]{ID: "a", Payload: note{Text: "optimistic"}, Status: StatusPending}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := s.Insert(Record[note]{ID: "temp-1", Payload: note{Text: "new"}, Status: StatusPending}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	err := s.Refresh([]Record[note]{
		{ID: "c", Payload: note{Text: "from server"}},
		{ID: "a", Payload: note{Text: "stale"}},
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	got := ids(s.Records())
	if len(got) != 3 || got[0] != "temp-1" || got[1] != "c" || got[2] != "a" {
		t.Fatalf("expected [temp-1 c a] got %v", got)
	}
	a, _ := s.Get("a")
	if a.Payload.Text != "optimistic" || a.Status != StatusPending {
		t.Fatalf("refresh clobbered pending record: %+v", a)
	}
	c, _ := s.Get("c")
	if c.Status != StatusConfirmed {
		t.Fatalf("expected refreshed record confirmed got %s", c.Status)
	}
	if _, ok := s.Get("b"); ok {
		t.Fatal("expected b dropped by authoritative refresh")
	}
}

func TestStore_SubscribeAndClose(t *testing.T) {
	s := NewStore[note](OldestFirst)
	var renders [][]string
	unsubscribe := s.Subscribe(func(recs []Record[note]) {
		renders = append(renders, ids(recs))
	})

	seed(t, s, "a", "b")
	if len(renders) != 2 || len(renders[1]) != 2 {
		t.Fatalf("expected two renders got %v", renders)
	}
	unsubscribe()
	seed(t, s, "c")
	if len(renders) != 2 {
		t.Fatalf("expected no render after unsubscribe got %v", renders)
	}

	s.Close()
	if !s.Closed() {
		t.Fatal("expected store closed")
	}
	if err := s.Insert(Confirmed("d", note{Text: "d"})); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed got %v", err)
	}
	if err := s.ReplaceByID("a", Confirmed("a", note{Text: "x"})); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed got %v", err)
	}
	if err := s.Refresh(nil); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed got %v", err)
	}
}

func TestStore_BeginGuardsPendingRecords(t *testing.T) {
	s := NewStore[note](OldestFirst)
	seed(t, s, "a", "b")

	prev, err := s.beginUpdate("a", Record[note]{ID: "a", Payload: note{Text: "new"}, Status: StatusPending})
	if err != nil {
		t.Fatalf("beginUpdate: %v", err)
	}
	if prev.Payload.Text != "note a" || prev.Status != StatusConfirmed {
		t.Fatalf("expected confirmed snapshot got %+v", prev)
	}
	if _, err := s.beginUpdate("a", Record[note]{ID: "a", Payload: note{Text: "again"}, Status: StatusPending}); !errors.Is(err, errInProgress) {
		t.Fatalf("expected errInProgress got %v", err)
	}
	if _, _, err := s.beginDelete("a"); !errors.Is(err, errInProgress) {
		t.Fatalf("expected errInProgress got %v", err)
	}
	if _, err := s.beginUpdate("missing", Record[note]{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}

	rec, idx, err := s.beginDelete("b")
	if err != nil || rec.ID != "b" || idx != 1 {
		t.Fatalf("beginDelete: got %+v at %d, %v", rec, idx, err)
	}
	// the deletion is marked in the same step, so a refresh cannot resurrect it
	if err := s.Refresh([]Record[note]{Confirmed("a", note{Text: "a"}), Confirmed("b", note{Text: "b"})}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, ok := s.Get("b"); ok {
		t.Fatal("refresh resurrected a record being deleted")
	}
	if _, _, err := s.beginDelete("b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second delete got %v", err)
	}

	s.Close()
	if _, err := s.beginUpdate("a", Record[note]{ID: "a"}); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed got %v", err)
	}
}
