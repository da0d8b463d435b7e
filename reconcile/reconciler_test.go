package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"recreo/gateway"
)

func newTestReconciler(order Order, remote Remote[note]) (*Reconciler[note], *countingObserver, *Notices, *Machine) {
	obs := newCountingObserver()
	notices := NewNotices()
	machine := NewMachine()
	r := New("note", NewStore[note](order), remote).
		WithIDGenerator(&SequenceGenerator{}).
		WithObserver(obs).
		WithNotices(notices).
		WithMachine(machine)
	return r, obs, notices, machine
}

func TestCreate_ConfirmsWithPermanentID(t *testing.T) {
	remote := newFakeRemote()
	r, obs, _, machine := newTestReconciler(NewestFirst, remote)

	rec, err := r.Create(context.Background(), note{Text: "hello"})
	if err != nil {
		t.Fatalf("create: unexpected error: %v", err)
	}
	if rec.ID != "perm-1" || rec.Status != StatusConfirmed {
		t.Fatalf("create: expected confirmed perm-1 got %s/%s", rec.ID, rec.Status)
	}

	records := r.Store().Records()
	if len(records) != 1 {
		t.Fatalf("expected one record got %d", len(records))
	}
	if records[0].ID != "perm-1" || records[0].Status != StatusConfirmed {
		t.Fatalf("expected confirmed perm-1 in store got %s/%s", records[0].ID, records[0].Status)
	}
	if _, ok := r.Store().Get("temp-1"); ok {
		t.Fatal("temporary id still present after confirmation")
	}
	if obs.count(OutcomeConfirmed) != 1 {
		t.Fatalf("expected one confirmation got %d", obs.count(OutcomeConfirmed))
	}
	if machine.Phase() != PhaseConfirmed {
		t.Fatalf("expected phase %s got %s", PhaseConfirmed, machine.Phase())
	}
}

func TestCreate_PendingUntilGatewayResponds(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	remote.entered = make(chan struct{}, 1)
	r, _, _, machine := newTestReconciler(NewestFirst, remote)

	done := make(chan error, 1)
	go func() {
		_, err := r.Create(context.Background(), note{Text: "draft"})
		done <- err
	}()
	<-remote.entered

	rec, ok := r.Store().Get("temp-1")
	if !ok {
		t.Fatal("expected optimistic record before gateway response")
	}
	if rec.Status != StatusPending || rec.Payload.Text != "draft" {
		t.Fatalf("unexpected optimistic record %+v", rec)
	}
	if machine.Phase() != PhaseMutating {
		t.Fatalf("expected phase %s got %s", PhaseMutating, machine.Phase())
	}

	close(remote.gate)
	if err := <-done; err != nil {
		t.Fatalf("create: unexpected error: %v", err)
	}
	if got := ids(r.Store().Records()); len(got) != 1 || got[0] != "perm-1" {
		t.Fatalf("expected [perm-1] got %v", got)
	}
}

func TestCreate_FailureRemovesTemporaryRecord(t *testing.T) {
	remote := newFakeRemote()
	remote.createErr = fmt.Errorf("%w: %v", gateway.ErrUnavailable, errOffline)
	r, obs, notices, machine := newTestReconciler(NewestFirst, remote)
	seed(t, r.Store(), "perm-9")

	rec, err := r.Create(context.Background(), note{Text: "lost"})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError got %v", err)
	}
	if gwErr.Op != OpCreate || gwErr.Kind != gateway.KindUnavailable {
		t.Fatalf("unexpected gateway error %+v", gwErr)
	}
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatal("expected gateway error to unwrap to ErrUnavailable")
	}
	if rec.Status != StatusFailed || rec.ID != "temp-1" {
		t.Fatalf("expected failed temp-1 got %s/%s", rec.ID, rec.Status)
	}

	if got := ids(r.Store().Records()); len(got) != 1 || got[0] != "perm-9" {
		t.Fatalf("expected only perm-9 after rollback got %v", got)
	}
	if obs.count(OutcomeRolledBack) != 1 || obs.count(OutcomeConfirmed) != 0 {
		t.Fatalf("expected exactly one rollback got %v", obs.outcomes)
	}
	list := notices.List()
	if len(list) != 1 || list[0].Kind != gateway.KindUnavailable {
		t.Fatalf("expected one unavailable notice got %+v", list)
	}
	if machine.Phase() != PhaseRolledBack {
		t.Fatalf("expected phase %s got %s", PhaseRolledBack, machine.Phase())
	}
}

func TestCreate_ValidationHasNoLocalEffect(t *testing.T) {
	remote := newFakeRemote()
	r, obs, _, machine := newTestReconciler(NewestFirst, remote)

	_, err := r.Create(context.Background(), note{Text: "   "})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "text" {
		t.Fatalf("expected text ValidationError got %v", err)
	}
	if r.Store().Len() != 0 {
		t.Fatal("validation failure must not touch the store")
	}
	if remote.callCount() != 0 {
		t.Fatal("validation failure must not reach the gateway")
	}
	if len(obs.started) != 0 || machine.Phase() != PhaseIdle {
		t.Fatal("validation failure must not start a mutation")
	}
}

func TestCreate_MissingPermanentIDRollsBack(t *testing.T) {
	r, _, _, _ := newTestReconciler(NewestFirst, emptyIDRemote{newFakeRemote()})

	_, err := r.Create(context.Background(), note{Text: "x"})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != gateway.KindMalformed {
		t.Fatalf("expected malformed GatewayError got %v", err)
	}
	if r.Store().Len() != 0 {
		t.Fatal("expected store to be empty after rollback")
	}
}

type emptyIDRemote struct{ *fakeRemote }

func (emptyIDRemote) Create(context.Context, note) (Record[note], error) {
	return Record[note]{Payload: note{Text: "x"}}, nil
}

func TestCreate_UsesTemporaryIDAsIdempotencyKey(t *testing.T) {
	remote := &idempotentRemote{fakeRemote: newFakeRemote(), byKey: map[string]Record[note]{}}
	r, _, _, _ := newTestReconciler(OldestFirst, remote)

	if _, err := r.Create(context.Background(), note{Text: "a"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(remote.keys) != 1 || remote.keys[0] != "temp-1" {
		t.Fatalf("expected idempotency key temp-1 got %v", remote.keys)
	}
}

func TestUpdate_ConfirmsServerPayload(t *testing.T) {
	remote := newFakeRemote()
	remote.rewrite = func(n note) note {
		n.Tags = append(n.Tags, "edited")
		return n
	}
	r, _, _, _ := newTestReconciler(NewestFirst, remote)
	seed(t, r.Store(), "a")

	rec, err := r.Update(context.Background(), "a", note{Text: "changed"})
	if err != nil {
		t.Fatalf("update: unexpected error: %v", err)
	}
	if rec.Status != StatusConfirmed {
		t.Fatalf("expected confirmed got %s", rec.Status)
	}
	got, _ := r.Store().Get("a")
	if got.Payload.Text != "changed" || len(got.Payload.Tags) != 1 || got.Payload.Tags[0] != "edited" {
		t.Fatalf("expected server payload in store got %+v", got.Payload)
	}
}

func TestUpdate_FailureRestoresSnapshot(t *testing.T) {
	remote := newFakeRemote()
	remote.updateErr = fmt.Errorf("update: %w", gateway.ErrForbidden)
	r, obs, notices, _ := newTestReconciler(NewestFirst, remote)
	original := Confirmed("a", note{Text: "original", Tags: []string{"x"}})
	if err := r.Store().Insert(original); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec, err := r.Update(context.Background(), "a", note{Text: "changed", Tags: []string{"y", "z"}})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != gateway.KindForbidden {
		t.Fatalf("expected forbidden GatewayError got %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("expected failed status got %s", rec.Status)
	}
	got, _ := r.Store().Get("a")
	if got.Status != StatusConfirmed || got.Payload.Text != "original" || len(got.Payload.Tags) != 1 || got.Payload.Tags[0] != "x" {
		t.Fatalf("expected snapshot restored got %+v", got)
	}
	if obs.count(OutcomeRolledBack) != 1 {
		t.Fatalf("expected one rollback got %v", obs.outcomes)
	}
	if msg := notices.List()[0].Message; msg == "" {
		t.Fatal("expected user message")
	}
}

func TestUpdate_RejectsUnknownAndPendingRecords(t *testing.T) {
	remote := newFakeRemote()
	r, _, _, _ := newTestReconciler(NewestFirst, remote)

	var vErr *ValidationError
	if _, err := r.Update(context.Background(), "", note{Text: "x"}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty id got %v", err)
	}
	if _, err := r.Update(context.Background(), "missing", note{Text: "x"}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for unknown id got %v", err)
	}
	if err := r.Store().Insert(Record[note]{ID: "temp-7", Payload: note{Text: "p"}, Status: StatusPending}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := r.Update(context.Background(), "temp-7", note{Text: "x"}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for pending record got %v", err)
	}
	if remote.callCount() != 0 {
		t.Fatal("rejected updates must not reach the gateway")
	}
}

func TestConcurrentUpdatesOfOneRecordReachGatewayOnce(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	remote.entered = make(chan struct{}, 16)
	r, _, _, _ := newTestReconciler(OldestFirst, remote)
	seed(t, r.Store(), "a")

	const writers = 16
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			_, err := r.Update(context.Background(), "a", note{Text: fmt.Sprintf("edit %d", i)})
			errs <- err
		}()
	}

	var rejected int
	var vErr *ValidationError
	for i := 0; i < writers-1; i++ {
		if err := <-errs; !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError for a concurrent update got %v", err)
		}
		rejected++
	}
	<-remote.entered
	close(remote.gate)
	if err := <-errs; err != nil {
		t.Fatalf("winning update: %v", err)
	}
	if rejected != writers-1 || remote.callCount() != 1 {
		t.Fatalf("expected one gateway call and %d rejections got %d calls, %d rejections", writers-1, remote.callCount(), rejected)
	}
}

func TestConcurrentDeletesOfOneRecordReachGatewayOnce(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	remote.entered = make(chan struct{}, 16)
	r, _, _, _ := newTestReconciler(OldestFirst, remote)
	seed(t, r.Store(), "a")

	const callers = 16
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() { errs <- r.Delete(context.Background(), "a") }()
	}

	var vErr *ValidationError
	for i := 0; i < callers-1; i++ {
		if err := <-errs; !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError for a concurrent delete got %v", err)
		}
	}
	<-remote.entered
	close(remote.gate)
	if err := <-errs; err != nil {
		t.Fatalf("winning delete: %v", err)
	}
	if remote.callCount() != 1 {
		t.Fatalf("expected one gateway call got %d", remote.callCount())
	}
}

func TestDelete_FailureRestoresOriginalPosition(t *testing.T) {
	remote := newFakeRemote()
	remote.deleteErr = fmt.Errorf("%w: not owner", gateway.ErrForbidden)
	r, obs, _, _ := newTestReconciler(OldestFirst, remote)
	seed(t, r.Store(), "a", "b", "c")
	before, _ := r.Store().Get("b")

	err := r.Delete(context.Background(), "b")
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Op != OpDelete {
		t.Fatalf("expected delete GatewayError got %v", err)
	}
	got := ids(r.Store().Records())
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("expected [a b c] after rollback got %v", got)
	}
	after, _ := r.Store().Get("b")
	if after.Payload.Text != before.Payload.Text || after.Status != before.Status {
		t.Fatalf("expected original fields got %+v", after)
	}
	if obs.count(OutcomeRolledBack) != 1 {
		t.Fatalf("expected one rollback got %v", obs.outcomes)
	}
}

func TestDelete_RemovesImmediately(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	remote.entered = make(chan struct{}, 1)
	r, _, _, _ := newTestReconciler(OldestFirst, remote)
	seed(t, r.Store(), "a", "b")

	done := make(chan error, 1)
	go func() { done <- r.Delete(context.Background(), "a") }()
	<-remote.entered

	if _, ok := r.Store().Get("a"); ok {
		t.Fatal("expected record removed before gateway response")
	}
	// a refresh racing with the deletion must not bring the record back
	if err := r.Store().Refresh([]Record[note]{Confirmed("a", note{Text: "a"}), Confirmed("b", note{Text: "b"})}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, ok := r.Store().Get("a"); ok {
		t.Fatal("refresh resurrected a record being deleted")
	}

	close(remote.gate)
	if err := <-done; err != nil {
		t.Fatalf("delete: unexpected error: %v", err)
	}
	if got := ids(r.Store().Records()); len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected [b] got %v", got)
	}
}

func TestDelete_GatewayNotFoundIsBenign(t *testing.T) {
	remote := newFakeRemote()
	remote.deleteErr = gateway.ErrNotFound
	r, obs, notices, _ := newTestReconciler(OldestFirst, remote)
	seed(t, r.Store(), "a")

	if err := r.Delete(context.Background(), "a"); err != nil {
		t.Fatalf("delete: expected benign not found got %v", err)
	}
	if r.Store().Len() != 0 {
		t.Fatal("expected record to stay removed")
	}
	if obs.count(OutcomeConfirmed) != 1 || len(notices.List()) != 0 {
		t.Fatal("expected silent confirmation")
	}
}

func TestDanglingWriteGuard(t *testing.T) {
	for _, tc := range []struct {
		name string
		fail bool
	}{
		{"success", false},
		{"failure", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			remote := newFakeRemote()
			remote.gate = make(chan struct{})
			remote.entered = make(chan struct{}, 1)
			if tc.fail {
				remote.createErr = gateway.ErrUnavailable
			}
			r, obs, notices, _ := newTestReconciler(NewestFirst, remote)

			done := make(chan error, 1)
			go func() {
				_, err := r.Create(context.Background(), note{Text: "bye"})
				done <- err
			}()
			<-remote.entered
			r.Store().Close()
			close(remote.gate)

			if err := <-done; !errors.Is(err, ErrStoreClosed) {
				t.Fatalf("expected ErrStoreClosed got %v", err)
			}
			if obs.count(OutcomeDiscarded) != 1 {
				t.Fatalf("expected one discarded outcome got %v", obs.outcomes)
			}
			if len(notices.List()) != 0 {
				t.Fatal("discarded results must not surface notices")
			}
		})
	}
}

func TestDuplicateConfirmationDoesNotDuplicate(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	remote.entered = make(chan struct{}, 1)
	r, _, _, _ := newTestReconciler(NewestFirst, remote)

	done := make(chan error, 1)
	go func() {
		_, err := r.Create(context.Background(), note{Text: "dup"})
		done <- err
	}()
	<-remote.entered

	// a refresh delivers the permanent record before the create call returns
	if err := r.Store().Refresh([]Record[note]{Confirmed("perm-1", note{Text: "dup"})}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	close(remote.gate)
	if err := <-done; err != nil {
		t.Fatalf("create: %v", err)
	}

	got := ids(r.Store().Records())
	if len(got) != 1 || got[0] != "perm-1" {
		t.Fatalf("expected single perm-1 got %v", got)
	}
}

func TestConcurrentMutationsSettleExactlyOnce(t *testing.T) {
	remote := newFakeRemote()
	r, obs, _, machine := newTestReconciler(NewestFirst, remote)

	const n = 32
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := r.Create(gctx, note{Text: fmt.Sprintf("n%d", i)})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent creates: %v", err)
	}

	records := r.Store().Records()
	if len(records) != n {
		t.Fatalf("expected %d records got %d", n, len(records))
	}
	seen := map[string]bool{}
	for _, rec := range records {
		if rec.Status != StatusConfirmed || r.IDs().IsTemporary(rec.ID) {
			t.Fatalf("unexpected record %s/%s", rec.ID, rec.Status)
		}
		if seen[rec.ID] {
			t.Fatalf("duplicate record %s", rec.ID)
		}
		seen[rec.ID] = true
	}
	if obs.count(OutcomeConfirmed) != n || obs.started[OpCreate] != n {
		t.Fatalf("expected %d starts and confirmations got %v / %v", n, obs.started, obs.outcomes)
	}
	if machine.InFlight() != 0 || machine.Phase() != PhaseConfirmed {
		t.Fatalf("expected settled machine got %s with %d in flight", machine.Phase(), machine.InFlight())
	}
}

func TestCanceledContextRollsBack(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	r, _, notices, _ := newTestReconciler(NewestFirst, remote)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Create(ctx, note{Text: "x"})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != gateway.KindCanceled {
		t.Fatalf("expected canceled GatewayError got %v", err)
	}
	if r.Store().Len() != 0 {
		t.Fatal("expected rollback on cancellation")
	}
	if len(notices.List()) != 1 {
		t.Fatal("expected a notice for the cancelled save")
	}
}
