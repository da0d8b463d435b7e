package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type note struct {
	Text string
	Tags []string
}

func (n note) Validate() error {
	if strings.TrimSpace(n.Text) == "" {
		return Invalid("text", "required")
	}
	return nil
}

func (n note) Clone() note {
	n.Tags = append([]string(nil), n.Tags...)
	return n
}

type fakeRemote struct {
	mu        sync.Mutex
	nextID    int
	rows      map[string]note
	createErr error
	updateErr error
	deleteErr error
	// gate, when set, blocks every call until it is closed. entered is
	// signalled as each call starts.
	gate    chan struct{}
	entered chan struct{}
	calls   int
	keys    []string
	rewrite func(note) note
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: make(map[string]note)}
}

func (f *fakeRemote) wait(ctx context.Context) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRemote) Create(ctx context.Context, payload note) (Record[note], error) {
	if err := f.wait(ctx); err != nil {
		return Record[note]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.createErr != nil {
		return Record[note]{}, f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("perm-%d", f.nextID)
	if f.rewrite != nil {
		payload = f.rewrite(payload)
	}
	f.rows[id] = payload
	return Confirmed(id, payload), nil
}

func (f *fakeRemote) Update(ctx context.Context, id string, payload note) (Record[note], error) {
	if err := f.wait(ctx); err != nil {
		return Record[note]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.updateErr != nil {
		return Record[note]{}, f.updateErr
	}
	if f.rewrite != nil {
		payload = f.rewrite(payload)
	}
	f.rows[id] = payload
	return Confirmed(id, payload), nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type idempotentRemote struct {
	*fakeRemote
	byKey map[string]Record[note]
}

func (f *idempotentRemote) CreateIdempotent(ctx context.Context, key string, payload note) (Record[note], error) {
	f.mu.Lock()
	if rec, ok := f.byKey[key]; ok {
		f.mu.Unlock()
		return rec, nil
	}
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	rec, err := f.Create(ctx, payload)
	if err != nil {
		return rec, err
	}
	f.mu.Lock()
	f.byKey[key] = rec
	f.mu.Unlock()
	return rec, nil
}

type countingObserver struct {
	mu       sync.Mutex
	started  map[Op]int
	outcomes map[Outcome]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{started: map[Op]int{}, outcomes: map[Outcome]int{}}
}

func (o *countingObserver) MutationStarted(_ string, op Op) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started[op]++
}

func (o *countingObserver) MutationSettled(_ string, _ Op, outcome Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[outcome]++
}

func (o *countingObserver) count(outcome Outcome) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcomes[outcome]
}

var errOffline = errors.New("dial tcp: connection refused")

func seed(t interface{ Fatalf(string, ...any) }, store *Store[note], ids ...string) {
	for _, id := range ids {
		rec := Confirmed(id, note{Text: "note " + id})
		if err := store.InsertAt(store.Len(), rec); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func ids[P Payload[P]](recs []Record[P]) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
