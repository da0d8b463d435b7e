package reconcile

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"recreo/gateway"
)

// Remote adapts one entity type to a gateway.
type Remote[P Payload[P]] interface {
	Create(ctx context.Context, payload P) (Record[P], error)
	Update(ctx context.Context, id string, payload P) (Record[P], error)
	Delete(ctx context.Context, id string) error
}

// IdempotentCreator is implemented by remotes that deduplicate creations
// replayed under the same key. The temporary id is used as the key.
type IdempotentCreator[P Payload[P]] interface {
	CreateIdempotent(ctx context.Context, key string, payload P) (Record[P], error)
}

// Reconciler applies Create, Update and Delete optimistically to a Store and
// settles each against a Remote.
type Reconciler[P Payload[P]] struct {
	entity   string
	store    *Store[P]
	remote   Remote[P]
	ids      IDGenerator
	log      logrus.FieldLogger
	observer Observer
	notices  *Notices
	machine  *Machine
}

// New creates a reconciler for one entity type.
func New[P Payload[P]](entity string, store *Store[P], remote Remote[P]) *Reconciler[P] {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return &Reconciler[P]{
		entity:   entity,
		store:    store,
		remote:   remote,
		ids:      UUIDGenerator{},
		log:      discard,
		observer: nopObserver{},
	}
}

func (r *Reconciler[P]) WithIDGenerator(ids IDGenerator) *Reconciler[P] {
	r.ids = ids
	return r
}

func (r *Reconciler[P]) WithLogger(log logrus.FieldLogger) *Reconciler[P] {
	r.log = log
	return r
}

func (r *Reconciler[P]) WithObserver(o Observer) *Reconciler[P] {
	r.observer = o
	return r
}

func (r *Reconciler[P]) WithNotices(n *Notices) *Reconciler[P] {
	r.notices = n
	return r
}

func (r *Reconciler[P]) WithMachine(m *Machine) *Reconciler[P] {
	r.machine = m
	return r
}

// Store returns the store being reconciled.
func (r *Reconciler[P]) Store() *Store[P] { return r.store }

// IDs returns the temporary id generator.
func (r *Reconciler[P]) IDs() IDGenerator { return r.ids }

// Create inserts payload under a temporary id, then swaps in the confirmed
// record or removes it. On failure the returned record has StatusFailed.
func (r *Reconciler[P]) Create(ctx context.Context, payload P) (Record[P], error) {
	if err := payload.Validate(); err != nil {
		return Record[P]{}, asValidation(err)
	}

	tempID := r.ids.NewTemporaryID()
	pending := Record[P]{ID: tempID, Payload: payload.Clone(), Status: StatusPending}
	if err := r.store.Insert(pending); err != nil {
		return Record[P]{}, err
	}

	m := r.begin(OpCreate, tempID)

	var (
		created Record[P]
		err     error
	)
	if ic, ok := r.remote.(IdempotentCreator[P]); ok {
		created, err = ic.CreateIdempotent(ctx, tempID, payload.Clone())
	} else {
		created, err = r.remote.Create(ctx, payload.Clone())
	}
	if err == nil && created.ID == "" {
		err = errors.Join(gateway.ErrMalformed, errors.New("created record has no id"))
	}

	if err != nil {
		pending.Status = StatusFailed
		if _, _, rmErr := r.store.RemoveByID(tempID); errors.Is(rmErr, ErrStoreClosed) {
			m.settle(OutcomeDiscarded)
			return pending, ErrStoreClosed
		}
		return pending, m.fail(err)
	}

	created.Status = StatusConfirmed
	switch err := r.store.ReplaceByID(tempID, created); {
	case errors.Is(err, ErrStoreClosed):
		m.settle(OutcomeDiscarded)
		return created, ErrStoreClosed
	case errors.Is(err, ErrNotFound):
		m.log.WithField("record_id", created.ID).Debug("temporary record gone before confirmation")
	}
	m.log = m.log.WithField("record_id", created.ID)
	m.settle(OutcomeConfirmed)
	return created, nil
}

// Update replaces the payload of id optimistically and restores the previous
// payload if the gateway rejects it.
func (r *Reconciler[P]) Update(ctx context.Context, id string, payload P) (Record[P], error) {
	if id == "" {
		return Record[P]{}, Invalid("id", "required")
	}
	if err := payload.Validate(); err != nil {
		return Record[P]{}, asValidation(err)
	}
	snapshot, err := r.store.beginUpdate(id, Record[P]{ID: id, Payload: payload.Clone(), Status: StatusPending})
	if err != nil {
		return Record[P]{}, guardError(id, err)
	}

	m := r.begin(OpUpdate, id)

	updated, err := r.remote.Update(ctx, id, payload.Clone())
	if err != nil {
		switch rbErr := r.store.ReplaceByID(id, snapshot); {
		case errors.Is(rbErr, ErrStoreClosed):
			m.settle(OutcomeDiscarded)
			return Record[P]{}, ErrStoreClosed
		case errors.Is(rbErr, ErrNotFound):
			m.log.Debug("record gone before rollback")
		}
		failed := snapshot
		failed.Status = StatusFailed
		return failed, m.fail(err)
	}

	if updated.ID == "" {
		updated.ID = id
	}
	updated.Status = StatusConfirmed
	switch err := r.store.ReplaceByID(id, updated); {
	case errors.Is(err, ErrStoreClosed):
		m.settle(OutcomeDiscarded)
		return updated, ErrStoreClosed
	case errors.Is(err, ErrNotFound):
		m.log.Debug("record gone before confirmation")
	}
	m.settle(OutcomeConfirmed)
	return updated, nil
}

// Delete removes id optimistically and puts it back at its original position
// if the gateway rejects the deletion. A gateway NotFound counts as success.
func (r *Reconciler[P]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return Invalid("id", "required")
	}
	removed, index, err := r.store.beginDelete(id)
	if err != nil {
		return guardError(id, err)
	}
	defer r.store.clearDeleting(id)

	m := r.begin(OpDelete, id)

	err = r.remote.Delete(ctx, id)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		if rbErr := r.store.InsertAt(index, removed); errors.Is(rbErr, ErrStoreClosed) {
			m.settle(OutcomeDiscarded)
			return ErrStoreClosed
		}
		return m.fail(err)
	}
	if err != nil {
		m.log.Debug("record already deleted remotely")
	}
	if r.store.Closed() {
		m.settle(OutcomeDiscarded)
		return ErrStoreClosed
	}
	m.settle(OutcomeConfirmed)
	return nil
}

// guardError turns a refused begin into the validation error the caller sees.
func guardError(id string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return Invalid("id", "unknown record "+id)
	case errors.Is(err, errInProgress):
		return Invalid("id", "a change to this record is still in progress")
	default:
		return err
	}
}

type mutation struct {
	r       settler
	op      Op
	log     logrus.FieldLogger
	settled atomic.Bool
}

type settler interface {
	settled(op Op, outcome Outcome)
	report(err error)
}

func (r *Reconciler[P]) begin(op Op, id string) *mutation {
	if r.machine != nil {
		r.machine.Begin()
	}
	r.observer.MutationStarted(r.entity, op)
	log := r.log.WithFields(logrus.Fields{
		"entity":      r.entity,
		"op":          string(op),
		"mutation_id": id,
	})
	log.Debug("mutation applied locally")
	return &mutation{r: r, op: op, log: log}
}

// settle records the single terminal transition of a mutation. Later calls
// are ignored.
func (m *mutation) settle(outcome Outcome) {
	if !m.settled.CompareAndSwap(false, true) {
		return
	}
	switch outcome {
	case OutcomeDiscarded:
		m.log.Debug("store closed, result discarded")
	case OutcomeRolledBack:
		m.log.Info("mutation rolled back")
	default:
		m.log.Debug("mutation confirmed")
	}
	m.r.settled(m.op, outcome)
}

func (m *mutation) fail(err error) error {
	gwErr := newGatewayError(m.op, err)
	m.log = m.log.WithFields(logrus.Fields{"kind": string(gwErr.Kind), "error": err.Error()})
	m.settle(OutcomeRolledBack)
	m.r.report(gwErr)
	return gwErr
}

func (r *Reconciler[P]) settled(op Op, outcome Outcome) {
	if r.machine != nil {
		_ = r.machine.Settle(outcome != OutcomeRolledBack)
	}
	r.observer.MutationSettled(r.entity, op, outcome)
}

func (r *Reconciler[P]) report(err error) {
	if r.notices != nil {
		r.notices.Report(err)
	}
}
