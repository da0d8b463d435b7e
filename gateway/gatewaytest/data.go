// Package gatewaytest provides in-memory gateways with failure injection.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"recreo/gateway"
)

// Data is an in-memory gateway.Data and gateway.IdempotentInserter.
type Data struct {
	mu     sync.Mutex
	tables map[string][]gateway.Row
	owners map[string]string
	keys   map[string]gateway.Row
	fail   map[string]error
	once   map[string]error
	nextID int
	clock  time.Time
	gate   chan struct{}
	calls  map[string]int
}

// NewData returns an empty store.
func NewData() *Data {
	return &Data{
		tables: make(map[string][]gateway.Row),
		owners: make(map[string]string),
		keys:   make(map[string]gateway.Row),
		fail:   make(map[string]error),
		once:   make(map[string]error),
		calls:  make(map[string]int),
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// WithOwner scopes writes on table to rows whose column matches the actor.
func (d *Data) WithOwner(table, column string) *Data {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners[table] = column
	return d
}

// Fail makes every op ("query", "insert", "update", "delete") on table fail
// with err. A nil err clears the failure.
func (d *Data) Fail(op, table string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, op+":"+table)
		return
	}
	d.fail[op+":"+table] = err
}

// FailOnce makes the next op on table fail with err.
func (d *Data) FailOnce(op, table string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.once[op+":"+table] = err
}

// Hold blocks every call until the returned release func is called.
func (d *Data) Hold() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			d.gate = nil
			d.mu.Unlock()
			close(gate)
		})
	}
}

// Calls reports how many times op was invoked on table.
func (d *Data) Calls(op, table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op+":"+table]
}

// Seed inserts rows directly, bypassing failures and ownership.
func (d *Data) Seed(table string, rows ...gateway.Row) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, row := range rows {
		d.tables[table] = append(d.tables[table], d.stamp(copyRow(row)))
	}
}

// Rows returns a copy of every row in table in insertion order.
func (d *Data) Rows(table string) []gateway.Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]gateway.Row, 0, len(d.tables[table]))
	for _, row := range d.tables[table] {
		out = append(out, copyRow(row))
	}
	return out
}

func (d *Data) Query(ctx context.Context, table string, filter gateway.Filter, order *gateway.Order) ([]gateway.Row, error) {
	if err := d.enter(ctx, "query", table); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	out := []gateway.Row{}
	for _, row := range d.tables[table] {
		if matches(row, filter) {
			out = append(out, copyRow(row))
		}
	}
	if order != nil {
		sort.SliceStable(out, func(i, j int) bool {
			c := compare(out[i][order.Column], out[j][order.Column])
			if order.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	return out, nil
}

func (d *Data) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	if err := d.enter(ctx, "insert", table); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.insertLocked(table, row), nil
}

func (d *Data) InsertIdempotent(ctx context.Context, table, key string, row gateway.Row) (gateway.Row, error) {
	if err := d.enter(ctx, "insert", table); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.keys[table+":"+key]; ok {
		return copyRow(existing), nil
	}
	created := d.insertLocked(table, row)
	d.keys[table+":"+key] = copyRow(created)
	return created, nil
}

func (d *Data) Update(ctx context.Context, table, id string, patch gateway.Row) (gateway.Row, error) {
	if err := d.enter(ctx, "update", table); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, err := d.locate(ctx, table, id)
	if err != nil {
		return nil, err
	}
	row := d.tables[table][idx]
	for k, v := range patch {
		if k == "id" {
			continue
		}
		row[k] = v
	}
	row["updated_at"] = d.tick()
	return copyRow(row), nil
}

func (d *Data) Delete(ctx context.Context, table, id string) error {
	if err := d.enter(ctx, "delete", table); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, err := d.locate(ctx, table, id)
	if err != nil {
		return err
	}
	rows := d.tables[table]
	d.tables[table] = append(rows[:idx], rows[idx+1:]...)
	return nil
}

func (d *Data) enter(ctx context.Context, op, table string) error {
	d.mu.Lock()
	d.calls[op+":"+table]++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", gateway.ErrUnavailable, ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.once[op+":"+table]; ok {
		delete(d.once, op+":"+table)
		return err
	}
	return d.fail[op+":"+table]
}

func (d *Data) insertLocked(table string, row gateway.Row) gateway.Row {
	created := d.stamp(copyRow(row))
	d.tables[table] = append(d.tables[table], created)
	return copyRow(created)
}

func (d *Data) stamp(row gateway.Row) gateway.Row {
	if id, _ := row["id"].(string); id == "" {
		d.nextID++
		row["id"] = fmt.Sprintf("row-%d", d.nextID)
	}
	if _, ok := row["created_at"]; !ok {
		now := d.tick()
		row["created_at"] = now
		row["updated_at"] = now
	}
	return row
}

func (d *Data) tick() time.Time {
	d.clock = d.clock.Add(time.Second)
	return d.clock
}

func (d *Data) locate(ctx context.Context, table, id string) (int, error) {
	for i, row := range d.tables[table] {
		if row["id"] != id {
			continue
		}
		if col, scoped := d.owners[table]; scoped {
			actor, ok := gateway.ActorFromContext(ctx)
			if !ok {
				return -1, gateway.ErrUnauthorized
			}
			if fmt.Sprint(row[col]) != actor {
				return -1, fmt.Errorf("%w: %s %s is owned by another user", gateway.ErrForbidden, table, id)
			}
		}
		return i, nil
	}
	return -1, fmt.Errorf("%w: %s %s", gateway.ErrNotFound, table, id)
}

func matches(row gateway.Row, filter gateway.Filter) bool {
	for k, v := range filter {
		if fmt.Sprint(row[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func compare(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return av - bv
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func copyRow(row gateway.Row) gateway.Row {
	out := make(gateway.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
