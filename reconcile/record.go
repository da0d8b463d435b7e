// Package reconcile applies user mutations to a screen-local store before the
// remote gateway confirms them, then either confirms or rolls back each one
// exactly once.
package reconcile

// Status tracks where a Record is in its reconciliation lifecycle.
type Status string

const (
	// StatusPending marks a tentative, optimistically applied value.
	StatusPending Status = "pending"
	// StatusConfirmed marks a value accepted by the remote gateway.
	StatusConfirmed Status = "confirmed"
	// StatusFailed marks a mutation that was rolled back.
	StatusFailed Status = "failed"
)

// Payload is the domain data carried by a Record. Validate performs the
// minimal checks done before any local effect; Clone returns a deep copy so
// snapshots survive later edits.
type Payload[P any] interface {
	Validate() error
	Clone() P
}

// Record is one logical entity in a Store.
type Record[P Payload[P]] struct {
	ID      string
	Payload P
	Status  Status
}

func (r Record[P]) clone() Record[P] {
	r.Payload = r.Payload.Clone()
	return r
}

// Confirmed wraps a payload returned by a gateway as a confirmed Record.
func Confirmed[P Payload[P]](id string, payload P) Record[P] {
	return Record[P]{ID: id, Payload: payload, Status: StatusConfirmed}
}
