package reconcile

// Outcome is the terminal state of one mutation.
type Outcome string

const (
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeDiscarded  Outcome = "discarded"
)

// Observer is told when mutations start and settle.
type Observer interface {
	MutationStarted(entity string, op Op)
	MutationSettled(entity string, op Op, outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) MutationStarted(string, Op)          {}
func (nopObserver) MutationSettled(string, Op, Outcome) {}
