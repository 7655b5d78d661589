package domain

// TxHandle is the opaque id the ledger returns for an accepted command.
type TxHandle string

// Status is the state of a submitted transaction.
type Status string

const (
	Pending   Status = "pending"
	Confirmed Status = "confirmed"
	Rejected  Status = "rejected"
	TimedOut  Status = "timed-out"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool { return s != Pending && s != "" }

// Outcome is what the ledger (or the poller on its behalf) reports for a
// transaction handle.
type Outcome struct {
	Handle  TxHandle
	Status  Status
	TempIDs map[ID]ID
	Reason  string
}

// Permanent returns the ledger id assigned to a temporary id.
func (o Outcome) Permanent(temp ID) (ID, bool) {
	id, ok := o.TempIDs[temp]
	return id, ok && id != ""
}
