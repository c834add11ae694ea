package txn

import (
	"repcrec/internal/clock"
	"repcrec/internal/ids"
)

// Transaction is the manager's record of a running transaction: its kind,
// its start timestamp, the operations it has issued, whether it has been
// latched for abort, and the sites it has successfully operated on.
type Transaction struct {
	ID        ids.TxnID
	Kind      ids.Kind
	StartTime clock.Timestamp

	Ops []*Operation

	// Abort is latched true by a failure of a site the transaction touched;
	// the manager will not let it commit. A deadlock victim is aborted
	// immediately instead and never has this flag set.
	Abort bool

	// FailedSites is the ordered list of sites this transaction touched that
	// later failed, used to word the abort reason at end().
	FailedSites []ids.SiteID

	// AccessedSites is the set of sites this transaction has successfully
	// executed an operation on.
	AccessedSites map[ids.SiteID]struct{}
}

func newTransaction(id ids.TxnID, kind ids.Kind, startTime clock.Timestamp) *Transaction {
	return &Transaction{
		ID:            id,
		Kind:          kind,
		StartTime:     startTime,
		AccessedSites: make(map[ids.SiteID]struct{}),
	}
}
