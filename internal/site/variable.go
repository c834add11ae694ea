package site

import (
	"repcrec/internal/clock"
	"repcrec/internal/ids"
)

// commitEntry is one (timestamp, value) pair in a Variable's commit history.
type commitEntry struct {
	at    clock.Timestamp
	value int
}

// Variable is the value and multi-version commit history of one variable at
// one site (SPEC_FULL.md §4.1). A Variable is always owned by exactly one
// Site and is never shared between sites — even a replicated even-indexed
// variable has one independent Variable instance per hosting site.
type Variable struct {
	ID ids.VarID

	current int
	history []commitEntry

	// LockStatus reflects the Site's lock table for this variable: free,
	// read, or write. The Site, not the Variable, is the source of truth
	// for lock queues; this field is kept in sync by Site so callers can
	// inspect a variable's lock state without reaching into the lock table.
	LockStatus LockStatus

	// IsRecovered is set on every variable when its Site recovers, and
	// cleared on a variable the moment a committed write lands on it
	// (§3's is_recovered flag).
	IsRecovered bool
}

// LockStatus is the tri-state lock status of a variable at a site.
type LockStatus int

const (
	LockFree LockStatus = iota
	LockReadHeld
	LockWriteHeld
)

// newVariable creates a Variable with an initial committed value at the
// origin timestamp.
func newVariable(id ids.VarID, initialValue int, origin clock.Timestamp) *Variable {
	return &Variable{
		ID:      id,
		current: initialValue,
		history: []commitEntry{{at: origin, value: initialValue}},
	}
}

// SetValue updates the uncommitted current value.
func (v *Variable) SetValue(value int) {
	v.current = value
}

// Value returns the uncommitted current value.
func (v *Variable) Value() int {
	return v.current
}

// Commit appends (at, current value) to the history.
func (v *Variable) Commit(at clock.Timestamp) {
	v.history = append(v.history, commitEntry{at: at, value: v.current})
}

// CommittedValue returns the value with the greatest history timestamp <=
// at, i.e. the last value committed no later than at.
func (v *Variable) CommittedValue(at clock.Timestamp) int {
	best := v.history[0]
	for _, entry := range v.history[1:] {
		if !entry.at.After(at) && entry.at.After(best.at) {
			best = entry
		}
	}
	return best.value
}

// LastCommittedValue returns the most recently committed value, regardless
// of timestamp.
func (v *Variable) LastCommittedValue() int {
	return v.history[len(v.history)-1].value
}

// Undo sets the current value back to the most recently committed value.
// Undo is idempotent: calling it again before another write is a no-op.
func (v *Variable) Undo() {
	v.current = v.LastCommittedValue()
}
