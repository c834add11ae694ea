// Package site implements the replica host and per-variable lock manager of
// SPEC_FULL.md §4.2: a Site owns a set of Variables and a lock table keyed
// by variable id, and exposes the apply_lock/release_lock/execute/commit/
// undo/dump/fail/recover contract the transaction manager drives.
package site

import (
	"fmt"
	"io"
	"sort"

	"repcrec/internal/clock"
	"repcrec/internal/ids"
)

// Status is a site's availability.
type Status int

const (
	Available Status = iota
	Failed
)

// Lock is (transaction, variable, mode); equality is by the triple, as
// SPEC_FULL.md §3 requires.
type Lock struct {
	TxnID ids.TxnID
	VarID ids.VarID
	Mode  ids.OpType
}

// LockResult is the outcome of Site.ApplyLock.
type LockResult int

const (
	LockGranted LockResult = iota
	LockUpgradable
	LockConflict
	LockSiteFailed
	LockNoSuchVariable
	LockRecoveredReplicaBlock
)

// ReleaseResult is the outcome of Site.ReleaseLock.
type ReleaseResult int

const (
	ReleaseReleased ReleaseResult = iota
	ReleaseSiteFailed
	ReleaseNoSuchVariable
	ReleaseCoveredByWrite
	ReleaseNotFound
)

// Site is a replica host: a set of Variables plus their lock queues, and the
// site's own availability.
//
// Site is not safe for concurrent use; the transaction manager serializes
// all access to it, per SPEC_FULL.md §5.
type Site struct {
	ID     ids.SiteID
	status Status

	variables map[ids.VarID]*Variable
	lockTable map[ids.VarID][]Lock
}

// New creates a Site hosting the given variables, each seeded at its initial
// value and committed at the origin timestamp.
func New(id ids.SiteID, initialValues map[ids.VarID]int, origin clock.Timestamp) *Site {
	s := &Site{
		ID:        id,
		status:    Available,
		variables: make(map[ids.VarID]*Variable, len(initialValues)),
		lockTable: make(map[ids.VarID][]Lock, len(initialValues)),
	}
	for vid, value := range initialValues {
		s.variables[vid] = newVariable(vid, value, origin)
		s.lockTable[vid] = nil
	}
	return s
}

// Status reports whether the site is currently available.
func (s *Site) Status() Status { return s.status }

// HasVariable reports whether this site hosts a replica of vid.
func (s *Site) HasVariable(vid ids.VarID) bool {
	_, ok := s.variables[vid]
	return ok
}

// ApplyLock attempts to apply lock to its variable's lock queue. A lock on a
// free variable, or a read lock beside other transactions' read locks, is
// granted and queued even with force=false. When the requester already holds
// the write lock, already holds a read lock, or is the sole reader asking for
// a write lock, force=false only reports Upgradable and force=true performs
// the grant or upgrade. See SPEC_FULL.md §4.2's compatibility table.
func (s *Site) ApplyLock(lock Lock, force bool) LockResult {
	if s.status == Failed {
		return LockSiteFailed
	}

	v, ok := s.variables[lock.VarID]
	if !ok {
		return LockNoSuchVariable
	}

	if v.IsRecovered && lock.Mode == ids.OpRead && int(lock.VarID)%2 == 0 {
		return LockRecoveredReplicaBlock
	}

	switch v.LockStatus {
	case LockFree:
		s.grant(lock)
		return LockGranted

	case LockWriteHeld:
		holder := s.lockTable[lock.VarID][0].TxnID
		if holder != lock.TxnID {
			return LockConflict
		}
		// The requester already holds the write lock: any request type
		// (read or write) is a no-op grant.
		if force {
			return LockGranted
		}
		return LockUpgradable

	case LockReadHeld:
		queue := s.lockTable[lock.VarID]
		if lock.Mode == ids.OpWrite {
			if len(queue) == 1 && queue[0].TxnID == lock.TxnID {
				if force {
					s.upgradeToWrite(lock)
					return LockGranted
				}
				return LockUpgradable
			}
			return LockConflict
		}
		for _, held := range queue {
			if held.TxnID == lock.TxnID {
				if force {
					return LockGranted
				}
				return LockUpgradable
			}
		}
		s.grant(lock)
		return LockGranted
	}

	return LockConflict
}

func (s *Site) grant(lock Lock) {
	s.lockTable[lock.VarID] = append(s.lockTable[lock.VarID], lock)
	v := s.variables[lock.VarID]
	if lock.Mode == ids.OpWrite {
		v.LockStatus = LockWriteHeld
	} else {
		v.LockStatus = LockReadHeld
	}
}

func (s *Site) upgradeToWrite(lock Lock) {
	s.lockTable[lock.VarID] = []Lock{lock}
	s.variables[lock.VarID].LockStatus = LockWriteHeld
}

// LockHolders returns the transaction ids currently holding a lock on vid,
// in queue order. It is empty if the variable is unknown or its queue is
// empty.
func (s *Site) LockHolders(vid ids.VarID) []ids.TxnID {
	queue := s.lockTable[vid]
	holders := make([]ids.TxnID, 0, len(queue))
	for _, held := range queue {
		holders = append(holders, held.TxnID)
	}
	return holders
}

// ReleaseLock releases lock from its variable's queue.
func (s *Site) ReleaseLock(lock Lock) ReleaseResult {
	if s.status == Failed {
		return ReleaseSiteFailed
	}

	v, ok := s.variables[lock.VarID]
	if !ok {
		return ReleaseNoSuchVariable
	}

	queue := s.lockTable[lock.VarID]

	if lock.Mode == ids.OpRead && v.LockStatus == LockWriteHeld {
		if len(queue) > 0 && queue[0].TxnID == lock.TxnID {
			return ReleaseCoveredByWrite
		}
	}

	idx := -1
	for i, held := range queue {
		if held == lock {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ReleaseNotFound
	}

	queue = append(queue[:idx], queue[idx+1:]...)
	s.lockTable[lock.VarID] = queue
	if len(queue) == 0 {
		v.LockStatus = LockFree
	}
	return ReleaseReleased
}

// Execute performs a read or write against the variable's current value, per
// the RO/RW policy of SPEC_FULL.md §4.2. It writes the observable read-result
// line directly to out on a successful read; writes are silent until commit.
// It reports whether the operation could be executed here at all.
func (s *Site) Execute(out io.Writer, opType ids.OpType, varID ids.VarID, value int, txnID ids.TxnID, kind ids.Kind, startTime clock.Timestamp) bool {
	if s.status == Failed {
		return false
	}
	v, ok := s.variables[varID]
	if !ok {
		return false
	}

	if kind == ids.RO {
		if opType != ids.OpRead {
			return false
		}
		if v.IsRecovered && int(varID)%2 == 0 {
			return false
		}
		fmt.Fprintf(out, "T%d read last COMMITTED variable %d on site%d returns %d.\n",
			txnID, varID, s.ID, v.CommittedValue(startTime))
		return true
	}

	if v.IsRecovered {
		if opType == ids.OpRead {
			if int(varID)%2 == 0 {
				return false
			}
			fmt.Fprintf(out, "T%d read variable %d on site%d returns %d.\n", txnID, varID, s.ID, v.Value())
			return true
		}
		v.SetValue(value)
		return true
	}

	if opType == ids.OpRead {
		fmt.Fprintf(out, "T%d read variable %d on site%d returns %d.\n", txnID, varID, s.ID, v.Value())
		return true
	}
	v.SetValue(value)
	return true
}

// Commit commits the variable's current value for a write operation,
// clearing the variable's is_recovered bit if it was set. Reads (and any
// operation from an RO transaction) have nothing to commit and succeed as a
// no-op.
func (s *Site) Commit(opType ids.OpType, varID ids.VarID, kind ids.Kind, at clock.Timestamp) bool {
	if s.status == Failed {
		return false
	}
	v, ok := s.variables[varID]
	if !ok {
		return false
	}
	if opType == ids.OpRead || kind == ids.RO {
		return true
	}
	v.Commit(at)
	v.IsRecovered = false
	return true
}

// Undo reverts the variable's current value to its last committed value.
// Reads need no undo and are a no-op.
func (s *Site) Undo(opType ids.OpType, varID ids.VarID) bool {
	if s.status == Failed {
		return false
	}
	v, ok := s.variables[varID]
	if !ok {
		return true
	}
	if opType == ids.OpRead {
		return true
	}
	v.Undo()
	return true
}

// Dump writes the last-committed value of every hosted variable, ascending
// by variable id, in the format required by SPEC_FULL.md §6.
func (s *Site) Dump(out io.Writer) {
	varIDs := make([]int, 0, len(s.variables))
	for vid := range s.variables {
		varIDs = append(varIDs, int(vid))
	}
	sort.Ints(varIDs)

	fmt.Fprintf(out, "site %d -", s.ID)
	for _, vid := range varIDs {
		v := s.variables[ids.VarID(vid)]
		fmt.Fprintf(out, " x%d: %d,", vid, v.LastCommittedValue())
	}
	fmt.Fprintln(out)
}

// Fail marks the site unavailable, clearing every lock queue and resetting
// every variable's lock status to free (SPEC_FULL.md §4.2).
func (s *Site) Fail() {
	s.status = Failed
	for vid := range s.lockTable {
		s.lockTable[vid] = nil
	}
	for _, v := range s.variables {
		v.LockStatus = LockFree
	}
}

// Recover marks the site available again, resets every variable's current
// value to its last committed value, and sets every variable's is_recovered
// bit so reads of even-indexed replicas are blocked until a write commits.
func (s *Site) Recover() {
	s.status = Available
	for _, v := range s.variables {
		v.current = v.LastCommittedValue()
		v.IsRecovered = true
	}
}
