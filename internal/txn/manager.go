// Package txn implements the transaction manager: the coordinator that
// routes read/write commands to sites, acquires locks, maintains the wait
// list, detects deadlocks via the wait-for graph, and reacts to commit,
// abort, site failure, and site recovery.
package txn

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"repcrec/internal/clock"
	"repcrec/internal/config"
	"repcrec/internal/graph"
	"repcrec/internal/ids"
	"repcrec/internal/obslog"
	"repcrec/internal/site"
)

// Manager is the transaction-manager coordinator. It owns every site, the
// wait-for graph, the transaction table, and the wait list.
//
// Manager is not safe for concurrent use from multiple goroutines: the
// command stream it serves is serial by construction (§5), and every method
// here assumes exclusive access to the manager's state for its duration.
type Manager struct {
	topology config.Topology
	clock    *clock.Clock
	log      zerolog.Logger

	sites    map[ids.SiteID]*site.Site
	varSites map[ids.VarID][]ids.SiteID

	transactions map[ids.TxnID]*Transaction
	graph        *graph.Graph
	waitlist     []*Operation

	nextOpID uint64
}

// New builds a Manager over topo, with every site available and every
// variable at its initial committed value.
func New(topo config.Topology) *Manager {
	m := &Manager{
		topology:     topo,
		clock:        clock.New(),
		log:          obslog.WithComponent("txn"),
		sites:        make(map[ids.SiteID]*site.Site),
		varSites:     make(map[ids.VarID][]ids.SiteID),
		transactions: make(map[ids.TxnID]*Transaction),
		graph:        graph.New(),
	}

	siteVars := make(map[ids.SiteID]map[ids.VarID]int)
	for s := 1; s <= topo.SiteCount; s++ {
		siteVars[ids.SiteID(s)] = make(map[ids.VarID]int)
	}
	for v := 1; v <= topo.VariableCount; v++ {
		vid := ids.VarID(v)
		hosts := topo.HostingSites(v)
		sids := make([]ids.SiteID, 0, len(hosts))
		for _, h := range hosts {
			sids = append(sids, ids.SiteID(h))
			siteVars[ids.SiteID(h)][vid] = topo.InitialValue(v)
		}
		m.varSites[vid] = sids
	}

	origin := m.clock.Now()
	for s := 1; s <= topo.SiteCount; s++ {
		sid := ids.SiteID(s)
		m.sites[sid] = site.New(sid, siteVars[sid], origin)
	}
	return m
}

func (m *Manager) newOperation(txnID ids.TxnID, opType ids.OpType, varID ids.VarID, value int) *Operation {
	m.nextOpID++
	return &Operation{ID: m.nextOpID, TxnID: txnID, Type: opType, VarID: varID, Value: value}
}

// Begin starts a read-write transaction with the given id.
func (m *Manager) Begin(out io.Writer, txnID ids.TxnID) {
	m.start(out, txnID, ids.RW)
}

// BeginRO starts a read-only transaction with the given id.
func (m *Manager) BeginRO(out io.Writer, txnID ids.TxnID) {
	m.start(out, txnID, ids.RO)
}

func (m *Manager) start(out io.Writer, txnID ids.TxnID, kind ids.Kind) {
	if _, exists := m.transactions[txnID]; exists {
		m.log.Warn().Stringer("txn", txnID).Msg("begin on an already-running transaction id")
		return
	}
	fmt.Fprintf(out, "Start T%d\n", txnID)
	tx := newTransaction(txnID, kind, m.clock.Now())
	m.transactions[txnID] = tx
	m.graph.Insert(txnID)
}

// Read issues a read of varID within txnID, executing it immediately if
// possible and enqueueing it on the wait list otherwise.
func (m *Manager) Read(out io.Writer, txnID ids.TxnID, varID ids.VarID) {
	tx, ok := m.transactions[txnID]
	if !ok {
		m.log.Warn().Stringer("txn", txnID).Msg("read on an unknown transaction")
		return
	}

	op := m.newOperation(txnID, ids.OpRead, varID, 0)
	tx.Ops = append(tx.Ops, op)

	if tx.Kind == ids.RW {
		if m.acquireLocks(op, false) && len(op.Locks) > 0 {
			for _, sid := range op.Locks {
				if m.sites[sid].Execute(out, ids.OpRead, varID, 0, txnID, ids.RW, tx.StartTime) {
					op.Executed = true
					tx.AccessedSites[sid] = struct{}{}
					break
				}
			}
		}
	} else {
		for _, sid := range m.varSites[varID] {
			if m.sites[sid].Execute(out, ids.OpRead, varID, 0, txnID, ids.RO, tx.StartTime) {
				op.Executed = true
				break
			}
		}
	}

	if !op.Executed {
		m.enqueue(out, op)
	}
}

// Write issues a write of value to varID within txnID, across every
// available site hosting varID, executing immediately if every such site's
// lock can be acquired and enqueueing otherwise.
func (m *Manager) Write(out io.Writer, txnID ids.TxnID, varID ids.VarID, value int) {
	tx, ok := m.transactions[txnID]
	if !ok {
		m.log.Warn().Stringer("txn", txnID).Msg("write on an unknown transaction")
		return
	}

	op := m.newOperation(txnID, ids.OpWrite, varID, value)
	tx.Ops = append(tx.Ops, op)

	if m.acquireLocks(op, false) && len(op.Locks) > 0 {
		executed := true
		for _, sid := range op.Locks {
			if !m.sites[sid].Execute(out, ids.OpWrite, varID, value, txnID, ids.RW, tx.StartTime) {
				executed = false
				break
			}
		}
		if executed {
			op.Executed = true
			for _, sid := range op.Locks {
				tx.AccessedSites[sid] = struct{}{}
			}
		}
	}

	if !op.Executed {
		m.enqueue(out, op)
	}
}

// acquireLocks tries to acquire op's lock at every site hosting op.VarID,
// per §4.4's acquire_locks policy. fromWaitlist indicates op was dequeued
// from the wait list (an upgradable result is force-applied unconditionally
// in that case). On any conflict the attempt is abandoned and every lock
// already recorded this attempt is released.
func (m *Manager) acquireLocks(op *Operation, fromWaitlist bool) bool {
	lock := site.Lock{TxnID: op.TxnID, VarID: op.VarID, Mode: op.Type}
	granted := true

	for _, sid := range m.varSites[op.VarID] {
		s := m.sites[sid]
		switch s.ApplyLock(lock, false) {
		case site.LockGranted:
			op.Locks = append(op.Locks, sid)

		case site.LockUpgradable:
			if fromWaitlist {
				s.ApplyLock(lock, true)
				op.Locks = append(op.Locks, sid)
				break
			}

			if m.hasOtherWaiter(op) {
				granted = false
			} else {
				s.ApplyLock(lock, true)
				op.Locks = append(op.Locks, sid)
			}

		case site.LockConflict:
			granted = false

		case site.LockSiteFailed, site.LockNoSuchVariable, site.LockRecoveredReplicaBlock:
			// This replica is simply not used for the attempt.
		}

		if !granted {
			break
		}
	}

	if !granted {
		for _, sid := range op.Locks {
			m.sites[sid].ReleaseLock(lock)
		}
		op.Locks = nil
	}
	return granted
}

// hasOtherWaiter reports whether some operation on the same variable but a
// different transaction is already on the wait list.
func (m *Manager) hasOtherWaiter(op *Operation) bool {
	for _, w := range m.waitlist {
		if w.VarID == op.VarID && w.TxnID != op.TxnID {
			return true
		}
	}
	return false
}

// enqueue places op on the wait list, records a wait-for edge per §4.4's
// edge-addition rule, and resolves any resulting deadlock.
func (m *Manager) enqueue(out io.Writer, op *Operation) {
	m.waitlist = append(m.waitlist, op)

	updated := false
	for i := len(m.waitlist) - 1; i >= 0; i-- {
		waitOp := m.waitlist[i]
		if waitOp.VarID == op.VarID && waitOp.TxnID != op.TxnID {
			m.graph.AddEdge(op.TxnID, waitOp.TxnID)
			updated = true
			break
		}
	}
	if !updated {
		for _, sid := range m.varSites[op.VarID] {
			for _, holder := range m.sites[sid].LockHolders(op.VarID) {
				m.graph.AddEdge(op.TxnID, holder)
			}
		}
	}

	m.resolveDeadlocks(out)
}

// resolveDeadlocks repeatedly detects a cycle in the wait-for graph and
// aborts the youngest transaction in it until the graph is acyclic.
func (m *Manager) resolveDeadlocks(out io.Writer) {
	for {
		cycle := m.graph.DetectCycle()
		if len(cycle) <= 1 {
			return
		}
		youngest := cycle[0]
		for _, t := range cycle {
			if m.transactions[t].StartTime.After(m.transactions[youngest].StartTime) {
				youngest = t
			}
		}
		m.log.Info().Stringer("txn", youngest).Msg("deadlock detected, aborting youngest transaction")
		m.abort(out, m.transactions[youngest], "aborted due to deadlock")
	}
}

// removeWaitlistOp removes op from the wait list by identity.
func (m *Manager) removeWaitlistOp(op *Operation) {
	for i, w := range m.waitlist {
		if w == op {
			m.waitlist = append(m.waitlist[:i], m.waitlist[i+1:]...)
			return
		}
	}
}

// execWaitlist re-examines the wait list for varID per §4.5, after a lock
// release or a site recovery frees something up for that variable.
func (m *Manager) execWaitlist(out io.Writer, varID ids.VarID) {
	execAgain := false

	for _, op := range m.waitlist {
		if op.VarID != varID {
			continue
		}

		tx := m.transactions[op.TxnID]
		if tx == nil {
			// The owning transaction was aborted out from under this op.
			m.removeWaitlistOp(op)
			execAgain = true
			break
		}

		if tx.Kind != ids.RW {
			for _, sid := range m.varSites[op.VarID] {
				if m.sites[sid].Execute(out, ids.OpRead, varID, 0, op.TxnID, ids.RO, tx.StartTime) {
					op.Executed = true
					break
				}
			}
			m.removeWaitlistOp(op)
			execAgain = true
			break
		}

		if m.acquireLocks(op, true) && len(op.Locks) > 0 {
			if op.Type == ids.OpRead {
				for _, sid := range op.Locks {
					if m.sites[sid].Execute(out, ids.OpRead, varID, 0, op.TxnID, ids.RW, tx.StartTime) {
						op.Executed = true
						break
					}
				}
			} else {
				executed := true
				for _, sid := range op.Locks {
					if !m.sites[sid].Execute(out, ids.OpWrite, varID, op.Value, op.TxnID, ids.RW, tx.StartTime) {
						executed = false
						break
					}
				}
				if executed {
					op.Executed = true
				}
			}
		}

		if op.Executed {
			m.removeWaitlistOp(op)
			for _, sid := range op.Locks {
				tx.AccessedSites[sid] = struct{}{}
			}
			if op.Type == ids.OpRead {
				for _, next := range m.waitlist {
					if next.VarID == varID && (next.Type == ids.OpRead || next.TxnID == op.TxnID) {
						execAgain = true
						break
					}
				}
			}
		}
		break
	}

	if execAgain {
		m.execWaitlist(out, varID)
	}
}

// End attempts to commit txnID, or aborts it if it was latched for abort by
// a site failure or still has a pending operation on the wait list.
func (m *Manager) End(out io.Writer, txnID ids.TxnID) {
	tx, ok := m.transactions[txnID]
	if !ok {
		m.log.Warn().Stringer("txn", txnID).Msg("end on an unknown transaction")
		return
	}

	if tx.Abort {
		m.abort(out, tx, fmt.Sprintf("it accessed site %d and it failed later.", tx.FailedSites[0]))
		return
	}

	for _, op := range tx.Ops {
		if !op.Executed {
			m.abort(out, tx, "it failed to get all required locks to work.")
			return
		}
	}

	now := m.clock.Now()
	committed := true
	for _, op := range tx.Ops {
		for _, sid := range op.Locks {
			if !m.sites[sid].Commit(op.Type, op.VarID, tx.Kind, now) {
				committed = false
				break
			}
		}
		if !committed {
			break
		}
	}
	if !committed {
		m.abort(out, tx, "it failed to get all required locks to work.")
		return
	}

	writtenVars := make([]int, 0)
	writeOf := make(map[ids.VarID]*Operation)
	for _, op := range tx.Ops {
		if op.Type == ids.OpWrite {
			writtenVars = append(writtenVars, int(op.VarID))
			writeOf[op.VarID] = op
		}
	}
	sort.Ints(writtenVars)
	for _, v := range writtenVars {
		op := writeOf[ids.VarID(v)]
		fmt.Fprintf(out, "T%d wrote %d to variable %d to sites %s.\n", txnID, op.Value, v, formatSites(op.Locks))
	}

	m.releaseAndDelete(out, txnID, tx)
	fmt.Fprintf(out, "T%d Committed\n", txnID)
}

// abort performs the shared abort cleanup of §4.4's abort path: it removes
// every operation of tx from the wait list, undoes every executed write,
// releases every lock tx's operations hold, prints the observable abort
// line, and removes tx from the manager.
func (m *Manager) abort(out io.Writer, tx *Transaction, reason string) {
	filtered := m.waitlist[:0:0]
	for _, op := range m.waitlist {
		if op.TxnID != tx.ID {
			filtered = append(filtered, op)
		}
	}
	m.waitlist = filtered

	for _, op := range tx.Ops {
		if op.Type == ids.OpWrite && op.Executed {
			for _, sid := range op.Locks {
				m.sites[sid].Undo(op.Type, op.VarID)
			}
		}
	}

	m.releaseAndDelete(out, tx.ID, tx)
	fmt.Fprintf(out, "T%d Aborted because %s\n", tx.ID, reason)
}

// releaseAndDelete releases every lock tx's operations hold, re-examines the
// wait list for each affected variable, and removes tx from the manager's
// transaction table and wait-for graph.
func (m *Manager) releaseAndDelete(out io.Writer, txnID ids.TxnID, tx *Transaction) {
	released := make(map[ids.VarID]struct{})
	for _, op := range tx.Ops {
		lock := site.Lock{TxnID: txnID, VarID: op.VarID, Mode: op.Type}
		for _, sid := range op.Locks {
			if m.sites[sid].ReleaseLock(lock) == site.ReleaseReleased {
				released[op.VarID] = struct{}{}
			}
		}
	}

	delete(m.transactions, txnID)
	m.graph.Delete(txnID)

	for vid := range released {
		m.execWaitlist(out, vid)
	}
}

// Fail marks every transaction that has accessed siteID for abort, strips
// siteID from every one of their operations' lock-site lists, and fails the
// site itself.
func (m *Manager) Fail(out io.Writer, siteID ids.SiteID) {
	s, ok := m.sites[siteID]
	if !ok {
		m.log.Warn().Int("site", int(siteID)).Msg("fail on an unknown site")
		return
	}

	for _, tx := range m.transactions {
		if _, touched := tx.AccessedSites[siteID]; !touched {
			continue
		}
		tx.Abort = true
		tx.FailedSites = append(tx.FailedSites, siteID)
		for _, op := range tx.Ops {
			op.Locks = removeSite(op.Locks, siteID)
		}
	}

	s.Fail()
	fmt.Fprintf(out, "Site %d failed.\n", siteID)
}

// Recover marks siteID available again if it was failed, and re-examines the
// wait list for every odd-indexed variable colocated solely at this site
// (per original_source/code/TransactionManager.py's recoverOp).
func (m *Manager) Recover(out io.Writer, siteID ids.SiteID) {
	s, ok := m.sites[siteID]
	if !ok {
		m.log.Warn().Int("site", int(siteID)).Msg("recover on an unknown site")
		return
	}

	if s.Status() != site.Failed {
		fmt.Fprintln(out, "Site does not fail.")
		return
	}

	s.Recover()
	for _, vid := range m.topology.OddVariablesAt(int(siteID)) {
		m.execWaitlist(out, ids.VarID(vid))
	}
	fmt.Fprintf(out, "Site %d recovered.\n", siteID)
}

// Dump prints the last-committed variables at siteIDs in ascending variable
// order, or at every site if siteIDs is empty.
func (m *Manager) Dump(out io.Writer, siteIDs ...ids.SiteID) {
	targets := siteIDs
	if len(targets) == 0 {
		targets = make([]ids.SiteID, 0, len(m.sites))
		for sid := range m.sites {
			targets = append(targets, sid)
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	}
	for _, sid := range targets {
		if s, ok := m.sites[sid]; ok {
			s.Dump(out)
		}
	}
}

func formatSites(sites []ids.SiteID) string {
	sorted := make([]int, len(sites))
	for i, sid := range sites {
		sorted[i] = int(sid)
	}
	sort.Ints(sorted)

	parts := make([]string, len(sorted))
	for i, s := range sorted {
		parts[i] = strconv.Itoa(s)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
