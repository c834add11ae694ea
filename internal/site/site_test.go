package site

import (
	"bytes"
	"testing"

	"repcrec/internal/clock"
	"repcrec/internal/ids"
)

func newTestSite() *Site {
	return New(1, map[ids.VarID]int{2: 20, 3: 30}, clock.Timestamp(0))
}

func TestApplyLockFreeGrants(t *testing.T) {
	s := newTestSite()
	if got := s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpRead}, false); got != LockGranted {
		t.Fatalf("got %v, want LockGranted", got)
	}
}

func TestApplyLockSecondReaderGranted(t *testing.T) {
	s := newTestSite()
	s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpRead}, false)
	if got := s.ApplyLock(Lock{TxnID: 2, VarID: 2, Mode: ids.OpRead}, false); got != LockGranted {
		t.Fatalf("got %v, want LockGranted", got)
	}
}

func TestApplyLockWriteConflictsWithOtherReader(t *testing.T) {
	s := newTestSite()
	s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpRead}, false)
	if got := s.ApplyLock(Lock{TxnID: 2, VarID: 2, Mode: ids.OpWrite}, false); got != LockConflict {
		t.Fatalf("got %v, want LockConflict", got)
	}
}

func TestApplyLockSoleReaderUpgradeRequiresForce(t *testing.T) {
	s := newTestSite()
	s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpRead}, false)

	if got := s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpWrite}, false); got != LockUpgradable {
		t.Fatalf("got %v, want LockUpgradable", got)
	}
	if got := s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpWrite}, true); got != LockGranted {
		t.Fatalf("got %v, want LockGranted", got)
	}
	if s.variables[2].LockStatus != LockWriteHeld {
		t.Fatalf("expected write lock held after upgrade")
	}
}

func TestApplyLockWriteHolderCanAlwaysRead(t *testing.T) {
	s := newTestSite()
	s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpWrite}, false)

	if got := s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpRead}, false); got != LockUpgradable {
		t.Fatalf("got %v, want LockUpgradable", got)
	}
	if got := s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpRead}, true); got != LockGranted {
		t.Fatalf("got %v, want LockGranted", got)
	}
}

func TestApplyLockConflictsWithOtherWriteHolder(t *testing.T) {
	s := newTestSite()
	s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpWrite}, true)

	if got := s.ApplyLock(Lock{TxnID: 2, VarID: 2, Mode: ids.OpRead}, false); got != LockConflict {
		t.Fatalf("got %v, want LockConflict", got)
	}
	if got := s.ApplyLock(Lock{TxnID: 2, VarID: 2, Mode: ids.OpWrite}, false); got != LockConflict {
		t.Fatalf("got %v, want LockConflict", got)
	}
}

func TestApplyLockUnknownVariable(t *testing.T) {
	s := newTestSite()
	if got := s.ApplyLock(Lock{TxnID: 1, VarID: 99, Mode: ids.OpRead}, false); got != LockNoSuchVariable {
		t.Fatalf("got %v, want LockNoSuchVariable", got)
	}
}

func TestApplyLockFailedSite(t *testing.T) {
	s := newTestSite()
	s.Fail()
	if got := s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpRead}, false); got != LockSiteFailed {
		t.Fatalf("got %v, want LockSiteFailed", got)
	}
}

func TestRecoveredEvenVariableBlocksReadLock(t *testing.T) {
	s := newTestSite()
	s.Fail()
	s.Recover()
	if got := s.ApplyLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpRead}, false); got != LockRecoveredReplicaBlock {
		t.Fatalf("got %v, want LockRecoveredReplicaBlock", got)
	}
	// Odd variable is unaffected.
	if got := s.ApplyLock(Lock{TxnID: 1, VarID: 3, Mode: ids.OpRead}, false); got != LockGranted {
		t.Fatalf("got %v, want LockGranted", got)
	}
}

func TestReleaseLockRemovesFromQueue(t *testing.T) {
	s := newTestSite()
	lock := Lock{TxnID: 1, VarID: 2, Mode: ids.OpRead}
	s.ApplyLock(lock, false)
	if got := s.ReleaseLock(lock); got != ReleaseReleased {
		t.Fatalf("got %v, want ReleaseReleased", got)
	}
	if s.variables[2].LockStatus != LockFree {
		t.Fatalf("expected variable lock status free after release")
	}
}

func TestReleaseLockCoveredByWrite(t *testing.T) {
	s := newTestSite()
	write := Lock{TxnID: 1, VarID: 2, Mode: ids.OpWrite}
	s.ApplyLock(write, true)
	read := Lock{TxnID: 1, VarID: 2, Mode: ids.OpRead}
	if got := s.ReleaseLock(read); got != ReleaseCoveredByWrite {
		t.Fatalf("got %v, want ReleaseCoveredByWrite", got)
	}
}

func TestReleaseLockNotFound(t *testing.T) {
	s := newTestSite()
	if got := s.ReleaseLock(Lock{TxnID: 1, VarID: 2, Mode: ids.OpRead}); got != ReleaseNotFound {
		t.Fatalf("got %v, want ReleaseNotFound", got)
	}
}

func TestExecuteRWReadAndWrite(t *testing.T) {
	s := newTestSite()
	var buf bytes.Buffer
	if ok := s.Execute(&buf, ids.OpRead, 2, 0, 1, ids.RW, 0); !ok {
		t.Fatalf("expected execute to succeed")
	}
	want := "T1 read variable 2 on site1 returns 20.\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if ok := s.Execute(&buf, ids.OpWrite, 2, 99, 1, ids.RW, 0); !ok {
		t.Fatalf("expected write to succeed")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output for a write, got %q", buf.String())
	}
	if s.variables[2].Value() != 99 {
		t.Fatalf("expected current value updated to 99")
	}
}

func TestExecuteROReadsSnapshot(t *testing.T) {
	s := newTestSite()
	s.variables[2].SetValue(99)
	s.variables[2].Commit(clock.Timestamp(10))

	var buf bytes.Buffer
	s.Execute(&buf, ids.OpRead, 2, 0, 7, ids.RO, clock.Timestamp(5))
	want := "T7 read last COMMITTED variable 2 on site1 returns 20.\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestExecuteBlocksEvenReadAfterRecoveryUntilCommit(t *testing.T) {
	s := newTestSite()
	s.Fail()
	s.Recover()

	var buf bytes.Buffer
	if ok := s.Execute(&buf, ids.OpRead, 2, 0, 1, ids.RW, 0); ok {
		t.Fatalf("expected even-indexed read to be blocked after recovery")
	}

	// A committed write clears is_recovered.
	s.Execute(&buf, ids.OpWrite, 2, 55, 1, ids.RW, 0)
	s.Commit(ids.OpWrite, 2, ids.RW, clock.Timestamp(1))

	buf.Reset()
	if ok := s.Execute(&buf, ids.OpRead, 2, 0, 1, ids.RW, 0); !ok {
		t.Fatalf("expected read to succeed after a committed write")
	}
}

func TestExecuteOddVariableNotBlockedAfterRecovery(t *testing.T) {
	s := newTestSite()
	s.Fail()
	s.Recover()

	var buf bytes.Buffer
	if ok := s.Execute(&buf, ids.OpRead, 3, 0, 1, ids.RW, 0); !ok {
		t.Fatalf("expected odd-indexed read to succeed after recovery")
	}
}

func TestFailRejectsOperations(t *testing.T) {
	s := newTestSite()
	s.Fail()
	var buf bytes.Buffer
	if ok := s.Execute(&buf, ids.OpRead, 2, 0, 1, ids.RW, 0); ok {
		t.Fatalf("expected execute to fail on a failed site")
	}
	if got := s.Commit(ids.OpWrite, 2, ids.RW, 0); got {
		t.Fatalf("expected commit to fail on a failed site")
	}
}

func TestDumpFormatsAscendingByVariable(t *testing.T) {
	s := newTestSite()
	var buf bytes.Buffer
	s.Dump(&buf)
	want := "site 1 - x2: 20, x3: 30,\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}
