// Package lock implements per-file advisory locks with expiring tokens.
//
// Each path is in one of two states:
//
//	UNLOCKED --Lock--> LOCKED(token, expiry) --Unlock/expiry/Remove--> UNLOCKED
//
// The lock record lives only in a sidecar file under the control folder,
// created with O_EXCL. That makes locks survive restarts and be visible to
// every process sharing the root. A striped mutex table serializes the
// check-then-act sequences within one process so two Lock calls on the same
// path can never both succeed and a Check can never race expiry cleanup.
// Across processes, a sidecar is renamed aside before it is removed and put
// back when it no longer holds the record that was read.
//
// Lock never waits: a held lock fails immediately with ErrLocked.
package lock
