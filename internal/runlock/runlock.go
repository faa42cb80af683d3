// Package runlock implements the Run Lock (C11): a filesystem mutex using
// atomic mkdir as the acquire primitive, with an owner.json recording who
// holds it. Grounded on
// _examples/original_source/src/yf_parqed/run_lock.py's GlobalRunLock.
package runlock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"marketvault/internal/parquetio"
)

// Owner records who holds the lock, written to owner.json on acquire.
type Owner struct {
	PID  int    `json:"pid"`
	Host string `json:"host"`
	TS   string `json:"ts"`
	CWD  string `json:"cwd"`
}

// Lock is a single-process-at-a-time mutex over a workspace root. There is
// deliberately no blocking wait and no force-unlock path: a caller that
// can't acquire serializes by re-running later (§4.11 "operator serializes
// runs").
type Lock struct {
	lockDir   string
	ownerFile string
}

// New constructs a Lock at {baseDir}/.run_lock.
func New(baseDir string) *Lock {
	lockDir := filepath.Join(baseDir, ".run_lock")
	return &Lock{lockDir: lockDir, ownerFile: filepath.Join(lockDir, "owner.json")}
}

// TryAcquire attempts to create the lock directory. It returns false, not
// an error, when the lock is already held — mkdir's atomicity on POSIX is
// the whole of the race-safety guarantee here.
func (l *Lock) TryAcquire() (bool, error) {
	if err := os.Mkdir(l.lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("runlock: mkdir %s: %w", l.lockDir, err)
	}

	hostname, _ := os.Hostname()
	cwd, _ := os.Getwd()
	owner := Owner{PID: os.Getpid(), Host: hostname, TS: time.Now().UTC().Format(time.RFC3339), CWD: cwd}
	data, err := json.Marshal(owner)
	if err == nil {
		_ = os.WriteFile(l.ownerFile, data, 0o644) // best-effort, matches the original's "log and continue"
	}
	return true, nil
}

// OwnerInfo reads owner.json, returning nil if it is missing or unreadable.
func (l *Lock) OwnerInfo() *Owner {
	data, err := os.ReadFile(l.ownerFile)
	if err != nil {
		return nil
	}
	var owner Owner
	if err := json.Unmarshal(data, &owner); err != nil {
		return nil
	}
	return &owner
}

// Release unlinks owner.json and rmdirs the lock directory. Failures are
// swallowed — an unreleased lock directory is left for the operator to
// inspect, matching the original's best-effort release.
func (l *Lock) Release() {
	_ = os.Remove(l.ownerFile)
	_ = os.Remove(l.lockDir)
}

// CleanupTmpFiles recovers orphaned partition writes under {baseDir}/data,
// delegating to the same atomic-write recovery the Partitioned Store
// itself uses (§4.11 "Orphan recovery").
func CleanupTmpFiles(baseDir string) error {
	dataRoot := filepath.Join(baseDir, "data")
	if _, err := os.Stat(dataRoot); err != nil {
		return nil
	}
	return parquetio.CleanupTmpFiles(dataRoot)
}
