package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// State is the lifecycle state of a migration against one store.
type State uint8

// Migration states. Pending transitions through Applying to Applied or
// Failed; Applied transitions through Reverting to Reverted.
const (
	StatePending State = iota
	StateApplying
	StateApplied
	StateFailed
	StateReverting
	StateReverted
)

var stateNames = [...]string{
	StatePending:   "pending",
	StateApplying:  "applying",
	StateApplied:   "applied",
	StateFailed:    "failed",
	StateReverting: "reverting",
	StateReverted:  "reverted",
}

// String returns the lower-cased state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// Migration is an ordered sequence of steps with a strictly increasing
// id. Migrations form a linear chain: each one depends on the
// immediately preceding id, and the persisted ledger must always be a
// contiguous prefix of the compiled sequence.
type Migration struct {
	// ID is the position in the chain, starting at 1.
	ID int64
	// Label is a short human-readable name.
	Label string
	// Steps are applied in order inside one transaction.
	Steps []Step
}

// stepRecord is the stable encoding of one step for checksumming. Struct
// fields encode in declaration order, so the byte stream is deterministic
// for a given step sequence.
type stepRecord struct {
	Kind string `msgpack:"kind"`
	Step Step   `msgpack:"step"`
}

func stepKind(s Step) string {
	switch s.(type) {
	case *CreateTable:
		return "create_table"
	case *DropTable:
		return "drop_table"
	case *AddColumn:
		return "add_column"
	case *DropColumn:
		return "drop_column"
	case *AlterColumnType:
		return "alter_column_type"
	case *AddIndex:
		return "add_index"
	case *DropIndex:
		return "drop_index"
	}
	return fmt.Sprintf("unknown(%T)", s)
}

// Checksum returns the hex SHA-256 over the msgpack encoding of the step
// sequence. Identical step sequences always produce identical checksums;
// the ledger stores them to detect drift.
func (m *Migration) Checksum() (string, error) {
	recs := make([]stepRecord, len(m.Steps))
	for i, s := range m.Steps {
		recs[i] = stepRecord{Kind: stepKind(s), Step: s}
	}
	raw, err := msgpack.Marshal(recs)
	if err != nil {
		return "", fmt.Errorf("schema: checksum migration %d: %w", m.ID, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Inverse returns the steps that undo the migration, in application
// order (the last step's inverse first). It fails with ErrNonRevertible
// when any step has no unambiguous inverse.
func (m *Migration) Inverse() ([]Step, error) {
	inv := make([]Step, 0, len(m.Steps))
	for i := len(m.Steps) - 1; i >= 0; i-- {
		s, err := m.Steps[i].Inverse()
		if err != nil {
			return nil, fmt.Errorf("migration %d: %w", m.ID, err)
		}
		inv = append(inv, s)
	}
	return inv, nil
}

// MigrateError reports a migration step that failed. The enclosing
// transaction has been rolled back as one unit and the ledger is
// untouched.
type MigrateError struct {
	MigrationID int64
	Step        int // Index of the failed step.
	Err         error
}

// Error returns the error string.
func (e *MigrateError) Error() string {
	return fmt.Sprintf("loam: migration %d failed at step %d: %v", e.MigrationID, e.Step, e.Err)
}

// Unwrap returns the step failure.
func (e *MigrateError) Unwrap() error { return e.Err }

// Status is the reconciliation of one compiled migration against the
// ledger.
type Status struct {
	ID        int64
	Label     string
	State     State
	AppliedAt time.Time // Zero unless applied.
}
