// Package id provides identifier generation for the virtual file system.
//
// Three kinds of identifiers are produced:
//   - Lock tokens: random UUIDv4 strings, unguessable, handed to lock holders
//   - Operation IDs: prefixed ULIDs attached to log lines of compound operations
//   - Aside names: ULIDs naming lock sidecars moved out of the way
//
// ULIDs are lexicographically sortable, so operation IDs read in order in logs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// LockToken is the secret returned by a successful lock acquisition
type LockToken string

// OperationID identifies one file system mutation in logs
type OperationID string

// OperationPrefix prefixes every operation ID
const OperationPrefix = "op"

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewOperationID generates a new operation ID
func NewOperationID() OperationID {
	return OperationID(Default().GenerateWithPrefix(OperationPrefix))
}

// NewLockToken generates a random lock token.
// uuid.NewRandom reads crypto/rand, so tokens cannot be predicted.
func NewLockToken() (LockToken, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return LockToken(u.String()), nil
}

func (id LockToken) String() string   { return string(id) }
func (id OperationID) String() string { return string(id) }

// IsValidLockToken checks if a string has the shape of a lock token
func IsValidLockToken(token string) bool {
	_, err := uuid.Parse(token)
	return err == nil
}
