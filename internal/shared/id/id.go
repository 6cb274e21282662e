// Package id mints the prefixed ULIDs used across the server.
//
// An ID is "<kind>_<ulid>", for example inv_01J9Z3.... ULIDs sort by
// creation time, so release and deployment listings can be ordered by ID
// and log lines of one invocation are easy to find.
package id

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind is the prefix that says what an ID identifies.
type Kind string

const (
	Invocation Kind = "inv"
	Trace      Kind = "trc"
	Span       Kind = "spn"
	Release    Kind = "rel"
	Deployment Kind = "dep"
)

// ID is a prefixed ULID.
type ID string

func (i ID) String() string { return string(i) }

// Kind returns the prefix, or "" when i is malformed.
func (i ID) Kind() Kind {
	kind, _, ok := Split(string(i))
	if !ok {
		return ""
	}
	return kind
}

// Generator mints ULIDs from a shared monotonic entropy source.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator uses crypto/rand with monotonic entropy, so IDs minted in
// the same millisecond still sort in order.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0), time.Now)
}

// NewGeneratorWithEntropy is for tests that need deterministic IDs.
func NewGeneratorWithEntropy(entropy io.Reader, now func() time.Time) *Generator {
	return &Generator{entropy: entropy, now: now}
}

// ULID returns a bare ULID.
func (g *Generator) ULID() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// New returns a prefixed ID of the given kind.
func (g *Generator) New(kind Kind) ID {
	return ID(string(kind) + "_" + g.ULID().String())
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// New mints an ID from the default generator.
func New(kind Kind) ID { return Default().New(kind) }

func NewInvocationID() ID { return New(Invocation) }
func NewReleaseID() ID    { return New(Release) }
func NewDeploymentID() ID { return New(Deployment) }

// Split separates a prefixed ID into its kind and ULID parts.
func Split(prefixed string) (Kind, string, bool) {
	kind, raw, ok := strings.Cut(prefixed, "_")
	if !ok || kind == "" || !IsValid(raw) {
		return "", "", false
	}
	return Kind(kind), raw, true
}

// IsValid reports whether s is a bare ULID.
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Timestamp extracts the creation time from a bare or prefixed ID.
func Timestamp(s string) (time.Time, error) {
	if _, raw, ok := Split(s); ok {
		s = raw
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
