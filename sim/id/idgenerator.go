// Package id generates identifiers for traced tasks and recording sessions.
package id

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// A Generator can generate IDs.
type Generator interface {
	// Generate returns a new ID.
	Generate() string
}

// NewSequentialGenerator returns a Generator that produces 1, 2, 3, ... with
// the given prefix. The output is deterministic given the call order.
func NewSequentialGenerator(prefix string) Generator {
	return &sequentialGenerator{prefix: prefix}
}

// NewParallelGenerator returns a Generator that produces globally unique IDs
// that do not depend on call order.
func NewParallelGenerator() Generator {
	return parallelGenerator{}
}

var (
	defaultLock      sync.Mutex
	defaultGenerator Generator
	defaultInUse     bool
)

// UseSequential makes the default generator sequential. It panics if the
// default generator has already produced an ID.
func UseSequential() {
	setDefault(NewSequentialGenerator(""))
}

// UseParallel makes the default generator produce xid-based IDs. It panics
// if the default generator has already produced an ID.
func UseParallel() {
	setDefault(NewParallelGenerator())
}

func setDefault(g Generator) {
	defaultLock.Lock()
	defer defaultLock.Unlock()

	if defaultInUse {
		panic("cannot change id generator type after using it")
	}

	defaultGenerator = g
}

// Generate returns an ID from the default generator, which is sequential
// unless UseParallel was called first.
func Generate() string {
	defaultLock.Lock()
	if defaultGenerator == nil {
		defaultGenerator = NewSequentialGenerator("")
	}
	defaultInUse = true
	g := defaultGenerator
	defaultLock.Unlock()

	return g.Generate()
}

type sequentialGenerator struct {
	prefix string
	nextID atomic.Uint64
}

func (g *sequentialGenerator) Generate() string {
	return g.prefix + strconv.FormatUint(g.nextID.Add(1), 10)
}

type parallelGenerator struct{}

func (parallelGenerator) Generate() string {
	return xid.New().String()
}
