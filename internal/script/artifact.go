package script

import (
	"sync/atomic"
	"time"

	"github.com/seantiz/cinder/internal/vm"
)

// Artifact wraps a compiled program with its cache metadata. The program
// handle is immutable; the hit counter is the only mutable field. A recompile
// replaces the whole record rather than mutating it in place.
type Artifact struct {
	Program   vm.Program
	ExpiresOn time.Time

	hits atomic.Int64
}

func newArtifact(p vm.Program, expiresOn time.Time) *Artifact {
	return &Artifact{Program: p, ExpiresOn: expiresOn}
}

// Fresh reports whether the artifact has not yet expired at the given time.
func (a *Artifact) Fresh(now time.Time) bool {
	return a.ExpiresOn.After(now)
}

// Hits returns the number of cache hits served from this artifact.
func (a *Artifact) Hits() int64 {
	return a.hits.Load()
}

func (a *Artifact) hit() {
	a.hits.Add(1)
}
