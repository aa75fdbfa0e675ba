package cursor

import (
	"fmt"

	"github.com/meridiandb/meridian/pkg/exec"
)

// Outcome tells Release what to do with the cursor.
type Outcome int

const (
	// CursorKept re-parks the cursor for a later continuation. The caller
	// must have detached the pipeline again before releasing.
	CursorKept Outcome = iota

	// CursorExhausted destroys the cursor because the pipeline is drained.
	CursorExhausted

	// CursorKilled destroys the cursor on behalf of an explicit kill.
	CursorKilled
)

// PinnedCursor is the exclusive claim one request holds on a cursor. For the
// duration of the pin, pipeline ownership rests with the caller; Release hands
// it back or destroys it.
type PinnedCursor struct {
	registry *Registry
	entry    *entry
	released bool
}

// ID returns the cursor id.
func (pc *PinnedCursor) ID() int64 {
	return pc.entry.id
}

// Pipeline returns the parked pipeline. Valid only until Release.
func (pc *PinnedCursor) Pipeline() *exec.Pipeline {
	return pc.entry.pipeline
}

// Metadata returns the context captured when the cursor was created.
func (pc *PinnedCursor) Metadata() Metadata {
	return pc.entry.meta
}

// Release ends the pin. With CursorKept the pipeline, which the caller must
// have re-detached, is re-parked and the idle clock restarts; otherwise the
// entry is removed and the pipeline destroyed. If the registry was closed
// while the pin was held, CursorKept destroys the cursor too. Releasing twice
// is a caller bug and panics.
func (pc *PinnedCursor) Release(outcome Outcome) {
	if pc.released {
		panic("cursor: pinned cursor released twice")
	}
	pc.released = true

	r := pc.registry
	e := pc.entry

	if outcome == CursorKept {
		if e.pipeline.State() != exec.StateDetached {
			panic(fmt.Sprintf("cursor: re-parking %s pipeline", e.pipeline.State()))
		}
		r.mu.Lock()
		if r.closed {
			// The registry shut down while this cursor was pinned; nothing
			// will sweep it, so finish the teardown here.
			delete(r.cursors, e.id)
			r.mu.Unlock()
			e.pipeline.Close()
			openCursorsGauge.Dec()
			return
		}
		e.pinned = false
		e.lastUsed = r.now()
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	delete(r.cursors, e.id)
	r.mu.Unlock()

	e.pipeline.Close()
	openCursorsGauge.Dec()
	if outcome == CursorKilled {
		killedCursorsCounter.Inc()
	}
}
