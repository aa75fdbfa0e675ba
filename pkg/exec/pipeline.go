package exec

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// SnapshotHandle is the transient per-request context a pipeline holds while
// attached, typically an open storage snapshot. It is released on Detach and a
// fresh one is bound on Reattach.
type SnapshotHandle interface {
	Release()
}

// State is the lifecycle state of a Pipeline.
type State int

const (
	// StateActive means the pipeline is bound to a request and may be pulled.
	StateActive State = iota

	// StateDetached means the pipeline is suspended between requests. It must
	// be reattached before it can be pulled again.
	StateDetached

	// StateExhausted means end-of-data has been observed with no redelivery
	// pending. Exhausted is terminal.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDetached:
		return "detached"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Pipeline binds one WorkingSet and one QueuedSource and adds the
// suspend/resume lifecycle that lets execution state be parked behind a cursor
// and resumed by a later request. The pipeline owns both for its entire life;
// ownership moves with the pipeline when it is parked in or withdrawn from the
// cursor registry, never shared.
//
// Suspension points are exactly Detach calls and resumption exactly Reattach
// calls; there are no hidden yields. Calling Next or Detach in the wrong state
// is a caller bug and panics.
type Pipeline struct {
	ws       *WorkingSet
	source   *QueuedSource
	snapshot SnapshotHandle
	state    State
}

// NewPipeline builds an active pipeline over ws and source, holding snapshot
// (which may be nil) until the next Detach.
func NewPipeline(ws *WorkingSet, source *QueuedSource, snapshot SnapshotHandle) *Pipeline {
	return &Pipeline{
		ws:       ws,
		source:   source,
		snapshot: snapshot,
		state:    StateActive,
	}
}

// Next pulls the next record id. On end-of-data it transitions to exhausted
// and returns ErrEOF; once exhausted it keeps returning ErrEOF without error.
func (p *Pipeline) Next(ctx context.Context) (RecordID, error) {
	switch p.state {
	case StateExhausted:
		return NoRecord, ErrEOF
	case StateDetached:
		panic("exec: pull on detached pipeline")
	}

	id, err := p.source.Next(ctx)
	if err != nil {
		if errors.Is(err, ErrEOF) && !p.source.pending() {
			p.state = StateExhausted
		}
		return NoRecord, err
	}
	return id, nil
}

// Doc returns the serialized document for a record produced by Next.
func (p *Pipeline) Doc(id RecordID) bson.Raw {
	return p.ws.Get(id).Doc
}

// Redeliver pushes back a record that could not be placed in the current
// batch; the next pull, possibly after a detach/reattach cycle, returns it
// first.
func (p *Pipeline) Redeliver(id RecordID) {
	if p.state != StateActive {
		panic(fmt.Sprintf("exec: redeliver on %s pipeline", p.state))
	}
	p.source.Redeliver(id)
}

// Detach releases the bound snapshot handle while preserving arena and source
// state, transitioning to detached. A pipeline must be detached before it can
// be parked in the cursor registry.
func (p *Pipeline) Detach() {
	if p.state != StateActive {
		panic(fmt.Sprintf("exec: detach on %s pipeline", p.state))
	}
	if p.snapshot != nil {
		p.snapshot.Release()
		p.snapshot = nil
	}
	p.state = StateDetached
}

// Reattach binds fresh per-request context to a detached pipeline, making it
// pullable again.
func (p *Pipeline) Reattach(snapshot SnapshotHandle) {
	if p.state != StateDetached {
		panic(fmt.Sprintf("exec: reattach on %s pipeline", p.state))
	}
	p.snapshot = snapshot
	p.state = StateActive
}

// IsExhausted reports whether end-of-data has been observed with no
// redelivered record pending.
func (p *Pipeline) IsExhausted() bool {
	return p.state == StateExhausted
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return p.state
}

// Close releases the snapshot handle, if any, and drops the arena and source.
// It is safe to call in any state and is idempotent.
func (p *Pipeline) Close() {
	if p.snapshot != nil {
		p.snapshot.Release()
		p.snapshot = nil
	}
	p.ws = nil
	p.source = nil
	p.state = StateExhausted
}
