package exec

import (
	"context"
	"errors"
	"fmt"
)

// ErrEOF is returned by Next once a source or pipeline has no more records.
// It is a terminal, non-error condition: further calls keep returning it.
var ErrEOF = errors.New("end of data")

// QueuedSource replays a pre-loaded ordered sequence of working-set ids. It
// supports pushing a single already-produced id back so the next pull returns
// it again, which is how the batch assembler parks a record that did not fit
// the current batch.
type QueuedSource struct {
	ws  *WorkingSet
	ids []RecordID
	pos int

	redelivered    RecordID
	hasRedelivered bool
}

func NewQueuedSource(ws *WorkingSet) *QueuedSource {
	return &QueuedSource{ws: ws, redelivered: NoRecord}
}

// Load replaces the backing sequence, resets the read position and clears the
// redelivery slot. It is called once, before the source is first pulled.
func (s *QueuedSource) Load(ids []RecordID) {
	s.ids = ids
	s.pos = 0
	s.redelivered = NoRecord
	s.hasRedelivered = false
}

// Next returns the next id in sequence, preferring a redelivered id if one is
// pending. At the end of the sequence it returns ErrEOF.
func (s *QueuedSource) Next(ctx context.Context) (RecordID, error) {
	if err := ctx.Err(); err != nil {
		return NoRecord, err
	}

	if s.hasRedelivered {
		id := s.redelivered
		s.redelivered = NoRecord
		s.hasRedelivered = false
		return id, nil
	}

	if s.pos >= len(s.ids) {
		return NoRecord, ErrEOF
	}

	id := s.ids[s.pos]
	s.pos++
	return id, nil
}

// Redeliver places id into the single redelivery slot. At most one redelivery
// may be pending at a time; a second one is a caller bug and panics.
func (s *QueuedSource) Redeliver(id RecordID) {
	if s.hasRedelivered {
		panic(fmt.Sprintf("exec: redelivery slot already holds id %d", s.redelivered))
	}
	s.redelivered = id
	s.hasRedelivered = true
}

func (s *QueuedSource) pending() bool {
	return s.hasRedelivered
}
