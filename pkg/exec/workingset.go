// Package exec implements the pull-based execution core used to answer
// paginated read commands: a working-set arena holding materialized result
// records, a queued source that replays them, a suspendable pipeline binding
// the two, and a size-bounded batch assembler.
package exec

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// RecordID is an opaque handle into a WorkingSet. An id is valid only between
// Allocate and Free; ids are reused after Free.
type RecordID int

// NoRecord is returned by pulls that produced no record.
const NoRecord RecordID = -1

// RecordDisposition describes how a record's data is held.
type RecordDisposition int

const (
	// RecordOwned means the record owns a fully materialized document.
	RecordOwned RecordDisposition = iota

	// RecordStorageRef is reserved for records that reference into storage
	// instead of owning their data. No producer emits it yet.
	RecordStorageRef
)

// Record is one result document together with its disposition.
type Record struct {
	Doc         bson.Raw
	Disposition RecordDisposition
}

type slot struct {
	rec  Record
	live bool
}

// WorkingSet is a slot-table arena of Records addressed by RecordID. It is
// owned by exactly one pipeline and accessed by a single holder at a time, so
// it carries no internal locking.
type WorkingSet struct {
	slots []slot
	free  []RecordID
}

func NewWorkingSet() *WorkingSet {
	return &WorkingSet{}
}

// Allocate reserves a slot and returns its id. Freed slots are reused before
// the table grows.
func (ws *WorkingSet) Allocate() RecordID {
	if n := len(ws.free); n > 0 {
		id := ws.free[n-1]
		ws.free = ws.free[:n-1]
		ws.slots[id].live = true
		return id
	}

	ws.slots = append(ws.slots, slot{live: true})
	return RecordID(len(ws.slots) - 1)
}

// Get returns the record for id. Dereferencing an id that was never allocated,
// or was already freed, is a caller bug and panics.
func (ws *WorkingSet) Get(id RecordID) *Record {
	ws.check(id)
	return &ws.slots[id].rec
}

// Free releases id's slot for reuse. Freeing an invalid id panics.
func (ws *WorkingSet) Free(id RecordID) {
	ws.check(id)
	ws.slots[id] = slot{}
	ws.free = append(ws.free, id)
}

// Len returns the number of live records.
func (ws *WorkingSet) Len() int {
	return len(ws.slots) - len(ws.free)
}

func (ws *WorkingSet) check(id RecordID) {
	if id < 0 || int(id) >= len(ws.slots) || !ws.slots[id].live {
		panic(fmt.Sprintf("exec: invalid working set id %d", id))
	}
}
