// Package namespace models the database.collection identity used to label
// commands and cursors.
package namespace

import (
	"errors"
	"strings"
)

const listIndexesPrefix = "$cmd.listIndexes."

// Namespace identifies a collection within a database.
type Namespace struct {
	database   string
	collection string
}

// New creates a Namespace from the given database and collection names.
//
// Neither can be empty, and the database name may not contain a "." or " "
// character.
func New(database, collection string) (Namespace, error) {
	if collection == "" {
		return Namespace{}, errors.New("collection name can not be empty")
	}
	if database == "" {
		return Namespace{}, errors.New("database name can not be empty")
	}
	if strings.Contains(database, " ") {
		return Namespace{}, errors.New("database name can not contain ' '")
	}
	if strings.Contains(database, ".") {
		return Namespace{}, errors.New("database name can not contain '.'")
	}

	return Namespace{database: database, collection: collection}, nil
}

// Parse parses a "db.collection" string into a Namespace.
//
// The string must contain at least one ".", the first of which separates the
// database name from the collection name. The rules of New then apply.
func Parse(fullName string) (Namespace, error) {
	idx := strings.Index(fullName, ".")
	if idx == -1 {
		return Namespace{}, errors.New("namespace must contain a '.'")
	}
	return New(fullName[:idx], fullName[idx+1:])
}

// Database returns the name of the database.
func (ns Namespace) Database() string {
	return ns.database
}

// Collection returns the name of the collection.
func (ns Namespace) Collection() string {
	return ns.collection
}

// String returns the full namespace, joining database and collection with ".".
func (ns Namespace) String() string {
	return ns.database + "." + ns.collection
}

// IsZero reports whether the namespace is unset.
func (ns Namespace) IsZero() bool {
	return ns.database == "" && ns.collection == ""
}

// ForListIndexes returns the pseudo-namespace a listIndexes cursor is labeled
// with: "<db>.$cmd.listIndexes.<collection>". Cursors opened against this
// namespace target the index metadata of ns rather than its documents.
func (ns Namespace) ForListIndexes() Namespace {
	return Namespace{
		database:   ns.database,
		collection: listIndexesPrefix + ns.collection,
	}
}

// ListIndexesTarget resolves the collection a listIndexes cursor namespace
// targets. The second return is false when ns is not a listIndexes namespace.
func (ns Namespace) ListIndexesTarget() (Namespace, bool) {
	coll, ok := strings.CutPrefix(ns.collection, listIndexesPrefix)
	if !ok {
		return Namespace{}, false
	}
	return Namespace{database: ns.database, collection: coll}, true
}
