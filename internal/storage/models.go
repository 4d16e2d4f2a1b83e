package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoDatabase is returned by OpenReadOnly when the data directory holds no
// database yet.
var ErrNoDatabase = errors.New("no database")

type Version struct {
	ID                int64
	GameVersionTypeID int64
	Name              string
	Slug              string
}

type VersionType struct {
	ID   int64
	Name string
	Slug string
}

// Catalog is a full snapshot of the upstream collections.
type Catalog struct {
	Versions     []Version
	VersionTypes []VersionType
	FetchedAt    time.Time
}

type SyncState struct {
	RefreshedAt  time.Time
	Versions     int
	VersionTypes int
}

// Rows is a fully materialized result set. Values hold raw driver values:
// nil, int64, float64, string, []byte or time.Time.
type Rows struct {
	Columns []string
	Values  [][]any
}

type Column struct {
	Name string
	Type string
}

// SQLError wraps a failure caused by the statement itself (syntax, unknown
// table, attempted write) as opposed to the database being unavailable.
type SQLError struct {
	Err error
}

func (e *SQLError) Error() string { return e.Err.Error() }

func (e *SQLError) Unwrap() error { return e.Err }
