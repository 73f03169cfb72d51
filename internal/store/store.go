// Package store defines the slice of a document database driver that the odm
// layer consumes. internal/database adapts the MongoDB driver to it and
// internal/store/memstore provides an in-memory implementation.
package store

import (
	"context"
	"errors"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrNoDocuments is returned by single-document reads and find-and-modify
// calls that matched nothing.
var ErrNoDocuments = errors.New("store: no documents in result")

// DuplicateKeyCode is the server error code for unique index violations.
const DuplicateKeyCode = 11000

// IsDuplicateKey reports whether err is a unique index violation reported by
// either the MongoDB driver or memstore.
func IsDuplicateKey(err error) bool {
	var coded interface{ HasErrorCode(int) bool }
	return errors.As(err, &coded) && coded.HasErrorCode(DuplicateKeyCode)
}

// DialFunc constructs a new client. It is called again after the owning
// process changes.
type DialFunc func(ctx context.Context) (Client, error)

// Client is a connected database client.
type Client interface {
	Database(name string) Database
	Ping(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Database hands out collection handles.
type Database interface {
	Name() string
	Collection(name string) Collection
}

// Collection is the per-collection driver surface.
type Collection interface {
	Name() string
	// InsertOne stores doc and returns its _id, generating one when doc has none.
	InsertOne(ctx context.Context, doc interface{}) (interface{}, error)
	// FindOne returns the first matching document or ErrNoDocuments.
	FindOne(ctx context.Context, filter interface{}) (bson.Raw, error)
	Find(ctx context.Context, filter interface{}, opts FindOptions) (Cursor, error)
	// FindOneAndUpdate applies update atomically and returns the post-update
	// document, or ErrNoDocuments when nothing matched.
	FindOneAndUpdate(ctx context.Context, filter, update interface{}) (bson.Raw, error)
	DeleteOne(ctx context.Context, filter interface{}) (int64, error)
	CreateIndex(ctx context.Context, idx IndexModel) (string, error)
}

// Cursor is a forward-only stream of raw documents.
type Cursor interface {
	Next(ctx context.Context) bool
	Current() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

// FindOptions are passed to Find. Zero values mean "not set".
type FindOptions struct {
	Sort  bson.D
	Skip  int64
	Limit int64
}

// IndexModel describes one index.
type IndexModel struct {
	Keys   bson.D
	Name   string
	Unique bool
	Sparse bool
}

// DefaultName returns the driver's conventional index name, e.g. "name_1_age_-1".
func (m IndexModel) DefaultName() string {
	if m.Name != "" {
		return m.Name
	}
	name := ""
	for i, k := range m.Keys {
		if i > 0 {
			name += "_"
		}
		name += k.Key + "_" + keyDirection(k.Value)
	}
	return name
}

func keyDirection(v interface{}) string {
	switch d := v.(type) {
	case int:
		return strconv.Itoa(d)
	case int32:
		return strconv.FormatInt(int64(d), 10)
	case int64:
		return strconv.FormatInt(d, 10)
	case float64:
		return strconv.FormatInt(int64(d), 10)
	case string:
		return d
	}
	return "1"
}
