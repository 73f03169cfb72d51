// Package memstore is an in-memory implementation of the store interfaces.
// It keeps documents as normalized bson.D values and serializes every
// single-document operation on a per-collection mutex, which is the same
// atomicity guarantee a MongoDB server gives find-and-modify.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gogotex/docsync/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error codes mirror the server's numeric codes for the failures memstore can produce.
const (
	CodeBadValue       = 2
	CodeTypeMismatch   = 14
	CodeImmutableField = 66
	CodeDuplicateKey   = store.DuplicateKeyCode
)

// WriteError is returned for rejected writes.
type WriteError struct {
	Code    int
	Message string
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("memstore: (%d) %s", e.Code, e.Message)
}

// HasErrorCode matches the driver's ServerError method of the same name.
func (e *WriteError) HasErrorCode(code int) bool { return e.Code == code }

func writeErr(code int, format string, args ...interface{}) error {
	return &WriteError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Server holds all databases. Every Client obtained from it shares the data.
type Server struct {
	mu  sync.Mutex
	dbs map[string]map[string]*collection
}

type collection struct {
	mu      sync.Mutex
	docs    []bson.D
	indexes map[string]store.IndexModel
}

// New returns an empty server.
func New() *Server {
	return &Server{dbs: make(map[string]map[string]*collection)}
}

// Client returns a new client handle onto s.
func (s *Server) Client() *Client { return &Client{srv: s} }

// Dialer returns a DialFunc yielding a fresh client per call.
func (s *Server) Dialer() store.DialFunc {
	return func(ctx context.Context) (store.Client, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.Client(), nil
	}
}

func (s *Server) collection(db, name string) *collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols, ok := s.dbs[db]
	if !ok {
		cols = make(map[string]*collection)
		s.dbs[db] = cols
	}
	c, ok := cols[name]
	if !ok {
		c = &collection{indexes: make(map[string]store.IndexModel)}
		cols[name] = c
	}
	return c
}

// Client implements store.Client.
type Client struct {
	srv *Server
}

func (c *Client) Database(name string) store.Database { return &Database{srv: c.srv, name: name} }

func (c *Client) Ping(ctx context.Context) error { return ctx.Err() }

func (c *Client) Disconnect(ctx context.Context) error { return nil }

// Database implements store.Database.
type Database struct {
	srv  *Server
	name string
}

func (d *Database) Name() string { return d.name }

func (d *Database) Collection(name string) store.Collection {
	return &Collection{name: name, data: d.srv.collection(d.name, name)}
}

// Collection implements store.Collection.
type Collection struct {
	name string
	data *collection
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	if err := validateKeys(d, ""); err != nil {
		return nil, err
	}
	id, ok := lookup(d, "_id")
	if !ok {
		id = primitive.NewObjectID()
		d = append(bson.D{{Key: "_id", Value: id}}, d...)
	}

	c.data.mu.Lock()
	defer c.data.mu.Unlock()
	for _, existing := range c.data.docs {
		if eid, _ := lookup(existing, "_id"); equal(eid, id) {
			return nil, writeErr(CodeDuplicateKey, "duplicate key error collection: %s index: _id_ dup key: { _id: %v }", c.name, id)
		}
	}
	if err := c.data.checkUnique(d, -1); err != nil {
		return nil, err
	}
	c.data.docs = append(c.data.docs, d)
	return id, nil
}

func (c *Collection) FindOne(ctx context.Context, filter interface{}) (bson.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	c.data.mu.Lock()
	defer c.data.mu.Unlock()
	i, err := c.data.first(f)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, store.ErrNoDocuments
	}
	return bson.Marshal(c.data.docs[i])
}

func (c *Collection) Find(ctx context.Context, filter interface{}, opts store.FindOptions) (store.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	c.data.mu.Lock()
	var hits []bson.D
	for _, d := range c.data.docs {
		ok, err := matches(d, f)
		if err != nil {
			c.data.mu.Unlock()
			return nil, err
		}
		if ok {
			hits = append(hits, d)
		}
	}
	c.data.mu.Unlock()

	if len(opts.Sort) > 0 {
		sortDocs(hits, opts.Sort)
	}
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(hits)) {
			hits = nil
		} else {
			hits = hits[opts.Skip:]
		}
	}
	if opts.Limit > 0 && opts.Limit < int64(len(hits)) {
		hits = hits[:opts.Limit]
	}

	out := make([]bson.Raw, 0, len(hits))
	for _, d := range hits {
		raw, err := bson.Marshal(d)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return &Cursor{docs: out, pos: -1}, nil
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter, update interface{}) (bson.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	u, err := normalize(update)
	if err != nil {
		return nil, err
	}
	if len(u) == 0 {
		return nil, writeErr(CodeBadValue, "update document must not be empty")
	}

	c.data.mu.Lock()
	defer c.data.mu.Unlock()
	i, err := c.data.first(f)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, store.ErrNoDocuments
	}
	next, err := clone(c.data.docs[i])
	if err != nil {
		return nil, err
	}
	if next, err = applyUpdate(next, u); err != nil {
		return nil, err
	}
	if err := validateKeys(next, ""); err != nil {
		return nil, err
	}
	if err := c.data.checkUnique(next, i); err != nil {
		return nil, err
	}
	c.data.docs[i] = next
	return bson.Marshal(next)
}

func (c *Collection) DeleteOne(ctx context.Context, filter interface{}) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := normalizeFilter(filter)
	if err != nil {
		return 0, err
	}
	c.data.mu.Lock()
	defer c.data.mu.Unlock()
	i, err := c.data.first(f)
	if err != nil || i < 0 {
		return 0, err
	}
	c.data.docs = append(c.data.docs[:i], c.data.docs[i+1:]...)
	return 1, nil
}

func (c *Collection) CreateIndex(ctx context.Context, idx store.IndexModel) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(idx.Keys) == 0 {
		return "", writeErr(CodeBadValue, "index keys must not be empty")
	}
	name := idx.DefaultName()
	c.data.mu.Lock()
	defer c.data.mu.Unlock()
	if prev, ok := c.data.indexes[name]; ok {
		if prev.Unique != idx.Unique || prev.Sparse != idx.Sparse {
			return "", writeErr(85, "index with name %s already exists with different options", name)
		}
		return name, nil
	}
	c.data.indexes[name] = idx
	for i, d := range c.data.docs {
		if err := c.data.checkUnique(d, i); err != nil {
			delete(c.data.indexes, name)
			return "", err
		}
	}
	return name, nil
}

// Indexes lists the index names defined on the collection, sorted.
func (c *Collection) Indexes() []string {
	c.data.mu.Lock()
	defer c.data.mu.Unlock()
	names := make([]string, 0, len(c.data.indexes))
	for n := range c.data.indexes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of stored documents.
func (c *Collection) Len() int {
	c.data.mu.Lock()
	defer c.data.mu.Unlock()
	return len(c.data.docs)
}

// first returns the index of the first document matching f, or -1.
// Callers hold c.mu.
func (c *collection) first(f bson.D) (int, error) {
	for i, d := range c.docs {
		ok, err := matches(d, f)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

// checkUnique verifies d against unique indexes, ignoring the document at
// position self. Callers hold c.mu.
func (c *collection) checkUnique(d bson.D, self int) error {
	for name, idx := range c.indexes {
		if !idx.Unique {
			continue
		}
		key, complete := indexKey(d, idx)
		if idx.Sparse && !complete {
			continue
		}
		for i, other := range c.docs {
			if i == self {
				continue
			}
			okey, ocomplete := indexKey(other, idx)
			if idx.Sparse && !ocomplete {
				continue
			}
			if equal(key, okey) {
				return writeErr(CodeDuplicateKey, "duplicate key error index: %s dup key: %v", name, key)
			}
		}
	}
	return nil
}

func indexKey(d bson.D, idx store.IndexModel) (bson.A, bool) {
	key := make(bson.A, 0, len(idx.Keys))
	complete := true
	for _, k := range idx.Keys {
		v, ok := lookup(d, k.Key)
		if !ok {
			complete = false
		}
		key = append(key, v)
	}
	return key, complete
}

// Cursor implements store.Cursor over a snapshot taken at Find time.
type Cursor struct {
	docs   []bson.Raw
	pos    int
	closed bool
	err    error
}

func (c *Cursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos+1 >= len(c.docs) {
		c.pos = len(c.docs)
		return false
	}
	c.pos++
	return true
}

func (c *Cursor) Current() bson.Raw {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return nil
	}
	return c.docs[c.pos]
}

// Err reports the context error that stopped iteration, if any.
func (c *Cursor) Err() error { return c.err }

func (c *Cursor) Close(ctx context.Context) error {
	c.closed = true
	return nil
}
