package odm

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gogotex/docsync/internal/store"
	"github.com/gogotex/docsync/pkg/logger"
	"github.com/gogotex/docsync/pkg/metrics"
	"go.mongodb.org/mongo-driver/bson"
)

// Collection binds a model type to one store collection. It is the only
// component that issues store operations; documents it returns keep a
// reference back to it for their self-service methods.
//
// A Collection holds no mutable state: two values built from the same
// schema and ConnectionManager are interchangeable.
type Collection[T any, P PtrModel[T]] struct {
	desc      *descriptor
	conn      *ConnectionManager
	observers []Observer
	log       logger.Logger
}

type collectionConfig struct {
	observers []Observer
}

type CollectionOption func(*collectionConfig)

// WithObserver registers o for write notifications.
func WithObserver(o Observer) CollectionOption {
	return func(c *collectionConfig) { c.observers = append(c.observers, o) }
}

// NewCollection binds T to the collection described by schema. It panics
// when schema declares fields T does not store.
func NewCollection[T any, P PtrModel[T]](conn *ConnectionManager, schema Schema, opts ...CollectionOption) *Collection[T, P] {
	desc, err := describe(reflect.TypeOf((*T)(nil)).Elem(), schema)
	if err != nil {
		panic(err)
	}
	var cfg collectionConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Collection[T, P]{
		desc:      desc,
		conn:      conn,
		observers: cfg.observers,
		log:       logger.Named("odm." + desc.schema.Collection),
	}
}

// Name returns the collection name.
func (c *Collection[T, P]) Name() string { return c.desc.schema.Collection }

// Schema returns the resolved schema.
func (c *Collection[T, P]) Schema() Schema { return c.desc.schema }

func (c *Collection[T, P]) handle(ctx context.Context) (store.Collection, error) {
	return c.conn.Collection(ctx, c.Name())
}

func (c *Collection[T, P]) track(op string, start time.Time, outcome string) {
	metrics.Operations.WithLabelValues(c.Name(), op, outcome).Inc()
	metrics.OperationDuration.WithLabelValues(c.Name(), op).Observe(time.Since(start).Seconds())
}

func outcomeOf(err error) string {
	if err != nil {
		return metrics.OutcomeError
	}
	return metrics.OutcomeOK
}

func (c *Collection[T, P]) notify(ctx context.Context, kind EventKind, id interface{}) {
	if len(c.observers) == 0 {
		return
	}
	ev := Event{Kind: kind, Model: c.desc.schema.Name, Collection: c.Name(), ID: id, At: time.Now().UTC()}
	for _, o := range c.observers {
		if err := o.Observe(ctx, ev); err != nil {
			c.log.Warnf("observer failed for %s %v: %v", kind, id, err)
		}
	}
}

// Create applies the model's defaults and validation, inserts it and binds
// it to c. The store-generated _id is assigned when doc has none. Insert
// errors are returned as the driver reported them.
func (c *Collection[T, P]) Create(ctx context.Context, doc P) (P, error) {
	if doc == nil {
		return nil, fmt.Errorf("odm: create %s: nil document", c.desc.schema.Name)
	}
	if d, ok := any(doc).(Defaulter); ok {
		d.ApplyDefaults()
	}
	if v, ok := any(doc).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	packed, err := Pack(doc, c.desc.schema)
	if err != nil {
		return nil, err
	}
	h, err := c.handle(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	id, err := h.InsertOne(ctx, packed)
	c.track("create", start, outcomeOf(err))
	if err != nil {
		return nil, err
	}
	b := doc.document()
	b.ID = id
	b.removed = false
	b.bind(c, doc)
	c.notify(ctx, EventCreated, id)
	return doc, nil
}

// FindID returns the document with the given _id, or nil when there is none.
func (c *Collection[T, P]) FindID(ctx context.Context, id interface{}) (P, error) {
	return c.findOne(ctx, "find_id", bson.D{{Key: "_id", Value: id}})
}

// FindOne returns the first document matching query, or nil when there is
// none. query is passed to the store verbatim.
func (c *Collection[T, P]) FindOne(ctx context.Context, query interface{}) (P, error) {
	return c.findOne(ctx, "find_one", filterOf(query))
}

func (c *Collection[T, P]) findOne(ctx context.Context, op string, filter interface{}) (P, error) {
	h, err := c.handle(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	raw, err := h.FindOne(ctx, filter)
	if errors.Is(err, store.ErrNoDocuments) {
		c.track(op, start, metrics.OutcomeNotFound)
		return nil, nil
	}
	c.track(op, start, outcomeOf(err))
	if err != nil {
		return nil, err
	}
	return c.Thaw(raw)
}

// FindOption adjusts a Find call.
type FindOption func(*store.FindOptions)

// Sort orders results by fields; prefix a field with '-' for descending.
func Sort(fields ...string) FindOption {
	return func(o *store.FindOptions) {
		for _, f := range fields {
			if strings.HasPrefix(f, "-") {
				o.Sort = append(o.Sort, bson.E{Key: f[1:], Value: -1})
				continue
			}
			o.Sort = append(o.Sort, bson.E{Key: f, Value: 1})
		}
	}
}

func Skip(n int64) FindOption  { return func(o *store.FindOptions) { o.Skip = n } }
func Limit(n int64) FindOption { return func(o *store.FindOptions) { o.Limit = n } }

// Find starts a query and returns a cursor that inflates results lazily.
func (c *Collection[T, P]) Find(ctx context.Context, query interface{}, opts ...FindOption) (*Cursor[T, P], error) {
	var fo store.FindOptions
	for _, o := range opts {
		o(&fo)
	}
	h, err := c.handle(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	src, err := h.Find(ctx, filterOf(query), fo)
	c.track("find", start, outcomeOf(err))
	if err != nil {
		return nil, err
	}
	return &Cursor[T, P]{coll: c, src: src}, nil
}

// Each runs fn for every document matching query, in store order.
func (c *Collection[T, P]) Each(ctx context.Context, query interface{}, fn func(Model) error, opts ...FindOption) error {
	cur, err := c.Find(ctx, query, opts...)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		if err := fn(cur.Doc()); err != nil {
			return err
		}
	}
	return cur.Err()
}

// EnsureIndexes creates every index the schema declares. Creating an index
// that already exists is a no-op on the store side.
func (c *Collection[T, P]) EnsureIndexes(ctx context.Context) error {
	h, err := c.handle(ctx)
	if err != nil {
		return err
	}
	for _, idx := range c.desc.schema.Indexes {
		start := time.Now()
		name, err := h.CreateIndex(ctx, idx.model())
		c.track("ensure_index", start, outcomeOf(err))
		if err != nil {
			return err
		}
		c.log.Debugf("index %s ready", name)
	}
	return nil
}

// Update applies directive to the backing record and reads the result back
// in the same round trip. When the record no longer exists doc is marked
// removed and false is returned. Otherwise every declared field of doc is
// replaced with the post-update value and true is returned.
func (c *Collection[T, P]) Update(ctx context.Context, doc P, directive interface{}) (bool, error) {
	b := doc.document()
	if b.ID == nil {
		return false, ErrNoID
	}
	h, err := c.handle(ctx)
	if err != nil {
		return false, err
	}
	start := time.Now()
	raw, err := h.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: b.ID}}, directive)
	if errors.Is(err, store.ErrNoDocuments) {
		c.track("update", start, metrics.OutcomeNotFound)
		b.removed = true
		return false, nil
	}
	c.track("update", start, outcomeOf(err))
	if err != nil {
		return false, err
	}
	if err := c.refresh(doc, raw); err != nil {
		return false, err
	}
	b.removed = false
	c.notify(ctx, EventUpdated, b.ID)
	return true, nil
}

func (c *Collection[T, P]) Set(ctx context.Context, doc P, field string, value interface{}) (bool, error) {
	return c.Update(ctx, doc, SetField(field, value))
}

func (c *Collection[T, P]) Unset(ctx context.Context, doc P, field string) (bool, error) {
	return c.Update(ctx, doc, UnsetField(field))
}

func (c *Collection[T, P]) Inc(ctx context.Context, doc P, field string, delta interface{}) (bool, error) {
	return c.Update(ctx, doc, IncField(field, delta))
}

func (c *Collection[T, P]) Push(ctx context.Context, doc P, field string, value interface{}) (bool, error) {
	return c.Update(ctx, doc, PushValue(field, value))
}

func (c *Collection[T, P]) PushAll(ctx context.Context, doc P, field string, values ...interface{}) (bool, error) {
	return c.Update(ctx, doc, PushValues(field, values...))
}

func (c *Collection[T, P]) AddToSet(ctx context.Context, doc P, field string, value interface{}) (bool, error) {
	return c.Update(ctx, doc, AddToSetValue(field, value))
}

func (c *Collection[T, P]) AddAllToSet(ctx context.Context, doc P, field string, values ...interface{}) (bool, error) {
	return c.Update(ctx, doc, AddToSetValues(field, values...))
}

func (c *Collection[T, P]) Pull(ctx context.Context, doc P, field string, value interface{}) (bool, error) {
	return c.Update(ctx, doc, PullValue(field, value))
}

// Remove deletes the backing record and marks doc removed. doc itself stays
// usable and can be stored again with Reinsert.
func (c *Collection[T, P]) Remove(ctx context.Context, doc P) (bool, error) {
	b := doc.document()
	if b.ID == nil {
		return false, ErrNoID
	}
	h, err := c.handle(ctx)
	if err != nil {
		return false, err
	}
	start := time.Now()
	_, err = h.DeleteOne(ctx, bson.D{{Key: "_id", Value: b.ID}})
	c.track("remove", start, outcomeOf(err))
	if err != nil {
		return false, err
	}
	b.removed = true
	c.notify(ctx, EventRemoved, b.ID)
	return true, nil
}

// Reinsert stores doc's in-memory state as a new record under its existing
// _id and clears the removed flag.
func (c *Collection[T, P]) Reinsert(ctx context.Context, doc P) error {
	b := doc.document()
	if b.ID == nil {
		return ErrNoID
	}
	packed, err := Pack(doc, c.desc.schema)
	if err != nil {
		return err
	}
	h, err := c.handle(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = h.InsertOne(ctx, packed)
	c.track("reinsert", start, outcomeOf(err))
	if err != nil {
		return err
	}
	b.removed = false
	b.bind(c, doc)
	c.notify(ctx, EventReinserted, b.ID)
	return nil
}

// Restore stores a raw record read back from an export. The record is
// converted first, so one that does not fit T is rejected with a
// *ConversionError before anything is written. A record with an _id is
// reinserted under it; one without goes through Create.
func (c *Collection[T, P]) Restore(ctx context.Context, raw bson.Raw) (Model, error) {
	doc, err := c.Thaw(raw)
	if err != nil {
		return nil, err
	}
	if doc.document().ID == nil {
		if _, err := c.Create(ctx, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	if err := c.Reinsert(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Sync reloads doc from its backing record. A missing record marks doc
// removed and returns false. A record that cannot be converted returns a
// *SyncError and leaves doc exactly as it was.
func (c *Collection[T, P]) Sync(ctx context.Context, doc P) (bool, error) {
	b := doc.document()
	if b.ID == nil {
		return false, ErrNoID
	}
	h, err := c.handle(ctx)
	if err != nil {
		return false, err
	}
	start := time.Now()
	raw, err := h.FindOne(ctx, bson.D{{Key: "_id", Value: b.ID}})
	if errors.Is(err, store.ErrNoDocuments) {
		c.track("sync", start, metrics.OutcomeNotFound)
		b.removed = true
		return false, nil
	}
	c.track("sync", start, outcomeOf(err))
	if err != nil {
		return false, err
	}
	if err := c.refresh(doc, raw); err != nil {
		return false, err
	}
	b.removed = false
	return true, nil
}

// Thaw inflates a raw stored record into a document bound to c.
func (c *Collection[T, P]) Thaw(raw bson.Raw) (P, error) {
	doc, err := Unpack[T, P](raw, c.desc.schema)
	if err != nil {
		return nil, err
	}
	doc.document().bind(c, doc)
	return doc, nil
}

// refresh converts raw on a throwaway value first and copies the declared
// fields onto doc only once that conversion has fully succeeded.
func (c *Collection[T, P]) refresh(doc P, raw bson.Raw) error {
	fresh, err := Unpack[T, P](raw, c.desc.schema)
	if err != nil {
		c.log.Errorf("refresh %v: %v", doc.document().ID, err)
		return &SyncError{Model: c.desc.schema.Name, ID: doc.document().ID, Err: err}
	}
	c.desc.copyFields(reflect.ValueOf(doc).Elem(), reflect.ValueOf(fresh).Elem())
	return nil
}

func (c *Collection[T, P]) updateModel(ctx context.Context, m Model, directive interface{}) (bool, error) {
	doc, ok := m.(P)
	if !ok {
		return false, ErrWrongModel
	}
	return c.Update(ctx, doc, directive)
}

func (c *Collection[T, P]) syncModel(ctx context.Context, m Model) (bool, error) {
	doc, ok := m.(P)
	if !ok {
		return false, ErrWrongModel
	}
	return c.Sync(ctx, doc)
}

func (c *Collection[T, P]) removeModel(ctx context.Context, m Model) (bool, error) {
	doc, ok := m.(P)
	if !ok {
		return false, ErrWrongModel
	}
	return c.Remove(ctx, doc)
}

func (c *Collection[T, P]) reinsertModel(ctx context.Context, m Model) error {
	doc, ok := m.(P)
	if !ok {
		return ErrWrongModel
	}
	return c.Reinsert(ctx, doc)
}

func filterOf(query interface{}) interface{} {
	if query == nil {
		return bson.D{}
	}
	return query
}
