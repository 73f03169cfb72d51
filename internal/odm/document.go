package odm

import (
	"context"
)

// Model is implemented by every document type through an embedded Base:
//
//	type Person struct {
//		odm.Base `bson:",inline"`
//		Name     string `bson:"name"`
//	}
type Model interface {
	document() *Base
}

// PtrModel constrains P to be *T and a Model. Collection and the generic
// helpers take both so they can allocate fresh T values.
type PtrModel[T any] interface {
	*T
	Model
}

// Defaulter is implemented by models that fill in default field values
// before they are inserted.
type Defaulter interface {
	ApplyDefaults()
}

// Validator is implemented by models that check their own field values
// before they are inserted.
type Validator interface {
	Validate() error
}

// owner is the back-reference from a document to the collection that
// produced it.
type owner interface {
	updateModel(ctx context.Context, m Model, directive interface{}) (bool, error)
	syncModel(ctx context.Context, m Model) (bool, error)
	removeModel(ctx context.Context, m Model) (bool, error)
	reinsertModel(ctx context.Context, m Model) error
}

// Base carries the identity and bookkeeping state of a document. None of its
// unexported fields are ever written to the store.
type Base struct {
	ID interface{} `bson:"_id,omitempty" json:"id,omitempty"`

	removed bool
	owner   owner
	self    Model
}

func (b *Base) document() *Base { return b }

// Removed reports whether the backing record is known to be gone.
func (b *Base) Removed() bool { return b.removed }

// Bound reports whether the document was produced by a collection.
func (b *Base) Bound() bool { return b.owner != nil }

func (b *Base) bind(o owner, self Model) {
	b.owner = o
	b.self = self
}

func (b *Base) ensureBound() error {
	if b.owner == nil || b.self == nil {
		return ErrUnbound
	}
	return nil
}

// Update applies directive atomically to the backing record and refreshes
// the document from the result. See Collection.Update.
func (b *Base) Update(ctx context.Context, directive interface{}) (bool, error) {
	if err := b.ensureBound(); err != nil {
		return false, err
	}
	return b.owner.updateModel(ctx, b.self, directive)
}

func (b *Base) Set(ctx context.Context, field string, value interface{}) (bool, error) {
	return b.Update(ctx, SetField(field, value))
}

func (b *Base) Unset(ctx context.Context, field string) (bool, error) {
	return b.Update(ctx, UnsetField(field))
}

func (b *Base) Inc(ctx context.Context, field string, delta interface{}) (bool, error) {
	return b.Update(ctx, IncField(field, delta))
}

func (b *Base) Push(ctx context.Context, field string, value interface{}) (bool, error) {
	return b.Update(ctx, PushValue(field, value))
}

func (b *Base) PushAll(ctx context.Context, field string, values ...interface{}) (bool, error) {
	return b.Update(ctx, PushValues(field, values...))
}

func (b *Base) AddToSet(ctx context.Context, field string, value interface{}) (bool, error) {
	return b.Update(ctx, AddToSetValue(field, value))
}

func (b *Base) AddAllToSet(ctx context.Context, field string, values ...interface{}) (bool, error) {
	return b.Update(ctx, AddToSetValues(field, values...))
}

func (b *Base) Pull(ctx context.Context, field string, value interface{}) (bool, error) {
	return b.Update(ctx, PullValue(field, value))
}

// Sync re-reads the document from the store. See Collection.Sync.
func (b *Base) Sync(ctx context.Context) (bool, error) {
	if err := b.ensureBound(); err != nil {
		return false, err
	}
	return b.owner.syncModel(ctx, b.self)
}

// Remove deletes the backing record. The in-memory document survives.
func (b *Base) Remove(ctx context.Context) (bool, error) {
	if err := b.ensureBound(); err != nil {
		return false, err
	}
	return b.owner.removeModel(ctx, b.self)
}

// Reinsert stores the current in-memory state again under the same _id.
func (b *Base) Reinsert(ctx context.Context) error {
	if err := b.ensureBound(); err != nil {
		return err
	}
	return b.owner.reinsertModel(ctx, b.self)
}
