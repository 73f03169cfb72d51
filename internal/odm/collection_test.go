package odm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gogotex/docsync/internal/store/memstore"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestPersonLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	john, err := f.coll.Create(ctx, &person{Name: "John"})
	require.NoError(t, err)
	require.NotNil(t, john.ID)
	require.False(t, john.Removed())

	ok, err := f.coll.Inc(ctx, john, "likes", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, john.Likes)
	stored, err := f.coll.FindID(ctx, john.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.Likes)

	ok, err = f.coll.PushAll(ctx, john, "tags", "hot", "trendy")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"hot", "trendy"}, john.Tags)
	stored, err = f.coll.FindID(ctx, john.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"hot", "trendy"}, stored.Tags)

	found, err := f.coll.FindOne(ctx, bson.M{"name": "John"})
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotSame(t, john, found)
	require.Equal(t, john.ID, found.ID)
	require.Equal(t, john.Name, found.Name)
	require.Equal(t, john.Likes, found.Likes)
	require.Equal(t, john.Tags, found.Tags)

	ok, err = f.coll.Remove(ctx, john)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, john.Removed())

	gone, err := f.coll.FindID(ctx, john.ID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestCreateAppliesDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coll.Create(ctx, &person{})
	require.EqualError(t, err, "name is required")
	require.Equal(t, 0, f.raw(t).(*memstore.Collection).Len())

	p, err := f.coll.Create(ctx, &person{Name: "Ann"})
	require.NoError(t, err)
	require.Equal(t, []string{}, p.Tags)
	require.True(t, p.Bound())
}

func TestCreatePassesStoreErrorsThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coll.Create(ctx, &person{Base: Base{ID: "fixed"}, Name: "A"})
	require.NoError(t, err)
	_, err = f.coll.Create(ctx, &person{Base: Base{ID: "fixed"}, Name: "B"})
	require.Error(t, err)
	require.IsType(t, &memstore.WriteError{}, err)
	require.Equal(t, memstore.CodeDuplicateKey, err.(*memstore.WriteError).Code)
}

func TestFindIDMissingIsNotAnError(t *testing.T) {
	f := newFixture(t)
	p, err := f.coll.FindID(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestUpdateOnDeletedRecordMarksRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.coll.Create(ctx, &person{Name: "Gone", Likes: 4})
	require.NoError(t, err)

	n, err := f.raw(t).DeleteOne(ctx, bson.M{"_id": p.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	ok, err := p.Inc(ctx, "likes", 1)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, p.Removed())
	require.Equal(t, 4, p.Likes)
}

func TestUpdateWithoutIDFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.coll.Set(context.Background(), &person{Name: "x"}, "name", "y")
	require.ErrorIs(t, err, ErrNoID)
}

func TestUpdateRejectedByStoreLeavesDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.coll.Create(ctx, &person{Name: "Typed"})
	require.NoError(t, err)

	_, err = f.coll.Push(ctx, p, "name", "x")
	require.Error(t, err)
	require.IsType(t, &memstore.WriteError{}, err)
	require.Equal(t, "Typed", p.Name)
	require.False(t, p.Removed())
}

func TestSetAddToSetPullUnset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.coll.Create(ctx, &person{Name: "Set", Tags: []string{"a"}})
	require.NoError(t, err)

	_, err = p.Set(ctx, "name", "Renamed")
	require.NoError(t, err)
	require.Equal(t, "Renamed", p.Name)

	_, err = p.AddToSet(ctx, "tags", "a")
	require.NoError(t, err)
	_, err = f.coll.AddAllToSet(ctx, p, "tags", "b", "a", "c")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, p.Tags)

	_, err = p.Push(ctx, "tags", "b")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "b"}, p.Tags)

	_, err = p.Pull(ctx, "tags", "b")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, p.Tags)

	_, err = p.Unset(ctx, "tags")
	require.NoError(t, err)
	require.Nil(t, p.Tags)
}

func TestSyncAfterExternalDeleteKeepsFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.coll.Create(ctx, &person{Name: "Ghost", Likes: 7, Tags: []string{"x"}})
	require.NoError(t, err)
	_, err = f.raw(t).DeleteOne(ctx, bson.M{"_id": p.ID})
	require.NoError(t, err)

	ok, err := p.Sync(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, p.Removed())
	require.Equal(t, "Ghost", p.Name)
	require.Equal(t, 7, p.Likes)
	require.Equal(t, []string{"x"}, p.Tags)
}

func TestSyncPicksUpExternalWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.coll.Create(ctx, &person{Name: "Before"})
	require.NoError(t, err)
	p.Scratch = "keep me"

	_, err = f.raw(t).FindOneAndUpdate(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{"name": "After", "likes": 3}})
	require.NoError(t, err)

	ok, err := f.coll.Sync(ctx, p)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "After", p.Name)
	require.Equal(t, 3, p.Likes)
	require.Equal(t, "keep me", p.Scratch)
}

func TestSyncMalformedRecordLeavesDocumentUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.coll.Create(ctx, &person{Name: "Shape", Likes: 2, Tags: []string{"t"}})
	require.NoError(t, err)

	_, err = f.raw(t).FindOneAndUpdate(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{"name": "Changed", "likes": "many"}})
	require.NoError(t, err)

	before := *p
	beforeRemoved := p.Removed()
	ok, err := p.Sync(ctx)
	require.False(t, ok)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, p.ID, syncErr.ID)
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)

	require.Equal(t, before, *p)
	require.Equal(t, beforeRemoved, p.Removed())
	require.Equal(t, "Shape", p.Name)
}

func TestUpdateWithMalformedResultIsSyncError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.coll.Create(ctx, &person{Name: "Shape", Likes: 2})
	require.NoError(t, err)

	before := *p
	ok, err := p.Set(ctx, "tags", "not-a-list")
	require.False(t, ok)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, before, *p)
}

func TestReinsertUndoesRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.coll.Create(ctx, &person{Name: "Phoenix", Likes: 9})
	require.NoError(t, err)
	id := p.ID

	_, err = p.Remove(ctx)
	require.NoError(t, err)
	require.True(t, p.Removed())

	require.NoError(t, p.Reinsert(ctx))
	require.False(t, p.Removed())
	require.Equal(t, id, p.ID)

	back, err := f.coll.FindID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 9, back.Likes)

	// the record exists again, so a second reinsert collides on _id
	require.Error(t, p.Reinsert(ctx))
}

func TestRestoreConvertsBeforeWriting(t *testing.T) {
	var kinds []EventKind
	f := newFixture(t, WithObserver(ObserverFunc(func(ctx context.Context, ev Event) error {
		kinds = append(kinds, ev.Kind)
		return nil
	})))
	ctx := context.Background()

	bad, err := bson.Marshal(bson.D{{Key: "_id", Value: 7}, {Key: "name", Value: "x"}, {Key: "likes", Value: "many"}})
	require.NoError(t, err)
	_, err = f.coll.Restore(ctx, bad)
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	missing, err := f.coll.FindID(ctx, 7)
	require.NoError(t, err)
	require.Nil(t, missing)

	good, err := bson.Marshal(bson.D{{Key: "_id", Value: 8}, {Key: "name", Value: "y"}, {Key: "likes", Value: 3}})
	require.NoError(t, err)
	m, err := f.coll.Restore(ctx, good)
	require.NoError(t, err)
	restored := m.(*person)
	require.True(t, restored.Bound())
	_, err = restored.Inc(ctx, "likes", 1)
	require.NoError(t, err)
	require.Equal(t, 4, restored.Likes)

	// records without an _id take the create path, defaults and validation included
	fresh, err := bson.Marshal(bson.D{{Key: "name", Value: "z"}})
	require.NoError(t, err)
	m, err = f.coll.Restore(ctx, fresh)
	require.NoError(t, err)
	require.NotNil(t, m.(*person).ID)
	require.Equal(t, []string{}, m.(*person).Tags)

	nameless, err := bson.Marshal(bson.D{{Key: "likes", Value: 1}})
	require.NoError(t, err)
	_, err = f.coll.Restore(ctx, nameless)
	require.Error(t, err)

	require.Equal(t, []EventKind{EventReinserted, EventUpdated, EventCreated}, kinds)
}

func TestUnboundDocumentSelfService(t *testing.T) {
	p := &person{Name: "loose"}
	_, err := p.Inc(context.Background(), "likes", 1)
	require.ErrorIs(t, err, ErrUnbound)
	_, err = p.Sync(context.Background())
	require.ErrorIs(t, err, ErrUnbound)
	_, err = p.Remove(context.Background())
	require.ErrorIs(t, err, ErrUnbound)
	require.ErrorIs(t, p.Reinsert(context.Background()), ErrUnbound)
}

func TestConcurrentIncrementsConverge(t *testing.T) {
	srv := memstore.New()
	ctx := context.Background()
	a := NewCollection[person](NewConnectionManager(srv.Dialer(), "odm_test"), personSchema)
	b := NewCollection[person](NewConnectionManager(srv.Dialer(), "odm_test"), personSchema)

	p, err := a.Create(ctx, &person{Name: "Counter"})
	require.NoError(t, err)

	const workers, perWorker = 4, 25
	var wg sync.WaitGroup
	errs := make(chan error, 2*workers)
	for _, coll := range []*Collection[person, *person]{a, b} {
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(coll *Collection[person, *person]) {
				defer wg.Done()
				mine, err := coll.FindID(ctx, p.ID)
				if err != nil {
					errs <- err
					return
				}
				for i := 0; i < perWorker; i++ {
					if _, err := coll.Inc(ctx, mine, "likes", 1); err != nil {
						errs <- err
						return
					}
				}
			}(coll)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	ok, err := p.Sync(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2*workers*perWorker, p.Likes)
}

func TestEnsureIndexesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coll.EnsureIndexes(ctx))
	require.NoError(t, f.coll.EnsureIndexes(ctx))
	require.Equal(t, []string{"name_1", "name_likes"}, f.raw(t).(*memstore.Collection).Indexes())
}

func TestObserversSeeWrites(t *testing.T) {
	var mu sync.Mutex
	var kinds []EventKind
	record := ObserverFunc(func(ctx context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, ev.Kind)
		require.Equal(t, "persons", ev.Collection)
		require.Equal(t, "Person", ev.Model)
		return nil
	})
	failing := ObserverFunc(func(ctx context.Context, ev Event) error {
		return fmt.Errorf("bus down")
	})
	f := newFixture(t, WithObserver(record), WithObserver(failing))
	ctx := context.Background()

	p, err := f.coll.Create(ctx, &person{Name: "Obs"})
	require.NoError(t, err)
	_, err = p.Inc(ctx, "likes", 2)
	require.NoError(t, err)
	_, err = p.Remove(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Reinsert(ctx))

	require.Equal(t, []EventKind{EventCreated, EventUpdated, EventRemoved, EventReinserted}, kinds)
}

func TestWrongModelThroughSelfService(t *testing.T) {
	f := newFixture(t)
	type other struct {
		Base `bson:",inline"`
	}
	o := &other{Base: Base{ID: 1}}
	o.bind(f.coll, o)
	_, err := o.Inc(context.Background(), "x", 1)
	require.True(t, errors.Is(err, ErrWrongModel))
}
