package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/gogotex/docsync/internal/store"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newColl(t *testing.T) *Collection {
	t.Helper()
	return New().Client().Database("test").Collection("things").(*Collection)
}

func decode(t *testing.T, raw bson.Raw) bson.M {
	t.Helper()
	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	return m
}

func codeOf(err error) int {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Code
	}
	return 0
}

func TestInsertAssignsObjectID(t *testing.T) {
	c := newColl(t)
	ctx := context.Background()
	id, err := c.InsertOne(ctx, bson.M{"name": "a"})
	require.NoError(t, err)
	require.IsType(t, primitive.ObjectID{}, id)

	raw, err := c.FindOne(ctx, bson.M{"_id": id})
	require.NoError(t, err)
	require.Equal(t, "a", decode(t, raw)["name"])

	_, err = c.InsertOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "name", Value: "b"}})
	require.Equal(t, CodeDuplicateKey, codeOf(err))
	require.Equal(t, 1, c.Len())
}

func TestInsertRejectsReservedKeys(t *testing.T) {
	c := newColl(t)
	ctx := context.Background()
	_, err := c.InsertOne(ctx, bson.M{"a.b": 1})
	require.Equal(t, CodeBadValue, codeOf(err))
	_, err = c.InsertOne(ctx, bson.M{"nested": bson.M{"$bad": 1}})
	require.Equal(t, CodeBadValue, codeOf(err))
	require.Equal(t, 0, c.Len())
}

func TestDataIsSharedAcrossClients(t *testing.T) {
	srv := New()
	ctx := context.Background()
	a, err := srv.Dialer()(ctx)
	require.NoError(t, err)
	b, err := srv.Dialer()(ctx)
	require.NoError(t, err)
	require.NotSame(t, a.(*Client), b.(*Client))

	_, err = a.Database("db").Collection("c").InsertOne(ctx, bson.M{"_id": "x"})
	require.NoError(t, err)
	_, err = b.Database("db").Collection("c").FindOne(ctx, bson.M{"_id": "x"})
	require.NoError(t, err)
	_, err = b.Database("other").Collection("c").FindOne(ctx, bson.M{"_id": "x"})
	require.ErrorIs(t, err, store.ErrNoDocuments)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = srv.Dialer()(cancelled)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFilters(t *testing.T) {
	c := newColl(t)
	ctx := context.Background()
	for _, d := range []bson.M{
		{"_id": 1, "name": "ann", "age": 31, "tags": bson.A{"a", "b"}, "addr": bson.M{"city": "Oslo"}},
		{"_id": 2, "name": "bob", "age": 25, "tags": bson.A{"b"}},
		{"_id": 3, "name": "cid", "age": 40.5},
	} {
		_, err := c.InsertOne(ctx, d)
		require.NoError(t, err)
	}

	cases := []struct {
		name   string
		filter interface{}
		want   []int32
	}{
		{"all", nil, []int32{1, 2, 3}},
		{"eq", bson.M{"name": "bob"}, []int32{2}},
		{"array contains", bson.M{"tags": "b"}, []int32{1, 2}},
		{"dotted", bson.M{"addr.city": "Oslo"}, []int32{1}},
		{"array index", bson.M{"tags.1": "b"}, []int32{1}},
		{"gt mixed numeric", bson.M{"age": bson.M{"$gt": 30}}, []int32{1, 3}},
		{"range", bson.M{"age": bson.M{"$gte": 25, "$lt": 40}}, []int32{1, 2}},
		{"ne", bson.M{"name": bson.M{"$ne": "ann"}}, []int32{2, 3}},
		{"in", bson.M{"name": bson.M{"$in": bson.A{"ann", "cid"}}}, []int32{1, 3}},
		{"nin", bson.M{"tags": bson.M{"$nin": bson.A{"a"}}}, []int32{2, 3}},
		{"exists", bson.M{"tags": bson.M{"$exists": false}}, []int32{3}},
		{"missing equals null", bson.M{"addr": nil}, []int32{2, 3}},
		{"or", bson.M{"$or": bson.A{bson.M{"name": "ann"}, bson.M{"age": 25}}}, []int32{1, 2}},
		{"nor", bson.M{"$nor": bson.A{bson.M{"name": "ann"}}}, []int32{2, 3}},
		{"and", bson.M{"$and": bson.A{bson.M{"tags": "b"}, bson.M{"age": bson.M{"$lt": 30}}}}, []int32{2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cur, err := c.Find(ctx, tc.filter, store.FindOptions{Sort: bson.D{{Key: "_id", Value: 1}}})
			require.NoError(t, err)
			var got []int32
			for cur.Next(ctx) {
				got = append(got, decode(t, cur.Current())["_id"].(int32))
			}
			require.NoError(t, cur.Close(ctx))
			require.Equal(t, tc.want, got)
		})
	}

	_, err := c.Find(ctx, bson.M{"$where": "1"}, store.FindOptions{})
	require.Equal(t, CodeBadValue, codeOf(err))
	_, err = c.FindOne(ctx, bson.M{"age": bson.M{"$regex": "x"}})
	require.Equal(t, CodeBadValue, codeOf(err))
}

func TestFindOneAndUpdateOperators(t *testing.T) {
	c := newColl(t)
	ctx := context.Background()
	_, err := c.InsertOne(ctx, bson.M{"_id": "p", "n": 1, "tags": bson.A{"x"}, "gone": true})
	require.NoError(t, err)

	raw, err := c.FindOneAndUpdate(ctx, bson.M{"_id": "p"}, bson.D{
		{Key: "$inc", Value: bson.M{"n": 2, "fresh": 1}},
		{Key: "$set", Value: bson.M{"meta.owner": "me"}},
		{Key: "$unset", Value: bson.M{"gone": ""}},
		{Key: "$push", Value: bson.M{"tags": bson.M{"$each": bson.A{"y", "x"}}}},
	})
	require.NoError(t, err)
	got := decode(t, raw)
	require.Equal(t, int32(3), got["n"])
	require.Equal(t, int32(1), got["fresh"])
	require.Equal(t, bson.M{"owner": "me"}, got["meta"])
	require.NotContains(t, got, "gone")
	require.Equal(t, bson.A{"x", "y", "x"}, got["tags"])

	raw, err = c.FindOneAndUpdate(ctx, bson.M{"_id": "p"}, bson.D{
		{Key: "$pull", Value: bson.M{"tags": "x"}},
		{Key: "$addToSet", Value: bson.M{"labels": bson.M{"$each": bson.A{"a", "a", "b"}}}},
	})
	require.NoError(t, err)
	got = decode(t, raw)
	require.Equal(t, bson.A{"y"}, got["tags"])
	require.Equal(t, bson.A{"a", "b"}, got["labels"])
}

func TestFindOneAndUpdateRejections(t *testing.T) {
	c := newColl(t)
	ctx := context.Background()
	_, err := c.InsertOne(ctx, bson.M{"_id": "p", "name": "n", "count": 1})
	require.NoError(t, err)
	before, err := c.FindOne(ctx, bson.M{"_id": "p"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		update interface{}
		code   int
	}{
		{"replacement", bson.M{"name": "x"}, CodeBadValue},
		{"empty", bson.M{}, CodeBadValue},
		{"unknown modifier", bson.M{"$rename": bson.M{"name": "n2"}}, CodeBadValue},
		{"modify id", bson.M{"$set": bson.M{"_id": "q"}}, CodeImmutableField},
		{"inc string", bson.M{"$inc": bson.M{"name": 1}}, CodeTypeMismatch},
		{"inc by string", bson.M{"$inc": bson.M{"count": "1"}}, CodeTypeMismatch},
		{"push onto scalar", bson.M{"$push": bson.M{"name": "x"}}, CodeBadValue},
		{"dotted key", bson.M{"$set": bson.M{"sub": bson.M{"a.b": 1}}}, CodeBadValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.FindOneAndUpdate(ctx, bson.M{"_id": "p"}, tc.update)
			require.Equal(t, tc.code, codeOf(err), "%v", err)
		})
	}

	after, err := c.FindOne(ctx, bson.M{"_id": "p"})
	require.NoError(t, err)
	require.Equal(t, decode(t, before), decode(t, after))

	// setting _id to its current value is allowed
	_, err = c.FindOneAndUpdate(ctx, bson.M{"_id": "p"}, bson.M{"$set": bson.M{"_id": "p", "count": 2}})
	require.NoError(t, err)

	_, err = c.FindOneAndUpdate(ctx, bson.M{"_id": "missing"}, bson.M{"$set": bson.M{"a": 1}})
	require.ErrorIs(t, err, store.ErrNoDocuments)
}

func TestIncPromotesOnOverflow(t *testing.T) {
	c := newColl(t)
	ctx := context.Background()
	_, err := c.InsertOne(ctx, bson.M{"_id": 1, "n": int32(2147483647)})
	require.NoError(t, err)
	raw, err := c.FindOneAndUpdate(ctx, bson.M{"_id": 1}, bson.M{"$inc": bson.M{"n": 1}})
	require.NoError(t, err)
	require.Equal(t, int64(2147483648), decode(t, raw)["n"])

	raw, err = c.FindOneAndUpdate(ctx, bson.M{"_id": 1}, bson.M{"$inc": bson.M{"n": 0.5}})
	require.NoError(t, err)
	require.Equal(t, 2147483648.5, decode(t, raw)["n"])
}

func TestDeleteOne(t *testing.T) {
	c := newColl(t)
	ctx := context.Background()
	_, err := c.InsertOne(ctx, bson.M{"_id": 1})
	require.NoError(t, err)
	n, err := c.DeleteOne(ctx, bson.M{"_id": 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, err = c.DeleteOne(ctx, bson.M{"_id": 1})
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestUniqueIndexes(t *testing.T) {
	c := newColl(t)
	ctx := context.Background()
	_, err := c.InsertOne(ctx, bson.M{"_id": 1, "email": "a@x"})
	require.NoError(t, err)
	_, err = c.InsertOne(ctx, bson.M{"_id": 2})
	require.NoError(t, err)
	_, err = c.InsertOne(ctx, bson.M{"_id": 3})
	require.NoError(t, err)

	idx := store.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Unique: true, Sparse: true}
	name, err := c.CreateIndex(ctx, idx)
	require.NoError(t, err)
	require.Equal(t, "email_1", name)
	_, err = c.CreateIndex(ctx, idx)
	require.NoError(t, err)
	_, err = c.CreateIndex(ctx, store.IndexModel{Keys: idx.Keys})
	require.Equal(t, 85, codeOf(err))

	_, err = c.InsertOne(ctx, bson.M{"_id": 4, "email": "a@x"})
	require.Equal(t, CodeDuplicateKey, codeOf(err))
	_, err = c.FindOneAndUpdate(ctx, bson.M{"_id": 2}, bson.M{"$set": bson.M{"email": "a@x"}})
	require.Equal(t, CodeDuplicateKey, codeOf(err))
	_, err = c.FindOneAndUpdate(ctx, bson.M{"_id": 1}, bson.M{"$set": bson.M{"email": "a@x"}})
	require.NoError(t, err)

	// a non-sparse unique index treats missing fields as equal nulls
	_, err = c.CreateIndex(ctx, store.IndexModel{Keys: bson.D{{Key: "phone", Value: 1}}, Unique: true})
	require.Equal(t, CodeDuplicateKey, codeOf(err))
	require.Equal(t, []string{"email_1"}, c.Indexes())
}

func TestSortSkipLimit(t *testing.T) {
	c := newColl(t)
	ctx := context.Background()
	for i, name := range []string{"d", "b", "a", "c"} {
		_, err := c.InsertOne(ctx, bson.M{"_id": i, "name": name, "group": i % 2})
		require.NoError(t, err)
	}
	cur, err := c.Find(ctx, nil, store.FindOptions{
		Sort:  bson.D{{Key: "group", Value: 1}, {Key: "name", Value: -1}},
		Skip:  1,
		Limit: 2,
	})
	require.NoError(t, err)
	var names []string
	for cur.Next(ctx) {
		names = append(names, decode(t, cur.Current())["name"].(string))
	}
	// group 0: d a, group 1: c b
	require.Equal(t, []string{"a", "c"}, names)
	require.False(t, cur.Next(ctx))
	require.Nil(t, cur.Current())

	cur, err = c.Find(ctx, nil, store.FindOptions{Skip: 10})
	require.NoError(t, err)
	require.False(t, cur.Next(ctx))
}

func TestCursorIsSnapshot(t *testing.T) {
	c := newColl(t)
	ctx := context.Background()
	_, err := c.InsertOne(ctx, bson.M{"_id": 1, "v": "old"})
	require.NoError(t, err)
	cur, err := c.Find(ctx, nil, store.FindOptions{})
	require.NoError(t, err)
	_, err = c.FindOneAndUpdate(ctx, bson.M{"_id": 1}, bson.M{"$set": bson.M{"v": "new"}})
	require.NoError(t, err)
	require.True(t, cur.Next(ctx))
	require.Equal(t, "old", decode(t, cur.Current())["v"])
}

func TestCursorStopsOnCancelledContext(t *testing.T) {
	c := newColl(t)
	for i := 0; i < 2; i++ {
		_, err := c.InsertOne(context.Background(), bson.M{"_id": i})
		require.NoError(t, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cur, err := c.Find(ctx, nil, store.FindOptions{})
	require.NoError(t, err)
	require.True(t, cur.Next(ctx))
	require.NoError(t, cur.Err())
	cancel()
	require.False(t, cur.Next(ctx))
	require.ErrorIs(t, cur.Err(), context.Canceled)
	// a later live context does not resume a stopped cursor
	require.False(t, cur.Next(context.Background()))
}
