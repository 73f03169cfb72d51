package database

import (
	"context"
	"errors"

	"github.com/gogotex/docsync/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client implements store.Client on top of the MongoDB driver.
type Client struct {
	client *mongo.Client
}

func (c *Client) Database(name string) store.Database {
	return &Database{db: c.client.Database(name)}
}

func (c *Client) Ping(ctx context.Context) error { return c.client.Ping(ctx, nil) }

func (c *Client) Disconnect(ctx context.Context) error { return c.client.Disconnect(ctx) }

// Database implements store.Database.
type Database struct {
	db *mongo.Database
}

func (d *Database) Name() string { return d.db.Name() }

func (d *Database) Collection(name string) store.Collection {
	return &Collection{col: d.db.Collection(name)}
}

// Collection implements store.Collection. Driver errors are returned as-is
// except mongo.ErrNoDocuments, which maps to store.ErrNoDocuments.
type Collection struct {
	col *mongo.Collection
}

func (c *Collection) Name() string { return c.col.Name() }

func (c *Collection) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	res, err := c.col.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (c *Collection) FindOne(ctx context.Context, filter interface{}) (bson.Raw, error) {
	raw, err := c.col.FindOne(ctx, filter).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNoDocuments
		}
		return nil, err
	}
	return raw, nil
}

func (c *Collection) Find(ctx context.Context, filter interface{}, o store.FindOptions) (store.Cursor, error) {
	opts := options.Find()
	if len(o.Sort) > 0 {
		opts.SetSort(o.Sort)
	}
	if o.Skip > 0 {
		opts.SetSkip(o.Skip)
	}
	if o.Limit > 0 {
		opts.SetLimit(o.Limit)
	}
	cur, err := c.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return &Cursor{cur: cur}, nil
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter, update interface{}) (bson.Raw, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	raw, err := c.col.FindOneAndUpdate(ctx, filter, update, opts).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNoDocuments
		}
		return nil, err
	}
	return raw, nil
}

func (c *Collection) DeleteOne(ctx context.Context, filter interface{}) (int64, error) {
	res, err := c.col.DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *Collection) CreateIndex(ctx context.Context, idx store.IndexModel) (string, error) {
	opts := options.Index().SetName(idx.DefaultName())
	if idx.Unique {
		opts.SetUnique(true)
	}
	if idx.Sparse {
		opts.SetSparse(true)
	}
	return c.col.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: idx.Keys, Options: opts})
}

// Cursor implements store.Cursor over *mongo.Cursor.
type Cursor struct {
	cur *mongo.Cursor
}

func (c *Cursor) Next(ctx context.Context) bool { return c.cur.Next(ctx) }

func (c *Cursor) Current() bson.Raw { return c.cur.Current }

func (c *Cursor) Err() error { return c.cur.Err() }

func (c *Cursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
