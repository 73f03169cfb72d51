package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gogotex/docsync/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// MongoOptions is the connection configuration handed to Dialer. It is
// copied at construction time and never mutated afterwards.
type MongoOptions struct {
	URI     string
	AppName string
	Timeout time.Duration
}

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, o MongoOptions) (*mongo.Client, error) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// acknowledged writes are forced: update/remove results are read back by the odm layer
	clientOpts := options.Client().
		ApplyURI(o.URI).
		SetWriteConcern(writeconcern.Majority()).
		SetConnectTimeout(timeout)
	if o.AppName != "" {
		clientOpts.SetAppName(o.AppName)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// Dialer returns a store.DialFunc that connects to MongoDB with o.
func Dialer(o MongoOptions) store.DialFunc {
	return func(ctx context.Context) (store.Client, error) {
		c, err := ConnectMongo(ctx, o)
		if err != nil {
			return nil, err
		}
		return &Client{client: c}, nil
	}
}

// Wrap adapts an already connected driver client.
func Wrap(c *mongo.Client) *Client { return &Client{client: c} }
