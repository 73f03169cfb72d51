package odm

import (
	"context"

	"github.com/gogotex/docsync/internal/store"
)

// Cursor walks the results of a Find in store order, inflating one record
// per Next call. It cannot be rewound; run Find again to re-query. Once
// Next has returned false it keeps returning false.
type Cursor[T any, P PtrModel[T]] struct {
	coll *Collection[T, P]
	src  store.Cursor
	cur  P
	err  error
	done bool
}

// Next advances to the next document. It returns false at the end of the
// results or on error; check Err afterwards.
func (c *Cursor[T, P]) Next(ctx context.Context) bool {
	if c.done {
		return false
	}
	if !c.src.Next(ctx) {
		c.finish(ctx, c.src.Err())
		return false
	}
	doc, err := c.coll.Thaw(c.src.Current())
	if err != nil {
		c.finish(ctx, err)
		return false
	}
	c.cur = doc
	return true
}

// Doc returns the document Next advanced to, or nil once the cursor is done.
func (c *Cursor[T, P]) Doc() P { return c.cur }

// Err returns the error that stopped the cursor, if any.
func (c *Cursor[T, P]) Err() error { return c.err }

// Close releases the underlying stream. It is safe to call more than once.
func (c *Cursor[T, P]) Close(ctx context.Context) error {
	if c.done {
		return nil
	}
	c.done = true
	c.cur = nil
	return c.src.Close(ctx)
}

// All drains the cursor.
func (c *Cursor[T, P]) All(ctx context.Context) ([]P, error) {
	var out []P
	for c.Next(ctx) {
		out = append(out, c.Doc())
	}
	return out, c.Err()
}

func (c *Cursor[T, P]) finish(ctx context.Context, err error) {
	c.done = true
	c.cur = nil
	c.err = err
	if cerr := c.src.Close(ctx); c.err == nil {
		c.err = cerr
	}
}
