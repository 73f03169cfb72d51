package odm

import (
	"context"
	"errors"
	"testing"

	"github.com/gogotex/docsync/internal/store"
	"github.com/gogotex/docsync/internal/store/memstore"
)

type person struct {
	Base  `bson:",inline"`
	Name  string   `bson:"name"`
	Likes int      `bson:"likes"`
	Tags  []string `bson:"tags"`
	// Scratch never reaches the store.
	Scratch string `bson:"-"`
}

func (p *person) ApplyDefaults() {
	if p.Tags == nil {
		p.Tags = []string{}
	}
}

func (p *person) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

var personSchema = Schema{
	Name: "Person",
	Indexes: []Index{
		{Fields: []string{"name"}},
		{Fields: []string{"name", "-likes"}, Name: "name_likes"},
	},
}

type fixture struct {
	srv   *memstore.Server
	conn  *ConnectionManager
	coll  *Collection[person, *person]
	dials int
}

func newFixture(t *testing.T, opts ...CollectionOption) *fixture {
	t.Helper()
	f := &fixture{srv: memstore.New()}
	dial := f.srv.Dialer()
	f.conn = NewConnectionManager(func(ctx context.Context) (store.Client, error) {
		f.dials++
		return dial(ctx)
	}, "odm_test")
	f.coll = NewCollection[person](f.conn, personSchema, opts...)
	return f
}

// raw returns a handle on the backing collection that bypasses the odm layer.
func (f *fixture) raw(t *testing.T) store.Collection {
	t.Helper()
	return f.srv.Client().Database("odm_test").Collection(f.coll.Name())
}
