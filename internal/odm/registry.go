package odm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// Proxy is the type-erased view of a Collection used where the model type is
// only known by name (CLI commands, exports).
type Proxy interface {
	Name() string
	Schema() Schema
	EnsureIndexes(ctx context.Context) error
	Each(ctx context.Context, query interface{}, fn func(Model) error, opts ...FindOption) error
	Restore(ctx context.Context, raw bson.Raw) (Model, error)
}

// ProxyFactory builds the proxy for one model on top of conn.
type ProxyFactory func(conn *ConnectionManager) Proxy

// Registry maps short model names to proxy factories. It is filled at
// startup; Override swaps in a custom proxy for an already registered name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProxyFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProxyFactory)}
}

// Register adds T under schema.Name with the default Collection proxy. It
// panics when the name is taken or the schema does not fit T.
func Register[T any, P PtrModel[T]](r *Registry, schema Schema, opts ...CollectionOption) {
	if schema.Name == "" {
		panic("odm: Register needs a schema name")
	}
	// resolve eagerly so a bad schema fails at startup, not on first use
	_ = NewCollection[T, P](nil, schema, opts...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[schema.Name]; dup {
		panic(fmt.Sprintf("odm: model %q registered twice", schema.Name))
	}
	r.factories[schema.Name] = func(conn *ConnectionManager) Proxy {
		return NewCollection[T, P](conn, schema, opts...)
	}
}

// Override replaces the proxy factory of a registered model.
func (r *Registry) Override(name string, f ProxyFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	r.factories[name] = f
	return nil
}

// Proxy returns the proxy for name bound to conn.
func (r *Registry) Proxy(name string, conn *ConnectionManager) (Proxy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return f(conn), nil
}

// Names lists registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the typed collection registered under name. It fails with
// ErrWrongModel when the registered proxy is not a *Collection[T, P].
func Lookup[T any, P PtrModel[T]](r *Registry, name string, conn *ConnectionManager) (*Collection[T, P], error) {
	p, err := r.Proxy(name, conn)
	if err != nil {
		return nil, err
	}
	c, ok := p.(*Collection[T, P])
	if !ok {
		return nil, fmt.Errorf("%w: %s is served by %T", ErrWrongModel, name, p)
	}
	return c, nil
}
