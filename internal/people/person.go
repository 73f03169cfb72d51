// Package people is the demo model served by the docsync API.
package people

import (
	"errors"
	"strings"
	"time"

	"github.com/gogotex/docsync/internal/odm"
)

const ModelName = "Person"

// Person is a stored person record.
type Person struct {
	odm.Base  `bson:",inline"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	Likes     int       `bson:"likes" json:"likes"`
	Tags      []string  `bson:"tags" json:"tags"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Collection is the typed proxy for Person.
type Collection = odm.Collection[Person, *Person]

var (
	ErrNameRequired = errors.New("name is required")
	ErrInvalidEmail = errors.New("email is invalid")
)

func (p *Person) ApplyDefaults() {
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.CreatedAt.IsZero() {
		// stored dates carry millisecond precision
		p.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
}

func (p *Person) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}
	if p.Email != "" {
		at := strings.IndexByte(p.Email, '@')
		if at <= 0 || at == len(p.Email)-1 {
			return ErrInvalidEmail
		}
	}
	return nil
}

var Schema = odm.Schema{
	Name:       ModelName,
	Collection: "people",
	Indexes: []odm.Index{
		{Fields: []string{"name"}},
		{Fields: []string{"email"}, Unique: true, Sparse: true},
		{Fields: []string{"-likes", "name"}, Name: "popularity"},
	},
}

// Register adds Person to r.
func Register(r *odm.Registry, opts ...odm.CollectionOption) {
	odm.Register[Person](r, Schema, opts...)
}

// New returns the Person collection on conn.
func New(conn *odm.ConnectionManager, opts ...odm.CollectionOption) *Collection {
	return odm.NewCollection[Person](conn, Schema, opts...)
}
