package odm

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/gogotex/docsync/internal/store"
	"go.mongodb.org/mongo-driver/bson"
)

// Keys that belong to the in-memory bookkeeping of a document and must never
// reach the store.
var bookkeepingKeys = map[string]bool{
	"_type":    true,
	"_owner":   true,
	"_removed": true,
}

// Index declares one index over a list of fields. A leading '-' on a field
// name makes that key descending.
type Index struct {
	Fields []string
	Unique bool
	Sparse bool
	Name   string
}

func (i Index) model() store.IndexModel {
	keys := make(bson.D, 0, len(i.Fields))
	for _, f := range i.Fields {
		if strings.HasPrefix(f, "-") {
			keys = append(keys, bson.E{Key: f[1:], Value: -1})
			continue
		}
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	return store.IndexModel{Keys: keys, Name: i.Name, Unique: i.Unique, Sparse: i.Sparse}
}

// Schema describes a model type to the odm layer.
type Schema struct {
	// Name is the short model name used by the Registry, e.g. "Person".
	Name string
	// Collection overrides the collection name derived from Name.
	Collection string
	// Fields lists the stored field names, _id excluded. When empty it is
	// derived from the bson tags of the model type.
	Fields  []string
	Indexes []Index
}

// CollectionName returns the collection this schema maps to.
func (s Schema) CollectionName() string {
	if s.Collection != "" {
		return s.Collection
	}
	return CollectionName(s.Name)
}

// CollectionName normalizes a model type name into a collection name:
// "Person" -> "persons", "BlogPost" -> "blog_posts", "Category" -> "categories".
func CollectionName(model string) string {
	var b strings.Builder
	runes := []rune(model)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return pluralize(b.String())
}

func pluralize(s string) string {
	switch {
	case s == "":
		return s
	case strings.HasSuffix(s, "s"), strings.HasSuffix(s, "x"), strings.HasSuffix(s, "z"),
		strings.HasSuffix(s, "ch"), strings.HasSuffix(s, "sh"):
		return s + "es"
	case strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(s[len(s)-2])):
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}

// descriptor is a Schema resolved against a concrete Go type: every declared
// field is mapped to its struct index path once, at construction.
type descriptor struct {
	schema Schema
	paths  map[string][]int
}

var baseType = reflect.TypeOf(Base{})

func describe(t reflect.Type, s Schema) (*descriptor, error) {
	if s.Name == "" {
		s.Name = t.Name()
	}
	s.Collection = s.CollectionName()
	if found, err := checkBase(t); err != nil {
		return nil, fmt.Errorf("odm: schema %s: %w", s.Name, err)
	} else if !found {
		return nil, fmt.Errorf("odm: schema %s: %s does not embed odm.Base", s.Name, t)
	}
	paths := make(map[string][]int)
	var order []string
	collectFields(t, nil, paths, &order)
	if len(s.Fields) == 0 {
		s.Fields = order
	}
	for _, f := range s.Fields {
		if bookkeepingKeys[f] || f == "_id" {
			return nil, fmt.Errorf("odm: schema %s: field %q is reserved", s.Name, f)
		}
		if _, ok := paths[f]; !ok {
			return nil, fmt.Errorf("odm: schema %s: field %q is not a stored field of %s", s.Name, f, t)
		}
	}
	return &descriptor{schema: s, paths: paths}, nil
}

// checkBase looks for the embedded Base in t and inlined structs. Base must
// be embedded by value with the inline tag, or _id is stored in a
// subdocument and never read back into the document.
func checkBase(t reflect.Type) (bool, error) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		_, opts, _ := strings.Cut(sf.Tag.Get("bson"), ",")
		inline := strings.Contains(opts, "inline")
		switch {
		case sf.Type == baseType || sf.Type == reflect.PointerTo(baseType):
			if sf.Type != baseType || !sf.Anonymous || !inline {
				return true, fmt.Errorf("%s must embed odm.Base by value with `bson:\",inline\"`", t)
			}
			return true, nil
		case inline && sf.Type.Kind() == reflect.Struct:
			if found, err := checkBase(sf.Type); found {
				return true, err
			}
		}
	}
	return false, nil
}

// collectFields walks exported struct fields the way the bson codec names
// them: tag name first, lower-cased Go name otherwise, inline structs flattened.
func collectFields(t reflect.Type, prefix []int, paths map[string][]int, order *[]string) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" && !sf.Anonymous {
			continue
		}
		idx := append(append([]int(nil), prefix...), i)
		if sf.Type == baseType {
			continue
		}
		tag := sf.Tag.Get("bson")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if strings.Contains(opts, "inline") && sf.Type.Kind() == reflect.Struct {
			collectFields(sf.Type, idx, paths, order)
			continue
		}
		if sf.PkgPath != "" {
			continue
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		if name == "_id" {
			continue
		}
		if _, dup := paths[name]; dup {
			continue
		}
		paths[name] = idx
		*order = append(*order, name)
	}
}

// copyFields overwrites every declared field of dst with the value held by src.
func (d *descriptor) copyFields(dst, src reflect.Value) {
	for _, f := range d.schema.Fields {
		p := d.paths[f]
		dst.FieldByIndex(p).Set(src.FieldByIndex(p))
	}
}
