package odm

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Pack converts m into the field map stored for it: _id (when set) followed
// by every declared field of s in declared order. Bookkeeping state is never
// emitted. With an empty s.Fields every stored field of m is emitted.
func Pack(m Model, s Schema) (bson.D, error) {
	raw, err := bson.Marshal(m)
	if err != nil {
		return nil, &ConversionError{Model: s.Name, ID: m.document().ID, Err: err}
	}
	var full bson.D
	if err := bson.Unmarshal(raw, &full); err != nil {
		return nil, &ConversionError{Model: s.Name, ID: m.document().ID, Err: err}
	}

	out := make(bson.D, 0, len(full))
	byKey := make(map[string]interface{}, len(full))
	for _, e := range full {
		if bookkeepingKeys[e.Key] {
			continue
		}
		if e.Key == "_id" {
			out = append(out, e)
			continue
		}
		byKey[e.Key] = e.Value
	}
	if len(s.Fields) == 0 {
		for _, e := range full {
			if _, ok := byKey[e.Key]; ok {
				out = append(out, e)
			}
		}
		return out, nil
	}
	for _, f := range s.Fields {
		if v, ok := byKey[f]; ok {
			out = append(out, bson.E{Key: f, Value: v})
		}
	}
	return out, nil
}

// Unpack builds a fresh T from a stored record. A value whose shape does not
// fit the declared Go field fails the whole conversion with a
// *ConversionError; nothing but the fresh value is touched.
func Unpack[T any, P PtrModel[T]](raw bson.Raw, s Schema) (P, error) {
	p := P(new(T))
	if err := bson.Unmarshal(raw, p); err != nil {
		return nil, &ConversionError{Model: s.Name, ID: rawID(raw), Err: err}
	}
	return p, nil
}

func rawID(raw bson.Raw) interface{} {
	v, err := raw.LookupErr("_id")
	if err != nil {
		return nil
	}
	var id interface{}
	if err := v.Unmarshal(&id); err != nil {
		return nil
	}
	return id
}
