package memstore

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// normalize round-trips v through BSON so every value has the type the
// driver would decode it to (int32/int64/float64, bson.D, bson.A, ...).
func normalize(v interface{}) (bson.D, error) {
	if raw, ok := v.(bson.Raw); ok {
		var d bson.D
		err := bson.Unmarshal(raw, &d)
		return d, err
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func normalizeFilter(v interface{}) (bson.D, error) {
	if v == nil {
		return bson.D{}, nil
	}
	return normalize(v)
}

func clone(d bson.D) (bson.D, error) { return normalize(d) }

// validateKeys rejects stored field names the server reserves.
func validateKeys(d bson.D, prefix string) error {
	for _, e := range d {
		if strings.Contains(e.Key, ".") {
			return writeErr(CodeBadValue, "field name %q must not contain '.'", prefix+e.Key)
		}
		if strings.HasPrefix(e.Key, "$") {
			return writeErr(CodeBadValue, "field name %q must not start with '$'", prefix+e.Key)
		}
		if err := validateValue(e.Value, prefix+e.Key+"."); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(v interface{}, prefix string) error {
	switch t := v.(type) {
	case bson.D:
		return validateKeys(t, prefix)
	case bson.A:
		for _, item := range t {
			if err := validateValue(item, prefix); err != nil {
				return err
			}
		}
	}
	return nil
}

// lookup resolves a dotted path. Numeric segments index into arrays.
func lookup(d bson.D, path string) (interface{}, bool) {
	var cur interface{} = d
	for _, seg := range strings.Split(path, ".") {
		switch t := cur.(type) {
		case bson.D:
			found := false
			for _, e := range t {
				if e.Key == seg {
					cur, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		case bson.A:
			n, err := strconv.Atoi(seg)
			if err != nil || n < 0 || n >= len(t) {
				return nil, false
			}
			cur = t[n]
		default:
			return nil, false
		}
	}
	return cur, true
}

// BSON comparison order between type classes.
func typeRank(v interface{}) int {
	switch v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return 1
	case int32, int64, float64, primitive.Decimal128:
		return 2
	case string, primitive.Symbol:
		return 3
	case bson.D:
		return 4
	case bson.A:
		return 5
	case primitive.Binary:
		return 6
	case primitive.ObjectID:
		return 7
	case bool:
		return 8
	case primitive.DateTime, primitive.Timestamp:
		return 9
	case primitive.Regex:
		return 10
	}
	return 11
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compare orders a and b the way the server sorts mixed values.
func compare(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case int32, int64, float64:
		fa, _ := toFloat(x)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case primitive.ObjectID:
		y := b.(primitive.ObjectID)
		return bytes.Compare(x[:], y[:])
	case primitive.DateTime:
		y := b.(primitive.DateTime)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bson.A:
		y := b.(bson.A)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := compare(x[i], y[i]); c != 0 {
				return c
			}
		}
		return len(x) - len(y)
	case bson.D:
		y := b.(bson.D)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := strings.Compare(x[i].Key, y[i].Key); c != 0 {
				return c
			}
			if c := compare(x[i].Value, y[i].Value); c != 0 {
				return c
			}
		}
		return len(x) - len(y)
	case nil:
		return 0
	}
	ab, _ := bson.Marshal(bson.D{{Key: "v", Value: a}})
	bb, _ := bson.Marshal(bson.D{{Key: "v", Value: b}})
	return bytes.Compare(ab, bb)
}

func equal(a, b interface{}) bool {
	return typeRank(a) == typeRank(b) && compare(a, b) == 0
}

func sortDocs(docs []bson.D, order bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range order {
			av, _ := lookup(docs[i], k.Key)
			bv, _ := lookup(docs[j], k.Key)
			c := compare(av, bv)
			if c == 0 {
				continue
			}
			if dir, ok := toFloat(k.Value); ok && dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
