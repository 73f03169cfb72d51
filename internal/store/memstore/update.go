package memstore

import (
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// applyUpdate applies an operator update document to d and returns the
// result. d is owned by the caller and may be modified.
func applyUpdate(d bson.D, update bson.D) (bson.D, error) {
	for _, op := range update {
		if !strings.HasPrefix(op.Key, "$") {
			return nil, writeErr(CodeBadValue, "update document requires atomic operators")
		}
		fields, ok := op.Value.(bson.D)
		if !ok {
			return nil, writeErr(CodeBadValue, "modifier %s expects a document", op.Key)
		}
		for _, f := range fields {
			if f.Key == "_id" || strings.HasPrefix(f.Key, "_id.") {
				if op.Key == "$set" {
					if cur, _ := lookup(d, "_id"); equal(cur, f.Value) {
						continue
					}
				}
				return nil, writeErr(CodeImmutableField, "performing an update on the path '_id' would modify the immutable field '_id'")
			}
			var err error
			switch op.Key {
			case "$set":
				d, err = setPath(d, f.Key, f.Value)
			case "$unset":
				d = unsetPath(d, f.Key)
			case "$inc":
				d, err = incPath(d, f.Key, f.Value)
			case "$push":
				d, err = pushPath(d, f.Key, f.Value, false)
			case "$addToSet":
				d, err = pushPath(d, f.Key, f.Value, true)
			case "$pull":
				d, err = pullPath(d, f.Key, f.Value)
			default:
				return nil, writeErr(CodeBadValue, "unknown modifier: %s", op.Key)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return d, nil
}

// setPath assigns value at a dotted path, creating intermediate documents.
func setPath(d bson.D, path string, value interface{}) (bson.D, error) {
	head, rest, nested := strings.Cut(path, ".")
	for i, e := range d {
		if e.Key != head {
			continue
		}
		if !nested {
			d[i].Value = value
			return d, nil
		}
		switch child := e.Value.(type) {
		case bson.D:
			next, err := setPath(child, rest, value)
			if err != nil {
				return nil, err
			}
			d[i].Value = next
			return d, nil
		case bson.A:
			next, err := setIndex(child, rest, value)
			if err != nil {
				return nil, err
			}
			d[i].Value = next
			return d, nil
		case nil:
			next, err := setPath(bson.D{}, rest, value)
			if err != nil {
				return nil, err
			}
			d[i].Value = next
			return d, nil
		}
		return nil, writeErr(CodeBadValue, "cannot create field %q in element {%s: %v}", rest, head, e.Value)
	}
	if !nested {
		return append(d, bson.E{Key: head, Value: value}), nil
	}
	child, err := setPath(bson.D{}, rest, value)
	if err != nil {
		return nil, err
	}
	return append(d, bson.E{Key: head, Value: child}), nil
}

func setIndex(a bson.A, path string, value interface{}) (bson.A, error) {
	head, rest, nested := strings.Cut(path, ".")
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return nil, writeErr(CodeBadValue, "cannot create field %q in array", head)
	}
	for len(a) <= n {
		a = append(a, nil)
	}
	if !nested {
		a[n] = value
		return a, nil
	}
	child, _ := a[n].(bson.D)
	next, err := setPath(child, rest, value)
	if err != nil {
		return nil, err
	}
	a[n] = next
	return a, nil
}

func unsetPath(d bson.D, path string) bson.D {
	head, rest, nested := strings.Cut(path, ".")
	for i, e := range d {
		if e.Key != head {
			continue
		}
		if !nested {
			return append(d[:i:i], d[i+1:]...)
		}
		if child, ok := e.Value.(bson.D); ok {
			d[i].Value = unsetPath(child, rest)
		}
		return d
	}
	return d
}

func incPath(d bson.D, path string, delta interface{}) (bson.D, error) {
	if _, ok := toFloat(delta); !ok {
		return nil, writeErr(CodeTypeMismatch, "cannot increment with non-numeric argument: {%s: %v}", path, delta)
	}
	cur, found := lookup(d, path)
	if !found || cur == nil {
		return setPath(d, path, delta)
	}
	sum, ok := addNumbers(cur, delta)
	if !ok {
		return nil, writeErr(CodeTypeMismatch, "cannot apply $inc to a value of non-numeric type: field %q", path)
	}
	return setPath(d, path, sum)
}

// addNumbers keeps the widest operand type, promoting int32 overflow to int64.
func addNumbers(a, b interface{}) (interface{}, bool) {
	switch x := a.(type) {
	case int32:
		switch y := b.(type) {
		case int32:
			s := int64(x) + int64(y)
			if s > math.MaxInt32 || s < math.MinInt32 {
				return s, true
			}
			return int32(s), true
		case int64:
			return int64(x) + y, true
		case float64:
			return float64(x) + y, true
		}
	case int64:
		switch y := b.(type) {
		case int32:
			return x + int64(y), true
		case int64:
			return x + y, true
		case float64:
			return float64(x) + y, true
		}
	case float64:
		if y, ok := toFloat(b); ok {
			return x + y, true
		}
	}
	return nil, false
}

// eachValues unpacks {$each: [...]} modifiers.
func eachValues(v interface{}) bson.A {
	if d, ok := v.(bson.D); ok && len(d) > 0 && d[0].Key == "$each" {
		if list, ok := d[0].Value.(bson.A); ok {
			return list
		}
	}
	return bson.A{v}
}

func pushPath(d bson.D, path string, v interface{}, unique bool) (bson.D, error) {
	values := eachValues(v)
	cur, found := lookup(d, path)
	var arr bson.A
	if found && cur != nil {
		existing, ok := cur.(bson.A)
		if !ok {
			return nil, writeErr(CodeBadValue, "the field %q must be an array", path)
		}
		arr = append(arr, existing...)
	}
	for _, item := range values {
		if unique && containsValue(arr, item) {
			continue
		}
		arr = append(arr, item)
	}
	if arr == nil {
		arr = bson.A{}
	}
	return setPath(d, path, arr)
}

func pullPath(d bson.D, path string, cond interface{}) (bson.D, error) {
	cur, found := lookup(d, path)
	if !found || cur == nil {
		return d, nil
	}
	arr, ok := cur.(bson.A)
	if !ok {
		return nil, writeErr(CodeBadValue, "cannot apply $pull to a non-array value")
	}
	ops, isOps := operatorDoc(cond)
	kept := bson.A{}
	for _, item := range arr {
		var drop bool
		if isOps {
			hit, err := matchOperators(item, true, ops)
			if err != nil {
				return nil, err
			}
			drop = hit
		} else {
			drop = equal(item, cond)
		}
		if !drop {
			kept = append(kept, item)
		}
	}
	return setPath(d, path, kept)
}

func containsValue(arr bson.A, v interface{}) bool {
	for _, item := range arr {
		if equal(item, v) {
			return true
		}
	}
	return false
}
