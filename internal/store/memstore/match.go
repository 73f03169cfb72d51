package memstore

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// matches evaluates a query filter against d. Supported: implicit equality
// on dotted paths (with array-contains semantics), $eq $ne $gt $gte $lt $lte
// $in $nin $exists, and the logical $and $or $nor.
func matches(d bson.D, filter bson.D) (bool, error) {
	for _, e := range filter {
		switch e.Key {
		case "$and", "$or", "$nor":
			clauses, ok := e.Value.(bson.A)
			if !ok || len(clauses) == 0 {
				return false, writeErr(CodeBadValue, "%s must be a nonempty array", e.Key)
			}
			ok, err := matchLogical(d, e.Key, clauses)
			if err != nil || !ok {
				return false, err
			}
			continue
		}
		if strings.HasPrefix(e.Key, "$") {
			return false, writeErr(CodeBadValue, "unknown top level operator: %s", e.Key)
		}
		v, found := lookup(d, e.Key)
		var (
			ok  bool
			err error
		)
		if cond, isOps := operatorDoc(e.Value); isOps {
			ok, err = matchOperators(v, found, cond)
		} else {
			ok = matchEq(v, found, e.Value)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(d bson.D, op string, clauses bson.A) (bool, error) {
	for _, c := range clauses {
		sub, ok := c.(bson.D)
		if !ok {
			return false, writeErr(CodeBadValue, "%s entries must be documents", op)
		}
		hit, err := matches(d, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$and" && !hit:
			return false, nil
		case op == "$or" && hit:
			return true, nil
		case op == "$nor" && hit:
			return false, nil
		}
	}
	return op != "$or", nil
}

// operatorDoc reports whether v is a document of query operators.
func operatorDoc(v interface{}) (bson.D, bool) {
	d, ok := v.(bson.D)
	if !ok || len(d) == 0 || !strings.HasPrefix(d[0].Key, "$") {
		return nil, false
	}
	return d, true
}

func matchEq(v interface{}, found bool, want interface{}) bool {
	if !found {
		return want == nil
	}
	if equal(v, want) {
		return true
	}
	if arr, ok := v.(bson.A); ok {
		for _, item := range arr {
			if equal(item, want) {
				return true
			}
		}
	}
	return false
}

// matchAny applies pred to v, or to each element when v is an array.
func matchAny(v interface{}, pred func(interface{}) bool) bool {
	if pred(v) {
		return true
	}
	if arr, ok := v.(bson.A); ok {
		for _, item := range arr {
			if pred(item) {
				return true
			}
		}
	}
	return false
}

func matchOperators(v interface{}, found bool, cond bson.D) (bool, error) {
	for _, op := range cond {
		var ok bool
		switch op.Key {
		case "$eq":
			ok = matchEq(v, found, op.Value)
		case "$ne":
			ok = !matchEq(v, found, op.Value)
		case "$gt", "$gte", "$lt", "$lte":
			if !found {
				return false, nil
			}
			want := op.Value
			ok = matchAny(v, func(x interface{}) bool {
				if typeRank(x) != typeRank(want) {
					return false
				}
				c := compare(x, want)
				switch op.Key {
				case "$gt":
					return c > 0
				case "$gte":
					return c >= 0
				case "$lt":
					return c < 0
				}
				return c <= 0
			})
		case "$in", "$nin":
			list, isArr := op.Value.(bson.A)
			if !isArr {
				return false, writeErr(CodeBadValue, "%s needs an array", op.Key)
			}
			for _, want := range list {
				if matchEq(v, found, want) {
					ok = true
					break
				}
			}
			if op.Key == "$nin" {
				ok = !ok
			}
		case "$exists":
			want, _ := op.Value.(bool)
			if n, isNum := toFloat(op.Value); isNum {
				want = n != 0
			}
			ok = found == want
		default:
			return false, writeErr(CodeBadValue, "unknown operator: %s", op.Key)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
