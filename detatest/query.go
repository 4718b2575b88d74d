package detatest

import (
	"fmt"
	"reflect"
	"strings"
)

// matchQuery reports whether it satisfies any of the AND-combined
// conditions in queries. An empty query list matches everything.
func matchQuery(it item, queries []map[string]interface{}) (bool, error) {
	if len(queries) == 0 {
		return true, nil
	}
	for _, query := range queries {
		ok, err := matchAll(it, query)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchAll(it item, query map[string]interface{}) (bool, error) {
	for field, want := range query {
		ok, err := matchCondition(it, field, want)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchCondition(it item, field string, want interface{}) (bool, error) {
	path, op, _ := strings.Cut(field, "?")

	// Nested AND-objects address sub fields.
	if nested, isObject := want.(map[string]interface{}); isObject && op == "" {
		got, ok := lookupPath(it, path)
		if !ok {
			return false, nil
		}
		if sub, isItem := got.(map[string]interface{}); isItem {
			return matchAll(sub, nested)
		}
		return false, nil
	}

	got, ok := lookupPath(it, path)

	switch op {
	case "":
		return ok && reflect.DeepEqual(got, want), nil
	case "ne":
		return !ok || !reflect.DeepEqual(got, want), nil
	case "lt", "gt", "lte", "gte":
		if !ok {
			return false, nil
		}
		c, cmpOK := compare(got, want)
		if !cmpOK {
			return false, nil
		}
		switch op {
		case "lt":
			return c < 0, nil
		case "gt":
			return c > 0, nil
		case "lte":
			return c <= 0, nil
		default:
			return c >= 0, nil
		}
	case "pfx":
		s, isString := got.(string)
		prefix, wantString := want.(string)
		return ok && isString && wantString && strings.HasPrefix(s, prefix), nil
	case "r":
		bounds, isList := want.([]interface{})
		if !isList || len(bounds) != 2 {
			return false, fmt.Errorf("range of %s must be a [start, end] list", path)
		}
		if !ok {
			return false, nil
		}
		lo, loOK := compare(got, bounds[0])
		hi, hiOK := compare(got, bounds[1])
		return loOK && hiOK && lo >= 0 && hi <= 0, nil
	case "contains":
		return ok && contains(got, want), nil
	case "not_contains":
		return !ok || !contains(got, want), nil
	default:
		return false, fmt.Errorf("unknown query operator %q", op)
	}
}

func compare(a, b interface{}) (int, bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}

func contains(got, want interface{}) bool {
	switch v := got.(type) {
	case string:
		s, ok := want.(string)
		return ok && strings.Contains(v, s)
	case []interface{}:
		for _, e := range v {
			if reflect.DeepEqual(e, want) {
				return true
			}
		}
	}
	return false
}

func lookupPath(it map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = it
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setPath(it map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(path, ".")
	m := it
	for _, segment := range segments[:len(segments)-1] {
		next, ok := m[segment].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			m[segment] = next
		}
		m = next
	}
	m[segments[len(segments)-1]] = value
}

func deletePath(it map[string]interface{}, path string) {
	segments := strings.Split(path, ".")
	m := it
	for _, segment := range segments[:len(segments)-1] {
		next, ok := m[segment].(map[string]interface{})
		if !ok {
			return
		}
		m = next
	}
	delete(m, segments[len(segments)-1])
}
