package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Expand turns dotted keys into nested objects, {"address.city": "x"} becomes
// {"address": {"city": "x"}}. When a key is both a leaf and a prefix the
// nested object wins.
func Expand(rec Record) map[string]any {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	// shorter keys first so prefixes are placed before their children
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})

	out := make(map[string]any)
	for _, key := range keys {
		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		leaf := parts[len(parts)-1]
		if _, nested := node[leaf].(map[string]any); nested {
			continue
		}
		node[leaf] = rec[key]
	}
	return out
}

// Flatten is the inverse of Expand for decoded JSON. Numbers and booleans are
// converted to text and nulls are dropped. Arrays are rejected.
func Flatten(in map[string]any) (Record, error) {
	out := make(Record)
	if err := flatten("", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, in map[string]any, out Record) error {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case nil:
		case string:
			out[key] = val
		case bool:
			out[key] = strconv.FormatBool(val)
		case json.Number:
			out[key] = val.String()
		case float64:
			out[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("field %s: unsupported value of type %T", key, v)
		}
	}
	return nil
}
