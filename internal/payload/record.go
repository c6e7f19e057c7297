package payload

import "github.com/rami-aouinti/shopware-sub000/internal/mainframe"

// Record is one order as produced by the XML tree parser or decoded from JSON.
type Record = map[string]any

// field returns the first non-empty scalar among keys. Exact keys win over case-insensitive ones.
func field(record Record, keys ...string) string {
	return mainframe.StringField(record, keys...)
}

// child returns the first nested record among keys.
func child(record Record, keys ...string) (Record, bool) {
	for _, key := range keys {
		value, ok := mainframe.Lookup(record, key)
		if !ok {
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			return nested, true
		}
	}
	return nil, false
}

// list returns the records under the first of keys, unwrapping one level of singular wrapper
// (e.g. Positionen > Position > [...]).
func list(record Record, keys []string, itemKeys []string) []Record {
	for _, key := range keys {
		value, ok := mainframe.Lookup(record, key)
		if !ok {
			continue
		}

		if nested, ok := value.(map[string]any); ok {
			for _, itemKey := range itemKeys {
				if inner, ok := mainframe.Lookup(nested, itemKey); ok {
					return records(inner)
				}
			}
		}
		return records(value)
	}
	return nil
}

func records(value any) []Record {
	switch typed := value.(type) {
	case []any:
		out := make([]Record, 0, len(typed))
		for _, element := range typed {
			if nested, ok := element.(map[string]any); ok {
				out = append(out, nested)
			}
		}
		return out
	case []map[string]any:
		return typed
	case map[string]any:
		return []Record{typed}
	default:
		return nil
	}
}
