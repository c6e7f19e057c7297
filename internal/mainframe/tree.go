package mainframe

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/clbanning/mxj/v2"
)

// ParseTree decodes an XML response body into a generic tree rooted below the document element.
// Element attributes appear with a "-" prefix and mixed text under "#text".
func ParseTree(body []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &ProtocolError{Message: "empty response body"}
	}

	root, err := mxj.NewMapXml(trimmed)
	if err != nil {
		return nil, &ProtocolError{Message: "malformed xml", Cause: err}
	}

	if len(root) != 1 {
		return map[string]any(root), nil
	}
	for _, value := range root {
		if tree, ok := asMap(value); ok {
			return tree, nil
		}
		return map[string]any{}, nil
	}
	return map[string]any{}, nil
}

// responseWrapper is the generic envelope some endpoints put around the payload.
const responseWrapper = "response"

// orderListKeys are tried in order; the first key present wins.
var orderListKeys = []string{"orders", "order", "Auftrag", "Auftraege", "Beleg"}

type extractionStrategy struct {
	name    string
	extract func(tree map[string]any) ([]map[string]any, bool)
}

// orderStrategies is the ordered list ExtractOrders walks. The response wrapper is only entered once.
var orderStrategies = buildOrderStrategies()

func buildOrderStrategies() []extractionStrategy {
	direct := make([]extractionStrategy, 0, len(orderListKeys)+1)
	for _, key := range orderListKeys {
		direct = append(direct, keyStrategy(key))
	}

	wrapped := extractionStrategy{
		name: responseWrapper,
		extract: func(tree map[string]any) ([]map[string]any, bool) {
			inner, found := Lookup(tree, responseWrapper)
			if !found {
				return nil, false
			}
			innerTree, ok := asMap(inner)
			if !ok {
				return nil, false
			}
			for _, strategy := range direct {
				if orders, ok := strategy.extract(innerTree); ok {
					return orders, true
				}
			}
			return nil, false
		},
	}

	return append(direct, wrapped)
}

func keyStrategy(key string) extractionStrategy {
	return extractionStrategy{
		name: key,
		extract: func(tree map[string]any) ([]map[string]any, bool) {
			value, found := Lookup(tree, key)
			if !found {
				return nil, false
			}
			return normalizeOrderList(value), true
		},
	}
}

// ExtractOrders returns the order records found in a parsed response. A tree without a
// recognized order key yields an empty, non-nil list.
func ExtractOrders(tree map[string]any) []map[string]any {
	if tree == nil {
		return []map[string]any{}
	}
	for _, strategy := range orderStrategies {
		if orders, ok := strategy.extract(tree); ok {
			return orders
		}
	}
	return []map[string]any{}
}

// normalizeOrderList handles list, single record and a list double-wrapped in a singular element.
func normalizeOrderList(value any) []map[string]any {
	switch typed := value.(type) {
	case []any:
		orders := make([]map[string]any, 0, len(typed))
		for _, element := range typed {
			orders = append(orders, asRecord(element))
		}
		return orders
	case string:
		if strings.TrimSpace(typed) == "" {
			return []map[string]any{}
		}
		return []map[string]any{asRecord(typed)}
	}

	record, ok := asMap(value)
	if !ok {
		return []map[string]any{}
	}

	if len(record) == 1 {
		for _, key := range orderListKeys {
			if inner, found := record[key]; found {
				if _, isList := inner.([]any); isList {
					return normalizeOrderList(inner)
				}
				if _, isMap := asMap(inner); isMap {
					return normalizeOrderList(inner)
				}
			}
		}
	}

	return []map[string]any{record}
}

// Lookup prefers an exact key and falls back to the first case-insensitive match in sorted order.
func Lookup(tree map[string]any, key string) (any, bool) {
	if value, ok := tree[key]; ok {
		return value, true
	}

	keys := make([]string, 0, len(tree))
	for candidate := range tree {
		keys = append(keys, candidate)
	}
	sort.Strings(keys)

	for _, candidate := range keys {
		if strings.EqualFold(candidate, key) {
			return tree[candidate], true
		}
	}
	return nil, false
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case mxj.Map:
		return map[string]any(typed), true
	default:
		return nil, false
	}
}

func asRecord(value any) map[string]any {
	if record, ok := asMap(value); ok {
		return record
	}
	if text, ok := value.(string); ok && strings.TrimSpace(text) != "" {
		return map[string]any{"#text": text}
	}
	return map[string]any{}
}

// StringField returns the first non-empty scalar value among keys, trimmed.
func StringField(record map[string]any, keys ...string) string {
	for _, key := range keys {
		value, found := Lookup(record, key)
		if !found {
			continue
		}
		if text := scalarString(value); text != "" {
			return text
		}
	}
	return ""
}

func scalarString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case []any, map[string]any, mxj.Map:
		if record, ok := asMap(typed); ok {
			if text, ok := record["#text"].(string); ok {
				return strings.TrimSpace(text)
			}
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}
