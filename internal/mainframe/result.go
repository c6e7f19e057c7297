package mainframe

import (
	"sort"
	"strconv"
	"strings"
)

// ResultCodeOK is the only result code the mainframe uses for success.
const ResultCodeOK = 0

var (
	resultCodeKeys    = []string{"code", "resultCode", "result_code", "Rueckgabewert", "returncode", "status", "Status", "Fehlercode"}
	resultMessageKeys = []string{"message", "msg", "resultMessage", "Meldung", "Text", "text", "Fehlertext", "error"}
)

// Result is the outcome the mainframe reported for a write call.
type Result struct {
	Code    int
	Message string
}

func (r Result) OK() bool { return r.Code == ResultCodeOK }

// ParseResult extracts the numeric result code and message from a raw response body.
// Fields are searched at the top level first and then depth-first through nested elements.
func ParseResult(body string) (Result, error) {
	tree, err := ParseTree([]byte(body))
	if err != nil {
		return Result{}, err
	}

	rawCode, found := findField(tree, resultCodeKeys)
	if !found {
		return Result{}, &ProtocolError{Message: "response carries no result code"}
	}

	code, err := strconv.Atoi(rawCode)
	if err != nil {
		return Result{}, &ProtocolError{Message: "result code is not numeric", Cause: err}
	}

	message, _ := findField(tree, resultMessageKeys)
	return Result{Code: code, Message: message}, nil
}

func findField(tree map[string]any, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if value, ok := tree[alias]; ok {
			if text := scalarString(value); text != "" {
				return text, true
			}
		}
	}

	keys := make([]string, 0, len(tree))
	for key := range tree {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch nested := tree[key].(type) {
		case []any:
			for _, element := range nested {
				if child, ok := asMap(element); ok {
					if text, found := findField(child, aliases); found {
						return text, true
					}
				}
			}
		default:
			if child, ok := asMap(nested); ok {
				if text, found := findField(child, aliases); found {
					return text, true
				}
			}
		}
	}

	return "", false
}

// trimBody shortens a response body for error messages.
func trimBody(body string) string {
	body = strings.TrimSpace(body)
	const limit = 512
	if len(body) > limit {
		return body[:limit] + "..."
	}
	return body
}
