// Package jsonpath reads values out of JSON documents using a small
// JSONPath subset ($.a.b, $.list[0].field, $['key']).
package jsonpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrEmptyDocument is returned for empty input.
	ErrEmptyDocument = errors.New("empty JSON document")

	// ErrNotFound is returned when the path matches nothing.
	ErrNotFound = errors.New("path not found")
)

// Lookup resolves path against body. It returns false if body is not valid
// JSON or the path matches nothing.
func Lookup(body []byte, path string) (gjson.Result, bool) {
	if len(body) == 0 || path == "" || !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	result := gjson.GetBytes(body, toGjsonPath(path))
	return result, result.Exists()
}

// Exists reports whether path resolves to a value, including null.
func Exists(body []byte, path string) bool {
	_, ok := Lookup(body, path)
	return ok
}

// String resolves path to a string. Non-string scalars are rendered in
// their JSON form; objects and arrays are returned raw.
func String(body []byte, path string) (string, error) {
	if len(body) == 0 {
		return "", ErrEmptyDocument
	}
	result, ok := Lookup(body, path)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// Int resolves path to an integer.
func Int(body []byte, path string) (int64, error) {
	result, ok := Lookup(body, path)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if result.Type != gjson.Number {
		return 0, fmt.Errorf("%s is %s, not a number", path, result.Type)
	}
	return result.Int(), nil
}

// Extract is the string form of String for callers holding text.
func Extract(json string, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}
	return String([]byte(json), path)
}

// toGjsonPath converts a JSONPath expression to gjson syntax:
// $.users[0].name becomes users.0.name.
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	// Quoted bracket keys: ['name'] and ["name"].
	for _, q := range []string{"'", `"`} {
		path = strings.ReplaceAll(path, "["+q, ".")
		path = strings.ReplaceAll(path, q+"]", "")
	}

	// Index brackets: [0] becomes .0
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return strings.TrimPrefix(path, ".")
}
