// Package docstore defines the document model shared by the document store
// backend and its clients, and the encoding of documents into
// google.protobuf.Struct for the wire and JSON for storage.
package docstore

import (
	"time"
)

// Document is a single stored record: an opaque identifier plus a free-form
// set of top-level fields.
type Document struct {
	ID     string
	Fields map[string]any
}

// Filter restricts a query to documents whose top-level Field equals Value.
type Filter struct {
	Field string
	Value string
}

// Matches reports whether fields satisfy the filter. Only string fields can
// match.
func (f Filter) Matches(fields map[string]any) bool {
	v, ok := fields[f.Field].(string)
	return ok && v == f.Value
}

type serverTimestamp struct{}

// ServerTimestamp is a write-only placeholder replaced by the store with its
// own clock at the moment the write is applied.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp placeholder.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// ResolveServerTimestamps replaces every top-level ServerTimestamp in fields
// with now, in place.
func ResolveServerTimestamps(fields map[string]any, now time.Time) {
	for k, v := range fields {
		if IsServerTimestamp(v) {
			fields[k] = now
		}
	}
}

// Time returns fields[key] as a time when it holds one.
func Time(fields map[string]any, key string) (time.Time, bool) {
	t, ok := fields[key].(time.Time)
	return t, ok
}

// String returns fields[key] as a string, or "" when absent or not a string.
func String(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
