// Package message defines the values exchanged between client and server.
//
// A Message is any JSON-representable value. No schema is enforced: requests are whatever
// the client sends, and every reply the server produces is a status object of the form
//
//	{"<port>:status": 0}   handler succeeded
//	{"<port>:status": 1}   handler failed
package message

import (
	"encoding/json"
	"strconv"
)

// Message is a JSON-representable value: map[string]any, []any, string, a number, bool or nil.
// Decoded numbers are json.Number; float64 and int are accepted when encoding.
type Message any

// SentinelKey is the reserved key whose presence in a request ends the server loop.
const SentinelKey = "end"

// Status codes carried in a status reply.
const (
	StatusOK     = 0
	StatusFailed = 1
)

// StatusKey returns the reply key for the given port, e.g. "5555:status".
func StatusKey(port int) string {
	return strconv.Itoa(port) + ":status"
}

// NewStatus builds the status reply the server sends after handling a request.
func NewStatus(port int, code int) Message {
	return map[string]any{StatusKey(port): code}
}

// IsTerminal reports whether m is an object carrying the sentinel key (any value).
func IsTerminal(m Message) bool {
	obj, ok := m.(map[string]any)
	if !ok {
		return false
	}
	_, ok = obj[SentinelKey]
	return ok
}

// StatusOf extracts the status code for port from a decoded reply.
func StatusOf(reply Message, port int) (int, bool) {
	obj, ok := reply.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := obj[StatusKey(port)].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
