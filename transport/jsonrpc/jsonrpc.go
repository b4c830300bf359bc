// Package jsonrpc implements the shared JSON-RPC 2.0 wire shapes used by
// every plexus transport (spec.md §6's "root JSON-RPC surface" over both
// WebSocket and stdio), plus the canonical error codes, grounded on
// runtime/mcp/caller.go's JSONRPC* constants and runtime/mcp/runtime.go's
// Notification shape.
package jsonrpc

import (
	"encoding/json"

	"github.com/plexuscore/plexus/streamitem"
)

const Version = "2.0"

// Canonical JSON-RPC error codes, per spec.md §7's taxonomy mapping.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is an incoming call. Every plexus method is a subscription: a
// single Request produces zero or more Notifications followed by exactly
// one Response, per spec.md §6/§9 ("streaming as the universal shape").
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a server-initiated message carrying one StreamItem, sent
// for every non-terminal event of a subscription and for the terminal event
// itself (the Response that follows only signals the subscription is over).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response concludes a subscription: Result is set on a clean Done, Error is
// set when the stream ended on a non-recoverable Error event.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewNotification builds a "stream_item" notification carrying item.
func NewNotification(item any) Notification {
	return Notification{JSONRPC: Version, Method: "stream_item", Params: item}
}

// NewResult builds a terminal success Response.
func NewResult(id json.RawMessage, result any) Response {
	return Response{JSONRPC: Version, ID: id, Result: result}
}

// NewError builds a terminal error Response.
func NewError(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message}}
}

// RunSubscription drains stream, invoking emit for every item, and returns
// the terminal Response once the stream closes: a result on Done, or an
// error Response carrying CodeInternalError when the stream ended on a
// non-recoverable Error event. emit's error, if any, aborts the drain and is
// returned directly (a transport-level write failure, e.g. a closed
// connection).
func RunSubscription(id json.RawMessage, stream <-chan streamitem.StreamItem, emit func(Notification) error) (Response, error) {
	var last streamitem.StreamItem
	for item := range stream {
		last = item
		if err := emit(NewNotification(item)); err != nil {
			return Response{}, err
		}
	}
	if last.Event.Kind == streamitem.KindError {
		return NewError(id, CodeInternalError, last.Event.ErrorMessage), nil
	}
	return NewResult(id, map[string]string{"status": "completed"}), nil
}
