// Package handle implements the cross-activation opaque pointer described in
// spec.md §3/§4.4/§6: {plugin_id, version, method, meta[]} with a canonical
// string form and a total parser over syntactically well-formed strings.
package handle

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Handle is a versioned opaque pointer from one activation's data into
// another's, per spec.md §3. Equality is structural; Meta ordering is
// semantically significant (positional), per spec.md §3.
type Handle struct {
	PluginID uuid.UUID
	Version  string
	Method   string
	Meta     []string
}

// New builds a Handle from its parts.
func New(pluginID uuid.UUID, version, method string, meta ...string) Handle {
	m := make([]string, len(meta))
	copy(m, meta)
	return Handle{PluginID: pluginID, Version: version, Method: method, Meta: m}
}

// String renders the canonical form mandated by spec.md §6:
// "{plugin_id}@{version}::{method}[:m0[:m1…]]".
func (h Handle) String() string {
	var b strings.Builder
	b.WriteString(h.PluginID.String())
	b.WriteByte('@')
	b.WriteString(h.Version)
	b.WriteString("::")
	b.WriteString(h.Method)
	for _, m := range h.Meta {
		b.WriteByte(':')
		b.WriteString(m)
	}
	return b.String()
}

// Equal reports structural equality, per spec.md §3 ("equality is
// structural").
func (h Handle) Equal(other Handle) bool {
	if h.PluginID != other.PluginID || h.Version != other.Version || h.Method != other.Method {
		return false
	}
	if len(h.Meta) != len(other.Meta) {
		return false
	}
	for i := range h.Meta {
		if h.Meta[i] != other.Meta[i] {
			return false
		}
	}
	return true
}

// ParseError reports a malformed handle string, identifying which part of
// the canonical grammar failed to parse, per spec.md §6's parsing rules.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("handle: cannot parse %q: %s", e.Input, e.Reason)
}

// Parse is total over syntactically well-formed strings, per spec.md §3.
// Grammar (spec.md §6): plugin_id must be a well-formed UUID; version must
// contain no ':' or '@'; missing '@' or '::' is a parse error; an empty meta
// list is represented by no trailing ':'.
func Parse(s string) (Handle, error) {
	at := strings.IndexByte(s, '@')
	if at < 0 {
		return Handle{}, &ParseError{Input: s, Reason: "missing '@' separating plugin_id from version"}
	}
	pluginIDStr, rest := s[:at], s[at+1:]

	pluginID, err := uuid.Parse(pluginIDStr)
	if err != nil {
		return Handle{}, &ParseError{Input: s, Reason: fmt.Sprintf("plugin_id is not a well-formed UUID: %v", err)}
	}

	sep := strings.Index(rest, "::")
	if sep < 0 {
		return Handle{}, &ParseError{Input: s, Reason: "missing '::' separating version from method"}
	}
	version, tail := rest[:sep], rest[sep+2:]
	if strings.ContainsAny(version, ":@") {
		return Handle{}, &ParseError{Input: s, Reason: "version must not contain ':' or '@'"}
	}
	if version == "" {
		return Handle{}, &ParseError{Input: s, Reason: "version must not be empty"}
	}

	parts := strings.Split(tail, ":")
	method := parts[0]
	if method == "" {
		return Handle{}, &ParseError{Input: s, Reason: "method must not be empty"}
	}
	var meta []string
	if len(parts) > 1 {
		meta = parts[1:]
	}

	return Handle{PluginID: pluginID, Version: version, Method: method, Meta: meta}, nil
}
