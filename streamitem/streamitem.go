// Package streamitem implements the uniform StreamItem envelope described in
// spec.md §3/§6: every chunk emitted by a plexus call is wrapped with the
// router's plexus_hash, the call's provenance, and a tagged event kind
// (Progress | Data | Error | Done | Guidance).
package streamitem

import (
	"encoding/json"
	"fmt"

	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/schema"
)

// Kind is the envelope's "type" discriminator.
type Kind string

const (
	KindProgress Kind = "progress"
	KindData     Kind = "data"
	KindError    Kind = "error"
	KindDone     Kind = "done"
	KindGuidance Kind = "guidance"
)

// SuggestionKind enumerates the recovery-hint shapes spec.md §4.6 defines.
type SuggestionKind string

const (
	SuggestionCallPlexusSchema     SuggestionKind = "call_plexus_schema"
	SuggestionCallActivationSchema SuggestionKind = "call_activation_schema"
	SuggestionTryMethod            SuggestionKind = "try_method"
	SuggestionCustom               SuggestionKind = "custom"
)

// Suggestion is the "how to recover" hint attached to a Guidance event, per
// spec.md §4.6.
type Suggestion struct {
	Kind      SuggestionKind  `json:"kind"`
	Namespace string          `json:"namespace,omitempty"`
	Method    string          `json:"method,omitempty"`
	Example   json.RawMessage `json:"example_params,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// CallPlexusSchema builds the suggestion to call the root plexus_schema
// method, used when the offending namespace does not exist at all.
func CallPlexusSchema() Suggestion {
	return Suggestion{Kind: SuggestionCallPlexusSchema}
}

// CallActivationSchema builds the suggestion to call
// plexus_activation_schema(namespace).
func CallActivationSchema(namespace string) Suggestion {
	return Suggestion{Kind: SuggestionCallActivationSchema, Namespace: namespace}
}

// TryMethod builds the suggestion to retry against a specific method, per
// spec.md §4.1 step 4's "{activation}_{method}" naming convention observed
// in original_source/src/plexus/guidance.rs.
func TryMethod(method string, example json.RawMessage) Suggestion {
	return Suggestion{Kind: SuggestionTryMethod, Method: method, Example: example}
}

// Custom builds an activation-supplied domain-specific hint, per spec.md
// §4.6 ("Activations may override the suggestion ... to inject
// domain-specific hints").
func Custom(message string) Suggestion {
	return Suggestion{Kind: SuggestionCustom, Message: message}
}

// GuidanceErrorKind enumerates the three dispatch-error classes that carry
// guidance, per spec.md §4.6. The wire field is "error_kind", matching the
// field name used throughout original_source/src/plexus/{types,guidance}.rs
// and spec.md §8's scenario descriptions (spec.md §3/§4.6's prose also
// refers to this concept as "error_type"; the wire tag follows the source
// and the testable scenarios, which both use "error_kind").
type GuidanceErrorKind string

const (
	ActivationNotFound GuidanceErrorKind = "activation_not_found"
	MethodNotFound      GuidanceErrorKind = "method_not_found"
	InvalidParams       GuidanceErrorKind = "invalid_params"
)

// Event is the payload every StreamItem carries, one of Progress, Data,
// Error, Done or Guidance (spec.md §3).
type Event struct {
	Kind Kind

	Provenance provenance.Provenance

	// Progress
	Message    string
	Percentage *float64

	// Data
	ContentType string
	Data        json.RawMessage

	// Error
	ErrorMessage string
	Recoverable  bool

	// Guidance
	ErrorKind        GuidanceErrorKind
	Activation       string
	Method           string
	AvailableMethods []string
	MethodSchema     *schema.Schema
	Suggestion       *Suggestion
}

// Progress builds a Progress event.
func Progress(p provenance.Provenance, message string, percentage *float64) Event {
	return Event{Kind: KindProgress, Provenance: p, Message: message, Percentage: percentage}
}

// Data builds a Data event. data must already be valid JSON.
func Data(p provenance.Provenance, contentType string, data json.RawMessage) Event {
	return Event{Kind: KindData, Provenance: p, ContentType: contentType, Data: data}
}

// DataValue builds a Data event by marshaling v to JSON.
func DataValue(p provenance.Provenance, contentType string, v any) (Event, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("streamitem: marshal data payload: %w", err)
	}
	return Data(p, contentType, b), nil
}

// Error builds an Error event.
func Error(p provenance.Provenance, message string, recoverable bool) Event {
	return Event{Kind: KindError, Provenance: p, ErrorMessage: message, Recoverable: recoverable}
}

// Done builds a Done event.
func Done(p provenance.Provenance) Event {
	return Event{Kind: KindDone, Provenance: p}
}

// Guidance builds a Guidance event.
func Guidance(p provenance.Provenance, errorKind GuidanceErrorKind, suggestion Suggestion) Event {
	return Event{Kind: KindGuidance, Provenance: p, ErrorKind: errorKind, Suggestion: &suggestion}
}

// StreamItem is the uniform envelope of spec.md §3: {plexus_hash, event}.
// Every item of every stream a single Plexus emits carries the same
// plexus_hash (spec.md §8 invariant 2).
type StreamItem struct {
	PlexusHash string
	Event      Event
}

// New wraps event with the router's constant plexus hash.
func New(plexusHash string, event Event) StreamItem {
	return StreamItem{PlexusHash: plexusHash, Event: event}
}

// IsTerminal reports whether the event ends a stream: Done always is; Error
// is terminal unless Recoverable is true (a recoverable Error may be
// followed by further events).
func (e Event) IsTerminal() bool {
	switch e.Kind {
	case KindDone:
		return true
	case KindError:
		return !e.Recoverable
	default:
		return false
	}
}

type wireEnvelope struct {
	PlexusHash string `json:"plexus_hash"`
	Type       Kind   `json:"type"`

	Provenance provenance.Provenance `json:"provenance"`

	Message    string   `json:"message,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`

	ContentType string          `json:"content_type,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`

	Error       string `json:"error,omitempty"`
	Recoverable *bool  `json:"recoverable,omitempty"`

	ErrorKind        GuidanceErrorKind `json:"error_kind,omitempty"`
	Activation       string            `json:"activation,omitempty"`
	Method           string            `json:"method,omitempty"`
	AvailableMethods []string          `json:"available_methods,omitempty"`
	MethodSchema     *schema.Schema    `json:"method_schema,omitempty"`
	Suggestion       *Suggestion       `json:"suggestion,omitempty"`
}

// MarshalJSON renders the flat envelope form of spec.md §6, with only the
// fields relevant to the event's Kind populated.
func (si StreamItem) MarshalJSON() ([]byte, error) {
	e := si.Event
	w := wireEnvelope{
		PlexusHash: si.PlexusHash,
		Type:       e.Kind,
		Provenance: e.Provenance,
	}
	switch e.Kind {
	case KindProgress:
		w.Message = e.Message
		w.Percentage = e.Percentage
	case KindData:
		w.ContentType = e.ContentType
		w.Data = e.Data
	case KindError:
		w.Error = e.ErrorMessage
		w.Recoverable = &e.Recoverable
	case KindDone:
		// provenance only
	case KindGuidance:
		w.ErrorKind = e.ErrorKind
		w.Activation = e.Activation
		w.Method = e.Method
		w.AvailableMethods = e.AvailableMethods
		w.MethodSchema = e.MethodSchema
		w.Suggestion = e.Suggestion
	default:
		return nil, fmt.Errorf("streamitem: unknown event kind %q", e.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the flat envelope form, dispatching on "type".
func (si *StreamItem) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e := Event{Kind: w.Type, Provenance: w.Provenance}
	switch w.Type {
	case KindProgress:
		e.Message = w.Message
		e.Percentage = w.Percentage
	case KindData:
		e.ContentType = w.ContentType
		e.Data = w.Data
	case KindError:
		e.ErrorMessage = w.Error
		if w.Recoverable != nil {
			e.Recoverable = *w.Recoverable
		}
	case KindDone:
	case KindGuidance:
		e.ErrorKind = w.ErrorKind
		e.Activation = w.Activation
		e.Method = w.Method
		e.AvailableMethods = w.AvailableMethods
		e.MethodSchema = w.MethodSchema
		e.Suggestion = w.Suggestion
	default:
		return fmt.Errorf("streamitem: unknown event kind %q", w.Type)
	}
	si.PlexusHash = w.PlexusHash
	si.Event = e
	return nil
}
