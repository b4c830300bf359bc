// Package activation defines the plugin contract every tenant of the plexus
// implements, per spec.md §4.2: namespace identity, method enumeration and
// help, schema enrichment and coalgebraic unfolding, and the streaming call
// surface, plus the dispatch-level error taxonomy the plexus router
// translates into Guidance streams (spec.md §4.6/§7).
package activation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plexuscore/plexus/handle"
	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/schema"
	"github.com/plexuscore/plexus/streamitem"
)

// Activation is the surface every plugin implements, per spec.md §4.2.
type Activation interface {
	// Namespace is a stable string with no '.' characters; identifies the
	// activation in dispatch and in provenance segments.
	Namespace() string
	// Version is a SemVer string; appears in every handle the activation
	// mints.
	Version() string
	// Description is informational.
	Description() string
	// Methods lists the bare method names this activation honors in Call.
	Methods() []string
	// MethodHelp returns free-form help for a method, if any.
	MethodHelp(method string) (help string, ok bool)
	// EnrichSchema must always succeed; an activation that cannot produce
	// one is malformed.
	EnrichSchema() *schema.Schema
	// PluginSchema performs the coalgebraic unfolding of spec.md §4.3.
	PluginSchema() schema.PluginSchema
	// Call yields a lazy asynchronous sequence of events whose provenance
	// begins with self. Every call must yield at least one terminal event.
	// A non-nil error return (MethodNotFoundError / InvalidParamsError)
	// means no stream was produced at all; the router converts it to a
	// Guidance stream instead of delegating to the channel.
	Call(ctx context.Context, self provenance.Provenance, method string, params json.RawMessage) (<-chan streamitem.Event, error)
}

// Resolver is implemented by activations that mint Handles other
// activations may later resolve through the hub, per spec.md §4.4.
type Resolver interface {
	// Resolve yields exactly one Data event (the resolved payload) then
	// Done, or a non-recoverable Error if the handle is stale or h.Meta has
	// the wrong arity for h.Method.
	Resolve(ctx context.Context, self provenance.Provenance, h handle.Handle) (<-chan streamitem.Event, error)
}

// CustomGuidance is implemented by activations that want to override the
// default suggestion for a particular (method, error) pair with a
// domain-specific hint, per spec.md §4.6.
type CustomGuidance interface {
	GuidanceFor(method string, errorKind streamitem.GuidanceErrorKind) (streamitem.Suggestion, bool)
}

// Hub is the surface the plexus router exposes to activations that request
// a back-reference via HubInjectable, per spec.md §4.4/§9. It is backed by a
// weak reference so the activation→plexus cycle never pins memory: the
// plexus package's HubRef type upgrades the weak pointer for the duration
// of exactly one call.
type Hub interface {
	// ResolveHandle dispatches h.Method against the activation identified
	// by h.PluginID, per spec.md §4.4's resolution protocol.
	ResolveHandle(ctx context.Context, h handle.Handle) (<-chan streamitem.Event, error)
	// ActivationSchema looks up a registered activation's PluginSchema
	// topology node by namespace.
	ActivationSchema(namespace string) (schema.PluginSchema, bool)
}

// HubInjectable is implemented by activations that need a Hub reference.
// InjectHub must complete synchronously before Plexus.Build returns (spec.md
// §4.1's construction contract); failing to inject when an activation
// declared it needs the hub is a fatal construction error.
type HubInjectable interface {
	InjectHub(hub Hub)
}

// MethodNotFoundError is returned by Call when method is not among the
// activation's declared Methods(). The router converts this into a Guidance
// stream listing AvailableMethods, per spec.md §4.1 step 4.
type MethodNotFoundError struct {
	Activation       string
	Method           string
	AvailableMethods []string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("activation %q has no method %q", e.Activation, e.Method)
}

// InvalidParamsError is returned by Call when params are well-formed JSON
// but fail the method's parameter schema (or an activation-specific
// refinement check). The router attaches the method's parameter schema to
// the resulting Guidance stream when available, per spec.md §4.1 step 5.
type InvalidParamsError struct {
	Method string
	Reason string
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid params for %q: %s", e.Method, e.Reason)
}

// NewMethodSchema builds a method's discovery record. The const-discriminator
// post-processing pass of spec.md §4.2/§9 is applied once, by
// schema.MethodEnum, when an activation's EnrichSchema assembles its
// per-method params into the tagged-union oneOf — not here, since a method's
// own params schema never declares a "method" property to rewrite.
func NewMethodSchema(name, description string, params, returns *schema.Schema, streaming bool) schema.MethodSchema {
	return schema.NewMethodSchema(name, description, params, returns, streaming)
}
