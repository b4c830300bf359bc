// Package plexus implements the in-process router of spec.md §4.1: activation
// registration, namespace dispatch, schema aggregation, the self-referential
// hub-injection construction contract, and the Guidance layer of §4.6.
package plexus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"weak"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plexuscore/plexus/activation"
	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/schema"
	"github.com/plexuscore/plexus/streamitem"
	"github.com/plexuscore/plexus/telemetry"
)

// Reserved method names, per spec.md §4.1: "plexus_schema, plexus_hash,
// plexus_activation_schema are reserved and always succeed; activations may
// not shadow them."
const (
	MethodPlexusSchema           = "plexus_schema"
	MethodPlexusHash             = "plexus_hash"
	MethodPlexusActivationSchema = "plexus_activation_schema"
)

// ErrNamespaceTaken is returned by Build when two activations declare the
// same namespace. spec.md §9 notes the source silently overwrites on
// duplicate insertion; this implementation fails loudly instead, per
// spec.md §8 invariant 4.
var ErrNamespaceTaken = fmt.Errorf("plexus: namespace already registered")

// ErrReservedNamespace is returned by Build when an activation's namespace
// collides with one of the reserved top-level method names.
var ErrReservedNamespace = fmt.Errorf("plexus: namespace collides with a reserved method name")

// Options configures telemetry for a Plexus. All fields default to no-op
// implementations.
type Options struct {
	Logger  telemetry.Logger
	Tracer  telemetry.Tracer
	Metrics telemetry.Metrics
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = telemetry.NewNoopLogger()
	}
	if o.Tracer == nil {
		o.Tracer = telemetry.NewNoopTracer()
	}
	if o.Metrics == nil {
		o.Metrics = telemetry.NewNoopMetrics()
	}
	return o
}

// Plexus is the in-process router hosting activations and producing wrapped
// event streams, per spec.md's GLOSSARY. It is read-only after Build
// returns: no locks are taken during dispatch, per spec.md §5.
type Plexus struct {
	activations map[string]activation.Activation
	validators  map[string]paramValidator
	hash        string

	logger  telemetry.Logger
	tracer  telemetry.Tracer
	metrics telemetry.Metrics
}

// Build constructs a Plexus from a fixed set of activations using the
// self-referential construction contract of spec.md §4.1/§9: it allocates
// the Plexus first, derives a weak.Pointer to it, injects a HubRef wrapping
// that weak pointer into every activation implementing HubInjectable, and
// only then finalizes the activation registry and computes the plexus hash.
// This completes synchronously before Build returns, so no call can ever be
// dispatched against a Plexus whose hub injection is incomplete.
func Build(ctx context.Context, opts Options, activations ...activation.Activation) (*Plexus, error) {
	opts = opts.withDefaults()

	p := &Plexus{
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		metrics: opts.Metrics,
	}
	weakSelf := weak.Make(p)
	hubRef := HubRef{weak: weakSelf}
	for _, a := range activations {
		if hi, ok := a.(activation.HubInjectable); ok {
			hi.InjectHub(hubRef)
		}
	}

	registry := make(map[string]activation.Activation, len(activations))
	validators := make(map[string]paramValidator)
	for _, a := range activations {
		ns := a.Namespace()
		if isReservedMethod(ns) {
			return nil, fmt.Errorf("%w: %q", ErrReservedNamespace, ns)
		}
		if _, taken := registry[ns]; taken {
			return nil, fmt.Errorf("%w: %q", ErrNamespaceTaken, ns)
		}
		registry[ns] = a

		ps := a.PluginSchema()
		for _, m := range ps.Methods {
			if m.Params == nil {
				continue
			}
			v, err := compileParamSchema(m.Params)
			if err != nil {
				p.logger.Warn(ctx, "failed to compile method param schema; skipping validation",
					"component", "plexus", "namespace", ns, "method", m.Name, "err", err)
				continue
			}
			validators[ns+"."+m.Name] = v
		}
	}

	p.activations = registry
	p.validators = validators
	p.hash = computeHash(registry)
	return p, nil
}

func isReservedMethod(s string) bool {
	switch s {
	case MethodPlexusSchema, MethodPlexusHash, MethodPlexusActivationSchema:
		return true
	default:
		return false
	}
}

// ComputeHash returns the 64-bit (16-hex-char) digest of spec.md §4.1: a
// deterministic string obtained by sorting "{namespace}:{version}:{m1,m2,…}"
// per activation and joining with ";", stable under reordering of
// registrations and of methods within an activation (spec.md §8 invariant 5).
func (p *Plexus) ComputeHash() string {
	return p.hash
}

func computeHash(registry map[string]activation.Activation) string {
	descriptors := make([]string, 0, len(registry))
	for ns, a := range registry {
		methods := append([]string(nil), a.Methods()...)
		sort.Strings(methods)
		descriptors = append(descriptors, fmt.Sprintf("%s:%s:%s", ns, a.Version(), strings.Join(methods, ",")))
	}
	sort.Strings(descriptors)
	return schema.DigestString(strings.Join(descriptors, ";"))
}

// ListMethods returns dotted "namespace.method" strings, sorted, per
// spec.md §4.1.
func (p *Plexus) ListMethods() []string {
	out := make([]string, 0, len(p.activations))
	for ns, a := range p.activations {
		for _, m := range a.Methods() {
			out = append(out, ns+"."+m)
		}
	}
	sort.Strings(out)
	return out
}

// ActivationInfo is one entry of ListActivations.
type ActivationInfo struct {
	Namespace   string   `json:"namespace"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Methods     []string `json:"methods"`
}

// ListActivations returns activation metadata sorted by namespace, per
// spec.md §4.1.
func (p *Plexus) ListActivations() []ActivationInfo {
	out := make([]ActivationInfo, 0, len(p.activations))
	for ns, a := range p.activations {
		methods := append([]string(nil), a.Methods()...)
		sort.Strings(methods)
		out = append(out, ActivationInfo{
			Namespace:   ns,
			Version:     a.Version(),
			Description: a.Description(),
			Methods:     methods,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })
	return out
}

// GetMethodHelp returns the free-form help text for "namespace.method", if
// the activation and method both exist and declare help.
func (p *Plexus) GetMethodHelp(name string) (string, bool) {
	ns, method, ok := splitMethod(name)
	if !ok {
		return "", false
	}
	a, ok := p.activations[ns]
	if !ok {
		return "", false
	}
	return a.MethodHelp(method)
}

// GetActivationSchema returns the enriched method-enum Schema for namespace
// (spec.md §4.1/§4.2's get_activation_schema(namespace) → Schema?), if
// registered.
func (p *Plexus) GetActivationSchema(namespace string) (*schema.Schema, bool) {
	a, ok := p.activations[namespace]
	if !ok {
		return nil, false
	}
	return a.EnrichSchema(), true
}

// GetActivationTopology returns the coalgebraic PluginSchema node for
// namespace (spec.md §4.3), used for hub detection and tool listing rather
// than the method-enum discovery payload GetActivationSchema returns.
func (p *Plexus) GetActivationTopology(namespace string) (schema.PluginSchema, bool) {
	a, ok := p.activations[namespace]
	if !ok {
		return schema.PluginSchema{}, false
	}
	return a.PluginSchema(), true
}

// PlexusSchema aggregates every registered activation's PluginSchema into
// the root discovery tree clients fetch via plexus_schema, per spec.md §4.3.
func (p *Plexus) PlexusSchema() schema.PluginSchema {
	children := make([]schema.PluginSchema, 0, len(p.activations))
	for _, a := range p.activations {
		children = append(children, a.PluginSchema())
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Namespace < children[j].Namespace })
	return schema.NewHubSchema("plexus", "1.0.0", "root plexus schema", nil, children)
}

func splitMethod(method string) (namespace, name string, ok bool) {
	idx := strings.IndexByte(method, '.')
	if idx < 0 {
		return "", "", false
	}
	return method[:idx], method[idx+1:], true
}

// Call dispatches method ("namespace.method" or one of the reserved flat
// names) against the registered activations, implementing the 6-step
// algorithm of spec.md §4.1 and the Guidance layer of §4.6. The returned
// channel is closed after its terminal event has been sent.
func (p *Plexus) Call(ctx context.Context, method string, params []byte) <-chan streamitem.StreamItem {
	ctx, span := p.tracer.Start(ctx, "plexus.call", trace.WithAttributes(attribute.String("plexus.method", method)))
	defer span.End()

	if isReservedMethod(method) {
		return p.wrap(p.callReserved(ctx, method, params))
	}

	namespace, name, ok := splitMethod(method)
	if !ok {
		g := guidanceMethodNotFoundNoDot(method)
		return p.wrap(guidanceStream(g.Provenance, g, fmt.Sprintf("method %q has no namespace separator '.'", method)))
	}

	a, ok := p.activations[namespace]
	if !ok {
		span.SetStatus(codes.Error, "activation not found")
		return p.wrap(activationNotFoundStream(namespace))
	}

	if v, ok := p.validators[method]; ok {
		if err := v.Validate(params); err != nil {
			ms, _ := methodSchemaFor(a, name)
			return p.wrap(invalidParamsStream(namespace, name, err.Error(), ms))
		}
	}

	self := provenance.MustNew(namespace)
	events, err := a.Call(ctx, self, name, params)
	if err != nil {
		span.RecordError(err)
		return p.wrap(translateDispatchError(a, namespace, name, err))
	}
	return p.wrap(events)
}

// wrap attaches the router's constant plexus_hash to every event, per
// spec.md §8 invariant 2.
func (p *Plexus) wrap(events <-chan streamitem.Event) <-chan streamitem.StreamItem {
	out := make(chan streamitem.StreamItem)
	go func() {
		defer close(out)
		for e := range events {
			out <- streamitem.New(p.hash, e)
		}
	}()
	return out
}

func singleEvent(e streamitem.Event) <-chan streamitem.Event {
	ch := make(chan streamitem.Event, 1)
	ch <- e
	close(ch)
	return ch
}

func methodSchemaFor(a activation.Activation, method string) (*schema.Schema, bool) {
	ps := a.PluginSchema()
	for _, m := range ps.Methods {
		if m.Name == method {
			return m.Params, m.Params != nil
		}
	}
	return nil, false
}
