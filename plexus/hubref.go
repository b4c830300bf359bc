package plexus

import (
	"context"
	"fmt"
	"weak"

	"github.com/plexuscore/plexus/activation"
	"github.com/plexuscore/plexus/handle"
	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/schema"
	"github.com/plexuscore/plexus/streamitem"
)

// HubRef implements activation.Hub over a weak.Pointer[Plexus], per the
// construction contract of spec.md §4.1/§9 and the resource model of §5:
// "Cyclic hub references are held as weak pointers inside activations and
// upgraded only for the duration of a single resolution call." This
// prevents an activation→plexus reference cycle from pinning the plexus in
// memory for the process lifetime.
type HubRef struct {
	weak weak.Pointer[Plexus]
}

var _ activation.Hub = HubRef{}

// ErrHubGone is returned when the plexus behind a HubRef has already been
// collected (should not occur in practice: the process that built the
// plexus is expected to hold a strong reference for its lifetime, per
// spec.md §3 "Activation ... shared ... for the plexus's lifetime").
var ErrHubGone = fmt.Errorf("plexus: hub reference no longer live")

// ResolveHandle implements the resolution protocol of spec.md §4.4: locate
// the activation owning h.PluginID and dispatch its resolve method with
// h.Method and h.Meta.
func (r HubRef) ResolveHandle(ctx context.Context, h handle.Handle) (<-chan streamitem.Event, error) {
	p := r.weak.Value()
	if p == nil {
		return nil, ErrHubGone
	}
	for ns, a := range p.activations {
		resolver, ok := a.(activation.Resolver)
		if !ok {
			continue
		}
		if !ownsHandle(a, h) {
			continue
		}
		self := provenance.MustNew(ns)
		return resolver.Resolve(ctx, self, h)
	}
	return nil, fmt.Errorf("plexus: no activation claims handle %s", h.String())
}

// ActivationSchema implements activation.Hub.
func (r HubRef) ActivationSchema(namespace string) (schema.PluginSchema, bool) {
	p := r.weak.Value()
	if p == nil {
		return schema.PluginSchema{}, false
	}
	return p.GetActivationTopology(namespace)
}

// ownsHandle reports whether a identifies itself as the minting activation
// for h. Activations that mint handles answer this through an
// OwnsHandle(handle.Handle) bool method, so the hub needs no knowledge of
// their instance-id scheme.
func ownsHandle(a activation.Activation, h handle.Handle) bool {
	owner, ok := a.(interface{ OwnsHandle(handle.Handle) bool })
	if !ok {
		return false
	}
	return owner.OwnsHandle(h)
}
