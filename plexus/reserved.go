package plexus

import (
	"context"
	"encoding/json"

	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/streamitem"
)

// callReserved answers the three always-available plexus-level pseudo
// methods of spec.md §4.1/§6. Each yields exactly one Data item then Done,
// matching the "streaming as the universal shape" design note of spec.md §9;
// when plexus_activation_schema cannot answer (an unknown namespace, for
// instance) it yields a single non-recoverable Error instead.
func (p *Plexus) callReserved(ctx context.Context, method string, params []byte) <-chan streamitem.Event {
	switch method {
	case MethodPlexusSchema:
		return p.plexusSchemaEvents()
	case MethodPlexusHash:
		return p.plexusHashEvents()
	case MethodPlexusActivationSchema:
		return p.plexusActivationSchemaEvents(params)
	default:
		panic("plexus: callReserved invoked with non-reserved method " + method)
	}
}

func (p *Plexus) plexusSchemaEvents() <-chan streamitem.Event {
	root := provenance.MustNew("plexus")
	ev, err := streamitem.DataValue(root, "plexus.schema", p.PlexusSchema())
	return oneShot(root, ev, err)
}

func (p *Plexus) plexusHashEvents() <-chan streamitem.Event {
	root := provenance.MustNew("plexus")
	ev, err := streamitem.DataValue(root, "plexus.hash", struct {
		Hash string `json:"hash"`
	}{Hash: p.hash})
	return oneShot(root, ev, err)
}

type activationSchemaParams struct {
	Namespace string `json:"namespace"`
}

func (p *Plexus) plexusActivationSchemaEvents(params []byte) <-chan streamitem.Event {
	root := provenance.MustNew("plexus")

	var ap activationSchemaParams
	if len(params) > 0 {
		_ = json.Unmarshal(params, &ap)
	}
	// Also accept a bare string namespace, the CLI's shorthand form.
	if ap.Namespace == "" && len(params) > 0 {
		var bare string
		if err := json.Unmarshal(params, &bare); err == nil {
			ap.Namespace = bare
		}
	}

	enriched, ok := p.GetActivationSchema(ap.Namespace)
	if !ok {
		ch := make(chan streamitem.Event, 1)
		ch <- streamitem.Error(root, "unknown namespace: "+ap.Namespace, false)
		close(ch)
		return ch
	}
	ev, err := streamitem.DataValue(root, "plexus.activation_schema", enriched)
	return oneShot(root, ev, err)
}

func oneShot(p provenance.Provenance, ev streamitem.Event, err error) <-chan streamitem.Event {
	ch := make(chan streamitem.Event, 2)
	if err != nil {
		ch <- streamitem.Error(p, err.Error(), false)
		close(ch)
		return ch
	}
	ch <- ev
	ch <- streamitem.Done(p)
	close(ch)
	return ch
}
