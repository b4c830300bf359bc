package plexus

import (
	"fmt"
	"sort"

	"github.com/plexuscore/plexus/activation"
	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/schema"
	"github.com/plexuscore/plexus/streamitem"
)

// guidanceStream builds the three-item Guidance → Error → Done sequence
// mandated by spec.md §4.6 for every dispatch-level error.
func guidanceStream(p provenance.Provenance, g streamitem.Event, errMessage string) <-chan streamitem.Event {
	ch := make(chan streamitem.Event, 3)
	ch <- g
	ch <- streamitem.Error(p, errMessage, false)
	ch <- streamitem.Done(p)
	close(ch)
	return ch
}

// activationNotFoundStream implements spec.md §4.1 step 2: synthesize a
// three-item guidance stream naming the missing namespace and suggesting
// the root plexus_schema call.
func activationNotFoundStream(namespace string) <-chan streamitem.Event {
	p := provenance.MustNew(namespace)
	g := streamitem.Guidance(p, streamitem.ActivationNotFound, streamitem.CallPlexusSchema())
	g.Activation = namespace
	return guidanceStream(p, g, fmt.Sprintf("no activation registered under namespace %q", namespace))
}

// guidanceMethodNotFoundNoDot implements spec.md §4.1 step 1: a method
// string with no '.' is rejected as MethodNotFound.
func guidanceMethodNotFoundNoDot(method string) streamitem.Event {
	p := provenance.MustNew("plexus")
	g := streamitem.Guidance(p, streamitem.MethodNotFound, streamitem.CallPlexusSchema())
	g.Method = method
	return g
}

// methodNotFoundStream implements spec.md §4.1 step 4: the router converts
// an activation's MethodNotFoundError into a guidance stream listing the
// activation's declared methods and a suggestion to try one of them. The
// suggested method follows the "{activation}_{method}" convention observed
// in original_source/src/plexus/guidance.rs.
func methodNotFoundStream(e *activation.MethodNotFoundError) <-chan streamitem.Event {
	p := provenance.MustNew(e.Activation)
	available := append([]string(nil), e.AvailableMethods...)
	sort.Strings(available)

	var suggestion streamitem.Suggestion
	if len(available) > 0 {
		suggestion = streamitem.TryMethod(fmt.Sprintf("%s_%s", e.Activation, available[0]), nil)
	} else {
		suggestion = streamitem.CallActivationSchema(e.Activation)
	}

	g := streamitem.Guidance(p, streamitem.MethodNotFound, suggestion)
	g.Activation = e.Activation
	g.Method = e.Method
	g.AvailableMethods = available
	return guidanceStream(p, g, e.Error())
}

// invalidParamsStream implements spec.md §4.1 step 5: the router builds a
// guidance stream that attaches the named method's parameter schema, if
// available.
func invalidParamsStream(namespace, method, reason string, methodSchema *schema.Schema) <-chan streamitem.Event {
	p := provenance.MustNew(namespace)
	g := streamitem.Guidance(p, streamitem.InvalidParams, streamitem.CallActivationSchema(namespace))
	g.Activation = namespace
	g.Method = method
	g.MethodSchema = methodSchema
	return guidanceStream(p, g, fmt.Sprintf("invalid params for %q.%q: %s", namespace, method, reason))
}

// translateDispatchError implements the remainder of spec.md §4.1's
// dispatch algorithm: convert an activation.Call error into the
// appropriate guidance stream, consulting the activation's CustomGuidance
// override (spec.md §4.6) when present.
func translateDispatchError(a activation.Activation, namespace, method string, err error) <-chan streamitem.Event {
	var (
		mnf *activation.MethodNotFoundError
		ipe *activation.InvalidParamsError
	)
	switch e := err.(type) {
	case *activation.MethodNotFoundError:
		mnf = e
	case *activation.InvalidParamsError:
		ipe = e
	default:
		// An activation returning an error outside the declared taxonomy is
		// treated as a non-recoverable execution error with no guidance,
		// per spec.md §4.1 step 6.
		p := provenance.MustNew(namespace)
		ch := make(chan streamitem.Event, 2)
		ch <- streamitem.Error(p, err.Error(), false)
		ch <- streamitem.Done(p)
		close(ch)
		return ch
	}

	if cg, ok := a.(activation.CustomGuidance); ok {
		errorKind := streamitem.MethodNotFound
		if ipe != nil {
			errorKind = streamitem.InvalidParams
		}
		if custom, ok := cg.GuidanceFor(method, errorKind); ok {
			p := provenance.MustNew(namespace)
			g := streamitem.Guidance(p, errorKind, custom)
			g.Activation = namespace
			g.Method = method
			if mnf != nil {
				available := append([]string(nil), mnf.AvailableMethods...)
				sort.Strings(available)
				g.AvailableMethods = available
			}
			return guidanceStream(p, g, err.Error())
		}
	}

	if mnf != nil {
		return methodNotFoundStream(mnf)
	}
	ms, _ := methodSchemaFor(a, method)
	return invalidParamsStream(namespace, method, ipe.Reason, ms)
}
