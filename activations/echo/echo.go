// Package echo is a trivial leaf exemplar activation used by transport and
// plexus tests to exercise the Guidance layer (spec.md §4.6) without
// depending on health or arbor's state.
package echo

import (
	"context"
	"encoding/json"

	"github.com/plexuscore/plexus/activation"
	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/schema"
	"github.com/plexuscore/plexus/streamitem"
)

const namespace = "echo"

// Echo has a single "say" method that echoes back a required "message"
// string param, used to exercise InvalidParams guidance deterministically.
type Echo struct{}

// New constructs an Echo activation.
func New() *Echo { return &Echo{} }

var _ activation.Activation = (*Echo)(nil)

func (e *Echo) Namespace() string   { return namespace }
func (e *Echo) Version() string     { return "1.0.0" }
func (e *Echo) Description() string { return "Echoes back its input message" }
func (e *Echo) Methods() []string   { return []string{"say"} }

func (e *Echo) MethodHelp(method string) (string, bool) {
	if method == "say" {
		return "Echoes back params.message", true
	}
	return "", false
}

func sayParamsSchema() *schema.Schema {
	return schema.Object("say params").
		WithProperty("message", schema.String("text to echo back")).
		WithRequired("message")
}

func sayReturnsSchema() *schema.Schema {
	return schema.Object("say result").
		WithProperty("message", schema.String("the echoed text")).
		WithRequired("message")
}

func (e *Echo) methodSchemas() []schema.MethodSchema {
	help, _ := e.MethodHelp("say")
	return []schema.MethodSchema{
		activation.NewMethodSchema("say", help, sayParamsSchema(), sayReturnsSchema(), true),
	}
}

// EnrichSchema returns the tagged-union method-enum schema of spec.md §4.2:
// one {method: const, params} variant per method, combined with oneOf.
func (e *Echo) EnrichSchema() *schema.Schema {
	return schema.MethodEnum(e.Description(), e.methodSchemas())
}

func (e *Echo) PluginSchema() schema.PluginSchema {
	return schema.NewLeafSchema(namespace, e.Version(), e.Description(), e.methodSchemas())
}

type sayParams struct {
	Message string `json:"message"`
}

func (e *Echo) Call(ctx context.Context, self provenance.Provenance, method string, params json.RawMessage) (<-chan streamitem.Event, error) {
	if method != "say" {
		return nil, &activation.MethodNotFoundError{
			Activation:       namespace,
			Method:           method,
			AvailableMethods: e.Methods(),
		}
	}

	var p sayParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &activation.InvalidParamsError{Method: method, Reason: "params must be a JSON object"}
		}
	}
	if p.Message == "" {
		return nil, &activation.InvalidParamsError{Method: method, Reason: "message is required"}
	}

	ch := make(chan streamitem.Event, 2)
	ev, err := streamitem.DataValue(self, "echo.message", struct {
		Message string `json:"message"`
	}{Message: p.Message})
	if err != nil {
		ch <- streamitem.Error(self, err.Error(), false)
		close(ch)
		return ch, nil
	}
	ch <- ev
	ch <- streamitem.Done(self)
	close(ch)
	return ch, nil
}
