// Package health is a leaf exemplar activation: a single "check" method
// reporting uptime and status, grounded on
// original_source/src/activations/health/activation.rs. It exists to
// exercise the core's leaf-activation path (spec.md §8 Scenario 1) and
// carries no business value beyond that.
package health

import (
	"context"
	"encoding/json"
	"time"

	"github.com/plexuscore/plexus/activation"
	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/schema"
	"github.com/plexuscore/plexus/streamitem"
)

const namespace = "health"

// Health is a leaf activation reporting process uptime.
type Health struct {
	startedAt time.Time
}

// New constructs a Health activation; uptime is measured from construction.
func New() *Health {
	return &Health{startedAt: time.Now()}
}

var _ activation.Activation = (*Health)(nil)

func (h *Health) Namespace() string   { return namespace }
func (h *Health) Version() string     { return "1.0.0" }
func (h *Health) Description() string { return "Check hub health and uptime" }
func (h *Health) Methods() []string   { return []string{"check"} }

func (h *Health) MethodHelp(method string) (string, bool) {
	if method == "check" {
		return "Returns the process status and uptime in seconds", true
	}
	return "", false
}

func checkParamsSchema() *schema.Schema {
	return schema.Object("health.check has no parameters")
}

func checkReturnsSchema() *schema.Schema {
	return schema.Object("health status").
		WithProperty("status", schema.Enum("process status", "healthy")).
		WithProperty("uptime_seconds", schema.Integer("seconds since process start")).
		WithProperty("timestamp", schema.String("RFC3339 timestamp of this check")).
		WithRequired("status", "uptime_seconds", "timestamp")
}

// EnrichSchema returns the tagged-union method-enum schema of spec.md §4.2:
// one {method: const, params} variant per method, combined with oneOf.
func (h *Health) EnrichSchema() *schema.Schema {
	return schema.MethodEnum(h.Description(), h.methodSchemas())
}

func (h *Health) methodSchemas() []schema.MethodSchema {
	help, _ := h.MethodHelp("check")
	return []schema.MethodSchema{
		activation.NewMethodSchema("check", help, checkParamsSchema(), checkReturnsSchema(), true),
	}
}

func (h *Health) PluginSchema() schema.PluginSchema {
	return schema.NewLeafSchema(namespace, h.Version(), h.Description(), h.methodSchemas())
}

// statusPayload is the Data event content_type "health.status" payload,
// matching spec.md §8 Scenario 1's {status, uptime_seconds, timestamp}.
type statusPayload struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

func (h *Health) Call(ctx context.Context, self provenance.Provenance, method string, params json.RawMessage) (<-chan streamitem.Event, error) {
	if method != "check" {
		return nil, &activation.MethodNotFoundError{
			Activation:       namespace,
			Method:           method,
			AvailableMethods: h.Methods(),
		}
	}

	payload := statusPayload{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	ch := make(chan streamitem.Event, 2)
	ev, err := streamitem.DataValue(self, "health.status", payload)
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
