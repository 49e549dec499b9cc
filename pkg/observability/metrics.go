package observability

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PrometheusHandler returns a Gin handler for Prometheus metrics
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler != nil {
			handler.ServeHTTP(c.Writer, c.Request)
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "metrics handler not initialized",
			})
		}
	}
}

// Metrics holds the service's domain counters.
type Metrics struct {
	triggers   metric.Int64Counter
	dispatches metric.Int64Counter
	syncedRecs metric.Int64Counter
}

// NewMetrics registers the engagement counters on the global meter provider.
func NewMetrics(serviceName string) (*Metrics, error) {
	meter := otel.GetMeterProvider().Meter(serviceName)

	triggers, err := meter.Int64Counter("triggers_total",
		metric.WithDescription("Inbound triggers by kind and outcome"))
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter("dispatches_total",
		metric.WithDescription("Message dispatches by body source and outcome"))
	if err != nil {
		return nil, err
	}

	syncedRecs, err := meter.Int64Counter("health_records_ingested_total",
		metric.WithDescription("Health records ingested from the wearable API"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		triggers:   triggers,
		dispatches: dispatches,
		syncedRecs: syncedRecs,
	}, nil
}

// Trigger records one processed trigger.
func (m *Metrics) Trigger(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.triggers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// Dispatch records one dispatch attempt.
func (m *Metrics) Dispatch(ctx context.Context, source, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

// Ingested records n health records ingested for a sync run.
func (m *Metrics) Ingested(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.syncedRecs.Add(ctx, n)
}
