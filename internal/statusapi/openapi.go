package statusapi

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

var (
	specOnce sync.Once
	specDoc  *openapi3.T
)

// Spec describes the status endpoints.
func Spec() *openapi3.T {
	specOnce.Do(func() { specDoc = buildSpec() })
	return specDoc
}

func jsonOp(id, summary, desc string, schema *openapi3.Schema) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = id
	op.Summary = summary
	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchema(schema),
		}),
	)
	return op
}

func buildSpec() *openapi3.T {
	health := openapi3.NewObjectSchema().
		WithProperty("status", openapi3.NewStringSchema()).
		WithProperty("version", openapi3.NewStringSchema()).
		WithProperty("uptime_ms", openapi3.NewIntegerSchema()).
		WithProperty("goroutines", openapi3.NewIntegerSchema()).
		WithProperty("rss_bytes", openapi3.NewIntegerSchema()).
		WithProperty("connections", openapi3.NewIntegerSchema()).
		WithProperty("pending", openapi3.NewIntegerSchema()).
		WithProperty("queued", openapi3.NewIntegerSchema())

	conn := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("remote", openapi3.NewStringSchema()).
		WithProperty("ready", openapi3.NewBoolSchema()).
		WithProperty("connected_at", openapi3.NewDateTimeSchema())
	queue := openapi3.NewObjectSchema().
		WithProperty("size", openapi3.NewIntegerSchema()).
		WithProperty("max", openapi3.NewIntegerSchema()).
		WithProperty("oldestAgeMs", openapi3.NewIntegerSchema()).
		WithProperty("newestAgeMs", openapi3.NewIntegerSchema())
	pending := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("method", openapi3.NewStringSchema()).
		WithProperty("conn_id", openapi3.NewStringSchema()).
		WithProperty("started_at", openapi3.NewDateTimeSchema()).
		WithProperty("duration_ms", openapi3.NewIntegerSchema())
	broker := openapi3.NewObjectSchema().
		WithProperty("pending", openapi3.NewArraySchema().WithItems(pending)).
		WithProperty("queue", queue).
		WithProperty("inflight", openapi3.NewIntegerSchema())
	bridge := openapi3.NewObjectSchema().
		WithProperty("status", openapi3.NewStringSchema().WithEnum(
			"not_ready", "waiting_for_extension", "connected", "draining", "unknown")).
		WithProperty("port", openapi3.NewIntegerSchema()).
		WithProperty("connections", openapi3.NewIntegerSchema()).
		WithProperty("queue_size", openapi3.NewIntegerSchema()).
		WithProperty("updated_at", openapi3.NewDateTimeSchema())
	state := openapi3.NewObjectSchema().
		WithProperty("bridge", bridge).
		WithProperty("connections", openapi3.NewArraySchema().WithItems(conn)).
		WithProperty("broker", broker).
		WithProperty("build", openapi3.NewObjectSchema().WithAdditionalProperties(openapi3.NewStringSchema()))

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "nfrx-browser status API",
			Version: "1.0.0",
		},
		Paths: openapi3.NewPaths(),
	}
	doc.AddOperation("/health", http.MethodGet, jsonOp("getHealth", "Bridge liveness and resource usage", "Health report", health))
	doc.AddOperation("/state", http.MethodGet, jsonOp("getState", "Connections, pending requests and queue", "State snapshot", state))

	metrics := openapi3.NewOperation()
	metrics.OperationID = "getMetrics"
	metrics.Summary = "Prometheus metrics"
	metrics.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription("Prometheus text exposition").
				WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{"text/plain"})),
		}),
	)
	doc.AddOperation("/metrics", http.MethodGet, metrics)
	return doc
}

func openAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		b, err := Spec().MarshalJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	}
}
