package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/siteflow/server/internal/procedure"
)

var (
	// ProcedureCallsTotal counts calls by qualified name and outcome code
	// ("OK" or an error code such as BAD_REQUEST).
	ProcedureCallsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "procedure_calls_total",
			Help:      "Total number of procedure calls",
		},
		[]string{"procedure", "code"},
	)

	ProcedureDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "procedure_duration_seconds",
			Help:      "Procedure call latency in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"procedure"},
	)
)

const outcomeOK = "OK"

// ProcedureInterceptor records every call made through a procedure.Router.
func ProcedureInterceptor() procedure.Interceptor {
	return func(next procedure.Invoker) procedure.Invoker {
		return func(ctx context.Context, call procedure.Call) (any, error) {
			start := time.Now()
			out, err := next(ctx, call)

			code := outcomeOK
			if err != nil {
				code = procedure.Classify(err, false).Code
			}
			ProcedureCallsTotal.WithLabelValues(call.Name, code).Inc()
			ProcedureDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
			return out, err
		}
	}
}
