package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/siteflow/server/internal/procedure"
)

const tracerName = "github.com/siteflow/server/internal/procedure"

// ProcedureInterceptor opens one internal span per procedure call, named by
// the qualified procedure name. Client errors (4xx) are recorded as
// attributes; only internal failures mark the span as an error.
func ProcedureInterceptor() procedure.Interceptor {
	return func(next procedure.Invoker) procedure.Invoker {
		return func(ctx context.Context, call procedure.Call) (any, error) {
			ctx, span := otel.Tracer(tracerName).Start(ctx, call.Name,
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(
					attribute.String("procedure.name", call.Name),
					attribute.Bool("procedure.protected", call.Procedure.Definition().Protected),
					attribute.Bool("auth.authenticated", call.Auth.Authenticated()),
				),
			)
			defer span.End()

			out, err := next(ctx, call)
			if err != nil {
				failure := procedure.Classify(err, false)
				span.SetAttributes(
					attribute.String("procedure.error_code", failure.Code),
					attribute.Int("procedure.status", failure.Status),
				)
				if failure.Status >= 500 {
					span.RecordError(err)
					span.SetStatus(codes.Error, failure.Code)
				}
				return out, err
			}
			span.SetStatus(codes.Ok, "")
			return out, nil
		}
	}
}
