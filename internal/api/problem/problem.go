// Package problem writes RFC 7807 problem details. Every problem carries a
// stable machine-readable code alongside the HTTP status.
package problem

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/siteflow/server/internal/procedure"
)

const contentType = "application/problem+json"

// TypeBlank is used when the status code alone describes the problem.
const TypeBlank = "about:blank"

type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Code     string `json:"code"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Data     any    `json:"data,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithData(data any) Option {
	return func(p *ProblemDetails) {
		p.Data = data
	}
}

// Write sends a problem for status and code. When err is set it is logged
// (5xx at error, 4xx at warn) and its message becomes the detail only if
// exposeDetail is true.
func Write(w http.ResponseWriter, r *http.Request, status int, code string, err error, exposeDetail bool, opts ...Option) {
	p := ProblemDetails{
		Type:   TypeBlank,
		Title:  http.StatusText(status),
		Status: status,
		Code:   code,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.Detail == "" && err != nil && exposeDetail {
		p.Detail = err.Error()
	}
	if r != nil {
		p.Instance = r.URL.Path
		logProblem(r, p, err)
	}
	WriteProblem(w, p)
}

// WriteError classifies err with the procedure taxonomy and writes it.
// Internal messages are only exposed when exposeInternal is set.
func WriteError(w http.ResponseWriter, r *http.Request, err error, exposeInternal bool) {
	failure := procedure.Classify(err, exposeInternal)
	Write(w, r, failure.Status, failure.Code, err, false,
		WithDetail(failure.Message), WithData(failure.Data))
}

// NotFound is the terminal response of the dispatcher.
func NotFound(w http.ResponseWriter, r *http.Request) {
	Write(w, r, http.StatusNotFound, procedure.CodeNotFound, nil, false,
		WithDetail(fmt.Sprintf("No route for %s %s", r.Method, r.URL.Path)))
}

func WriteProblem(w http.ResponseWriter, p ProblemDetails) {
	payload, err := json.Marshal(p)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"type":%q,"title":%q,"status":500,"code":%q}`,
			TypeBlank, http.StatusText(http.StatusInternalServerError), procedure.CodeInternal))
		p.Status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(p.Status)
	_, _ = w.Write(payload)
}

func logProblem(r *http.Request, p ProblemDetails, err error) {
	if err == nil {
		return
	}
	logger := zerolog.Ctx(r.Context())
	var event *zerolog.Event
	switch {
	case p.Status >= 500:
		event = logger.Error()
	case p.Status >= 400:
		event = logger.Warn()
	default:
		return
	}
	event.
		Err(err).
		Int("status", p.Status).
		Str("code", p.Code).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Msg(p.Title)
}
