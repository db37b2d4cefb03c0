// Package rpc serves procedures in the RPC form: one URL per qualified
// procedure name with inputs and outputs wrapped in a {"json": ...} envelope.
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/siteflow/server/internal/auth"
	"github.com/siteflow/server/internal/procedure"
)

// Envelope wraps every request input and response output.
type Envelope struct {
	JSON json.RawMessage `json:"json"`
	Meta json.RawMessage `json:"meta,omitempty"`
}

// ErrorBody is the payload of an error envelope.
type ErrorBody struct {
	Defined bool   `json:"defined"`
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Handler struct {
	prefix         string
	gate           *auth.Gate
	routers        []*procedure.Router
	exposeInternal bool
}

// NewHandler serves routers under prefix ("/rpc"). exposeInternal controls
// whether messages of unexpected errors reach the client.
func NewHandler(prefix string, gate *auth.Gate, exposeInternal bool, routers ...*procedure.Router) *Handler {
	return &Handler{
		prefix:         strings.TrimSuffix(prefix, "/"),
		gate:           gate,
		routers:        routers,
		exposeInternal: exposeInternal,
	}
}

// Handle serves r if its path names a known procedure and reports whether it
// did. Unmatched requests are left to the caller.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) bool {
	router, p, ok := h.match(r.URL.Path)
	if !ok {
		return false
	}

	def := p.Definition()
	if !methodAllowed(def, r.Method) {
		w.Header().Set("Allow", allowed(def))
		h.writeError(w, r, http.StatusMethodNotAllowed, procedure.Failure{
			Status:  http.StatusMethodNotAllowed,
			Code:    procedure.CodeMethodNotSupported,
			Message: fmt.Sprintf("Method %s is not supported for %s", r.Method, router.QualifiedName(p)),
		}, nil)
		return true
	}

	raw, err := readInput(r)
	if err != nil {
		h.fail(w, r, err)
		return true
	}

	ac, err := h.gate.Resolve(r)
	if err != nil {
		h.fail(w, r, err)
		return true
	}
	h.gate.RefreshCookie(w, ac)

	ctx := auth.WithContext(r.Context(), ac)
	out, err := router.Invoke(ctx, p, ac, raw)
	if err != nil {
		h.fail(w, r, err)
		return true
	}
	writeEnvelope(w, http.StatusOK, out)
	return true
}

// match accepts both "/rpc/todo.getAll" and "/rpc/todo/getAll".
func (h *Handler) match(path string) (*procedure.Router, procedure.Procedure, bool) {
	rest, ok := strings.CutPrefix(path, h.prefix+"/")
	if !ok || rest == "" {
		return nil, nil, false
	}
	name := strings.ReplaceAll(strings.Trim(rest, "/"), "/", ".")
	for _, router := range h.routers {
		if p, ok := router.Lookup(name); ok {
			return router, p, true
		}
	}
	return nil, nil, false
}

func methodAllowed(def procedure.Definition, method string) bool {
	switch method {
	case http.MethodPost:
		return true
	case http.MethodGet:
		return def.Method == http.MethodGet
	default:
		return false
	}
}

func allowed(def procedure.Definition) string {
	if def.Method == http.MethodGet {
		return "GET, POST"
	}
	return "POST"
}

// readInput extracts the raw input from the envelope: the request body for
// POST, the data query parameter for GET. A missing envelope is no input. A
// payload that is not an envelope is handed on as-is so the procedure reports
// it after its session check.
func readInput(r *http.Request) ([]byte, error) {
	var payload []byte
	if r.Method == http.MethodGet {
		payload = []byte(r.URL.Query().Get("data"))
	} else {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		payload = body
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, nil
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return payload, nil
	}
	return env.JSON, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	failure := procedure.Classify(err, h.exposeInternal)
	h.writeError(w, r, failure.Status, failure, err)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, failure procedure.Failure, err error) {
	logger := zerolog.Ctx(r.Context())
	event := logger.Warn()
	if status >= 500 {
		event = logger.Error()
	}
	event.Err(err).
		Str("code", failure.Code).
		Int("status", status).
		Str("path", r.URL.Path).
		Msg("procedure failed")

	writeEnvelope(w, status, ErrorBody{
		Defined: false,
		Code:    failure.Code,
		Status:  status,
		Message: failure.Message,
		Data:    failure.Data,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(struct {
		JSON any `json:"json"`
	}{JSON: payload})
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"json":{"defined":false,"code":"INTERNAL_SERVER_ERROR","status":500,"message":"Internal server error"}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
