// Package rest serves the REST-exposed procedures as plain JSON resources and
// publishes their OpenAPI document with an HTML reference page.
package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/siteflow/server/internal/api/problem"
	"github.com/siteflow/server/internal/auth"
	"github.com/siteflow/server/internal/procedure"
)

type Handler struct {
	prefix         string
	gate           *auth.Gate
	routers        []*procedure.Router
	exposeInternal bool
	docs           *Docs
}

// NewHandler serves the routes of routers under prefix ("/api"). docs may be
// nil to skip the reference pages.
func NewHandler(prefix string, gate *auth.Gate, exposeInternal bool, docs *Docs, routers ...*procedure.Router) *Handler {
	return &Handler{
		prefix:         strings.TrimSuffix(prefix, "/"),
		gate:           gate,
		routers:        routers,
		exposeInternal: exposeInternal,
		docs:           docs,
	}
}

// Handle serves r when it matches a route or a docs page under the prefix
// and reports whether it did.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) bool {
	rel, ok := relativePath(r.URL.Path, h.prefix)
	if !ok {
		return false
	}
	if router, p, ok := h.match(r.Method, rel); ok {
		h.serve(w, r, router, p)
		return true
	}
	if h.docs != nil {
		return h.docs.Serve(w, r, rel)
	}
	return false
}

func (h *Handler) match(method, rel string) (*procedure.Router, procedure.Procedure, bool) {
	if method == http.MethodHead {
		method = http.MethodGet
	}
	for _, router := range h.routers {
		if p, ok := router.LookupRoute(method, rel); ok {
			return router, p, true
		}
	}
	return nil, nil, false
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, router *procedure.Router, p procedure.Procedure) {
	var raw []byte
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			problem.WriteError(w, r, fmt.Errorf("read request body: %w", err), h.exposeInternal)
			return
		}
		raw = body
	}

	ac, err := h.gate.Resolve(r)
	if err != nil {
		problem.WriteError(w, r, err, h.exposeInternal)
		return
	}
	h.gate.RefreshCookie(w, ac)

	out, err := router.Invoke(auth.WithContext(r.Context(), ac), p, ac, raw)
	if err != nil {
		problem.WriteError(w, r, err, h.exposeInternal)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// relativePath strips prefix from path. The prefix itself maps to "/".
func relativePath(path, prefix string) (string, bool) {
	if path == prefix {
		return "/", true
	}
	rel, ok := strings.CutPrefix(path, prefix+"/")
	if !ok {
		return "", false
	}
	return "/" + strings.TrimSuffix(rel, "/"), true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		problem.Write(w, nil, http.StatusInternalServerError, procedure.CodeInternal, err, false)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
