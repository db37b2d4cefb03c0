package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/siteflow/server/internal/procedure"
)

// DocsContentSecurityPolicy replaces the API policy on the reference page,
// which loads the Scalar bundle from its CDN.
const DocsContentSecurityPolicy = "default-src 'none'; " +
	"script-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
	"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net https://fonts.googleapis.com; " +
	"font-src 'self' data: https://cdn.jsdelivr.net https://fonts.gstatic.com; " +
	"img-src 'self' data: https:; " +
	"connect-src 'self'; " +
	"frame-ancestors 'none'"

const scalarBundle = "https://cdn.jsdelivr.net/npm/@scalar/api-reference"

var referencePage = template.Must(template.New("reference").Parse(`<!doctype html>
<html>
  <head>
    <title>{{.Title}}</title>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
  </head>
  <body>
    <script id="api-reference" data-url="{{.SpecURL}}"></script>
    <script src="{{.Bundle}}"></script>
  </body>
</html>
`))

// Docs serves a rendered OpenAPI document: "/" is the HTML reference,
// "/spec.json" and "/spec.yaml" the document itself. Paths are relative to
// the mount prefix.
type Docs struct {
	title    string
	specJSON []byte
	specYAML []byte
}

// NewDocs renders the document once; it does not change while serving.
func NewDocs(info procedure.Info, routers ...*procedure.Router) (*Docs, error) {
	specJSON, err := json.MarshalIndent(procedure.OpenAPI(info, routers...), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal openapi: %w", err)
	}
	specYAML, err := yaml.JSONToYAML(specJSON)
	if err != nil {
		return nil, fmt.Errorf("render openapi yaml: %w", err)
	}
	return &Docs{title: info.Title, specJSON: specJSON, specYAML: specYAML}, nil
}

// JSON returns the rendered document.
func (d *Docs) JSON() []byte {
	return d.specJSON
}

// Serve writes the page for rel and reports whether rel is a docs path.
func (d *Docs) Serve(w http.ResponseWriter, r *http.Request, rel string) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	switch rel {
	case "/":
		d.serveReference(w, r)
	case "/spec.json":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(d.specJSON)
	case "/spec.yaml":
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(d.specYAML)
	default:
		return false
	}
	return true
}

func (d *Docs) serveReference(w http.ResponseWriter, r *http.Request) {
	specURL := r.URL.Path
	if specURL == "" || specURL[len(specURL)-1] != '/' {
		specURL += "/"
	}
	specURL += "spec.json"

	var buf bytes.Buffer
	if err := referencePage.Execute(&buf, struct {
		Title   string
		SpecURL string
		Bundle  string
	}{Title: d.title, SpecURL: specURL, Bundle: scalarBundle}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Security-Policy", DocsContentSecurityPolicy)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// HandlePrefix serves the docs mounted at prefix on their own ("/docs").
func (d *Docs) HandlePrefix(w http.ResponseWriter, r *http.Request, prefix string) bool {
	rel, ok := relativePath(r.URL.Path, strings.TrimSuffix(prefix, "/"))
	if !ok {
		return false
	}
	return d.Serve(w, r, rel)
}
