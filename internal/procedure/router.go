package procedure

import (
	"context"
	"sort"
	"strings"

	"github.com/siteflow/server/internal/auth"
)

// Call is one invocation flowing through a Router's interceptors.
type Call struct {
	// Name is the qualified procedure name, e.g. "todo.getAll".
	Name      string
	Procedure Procedure
	Auth      auth.Context
	Input     []byte
}

// Invoker runs a call. Interceptors wrap it.
type Invoker func(ctx context.Context, call Call) (any, error)

// Interceptor decorates every call made through a Router (metrics, tracing).
type Interceptor func(next Invoker) Invoker

// Router is a named group of procedures. Qualified names are
// "<router>.<procedure>".
type Router struct {
	name         string
	procedures   []Procedure
	byName       map[string]Procedure
	byRoute      map[string]Procedure
	interceptors []Interceptor
}

func NewRouter(name string, procedures ...Procedure) *Router {
	r := &Router{
		name:    name,
		byName:  make(map[string]Procedure, len(procedures)),
		byRoute: make(map[string]Procedure),
	}
	for _, p := range procedures {
		def := p.Definition()
		if _, dup := r.byName[def.Name]; dup {
			panic("procedure: duplicate procedure " + name + "." + def.Name)
		}
		r.procedures = append(r.procedures, p)
		r.byName[def.Name] = p
		if def.Route != nil {
			r.byRoute[routeKey(def.Route.Method, def.Route.Path)] = p
		}
	}
	return r
}

func (r *Router) Name() string {
	return r.name
}

// Procedures returns the router's procedures in declaration order.
func (r *Router) Procedures() []Procedure {
	return append([]Procedure(nil), r.procedures...)
}

// QualifiedName returns "<router>.<name>" for p.
func (r *Router) QualifiedName(p Procedure) string {
	return r.name + "." + p.Definition().Name
}

// Lookup finds a procedure by qualified name ("todo.getAll").
func (r *Router) Lookup(qualified string) (Procedure, bool) {
	prefix, name, ok := strings.Cut(qualified, ".")
	if !ok || prefix != r.name {
		return nil, false
	}
	p, ok := r.byName[name]
	return p, ok
}

// LookupRoute finds the REST-exposed procedure for method and path.
func (r *Router) LookupRoute(method, path string) (Procedure, bool) {
	p, ok := r.byRoute[routeKey(method, path)]
	return p, ok
}

// Routes returns the REST paths declared by the router, sorted.
func (r *Router) Routes() []string {
	seen := make(map[string]struct{})
	for _, p := range r.procedures {
		if route := p.Definition().Route; route != nil {
			seen[route.Path] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Use appends interceptors; the first registered is the outermost.
func (r *Router) Use(interceptors ...Interceptor) {
	r.interceptors = append(r.interceptors, interceptors...)
}

// Invoke calls p through the router's interceptors.
func (r *Router) Invoke(ctx context.Context, p Procedure, ac auth.Context, raw []byte) (any, error) {
	invoke := Invoker(func(ctx context.Context, call Call) (any, error) {
		return call.Procedure.Call(ctx, call.Auth, call.Input)
	})
	for i := len(r.interceptors) - 1; i >= 0; i-- {
		invoke = r.interceptors[i](invoke)
	}
	return invoke(ctx, Call{Name: r.QualifiedName(p), Procedure: p, Auth: ac, Input: raw})
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}
