// Package procedure defines typed, transport-neutral operations. A procedure
// is declared once with its input and output types and served by both the RPC
// and REST adapters.
package procedure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/siteflow/server/internal/auth"
)

// Route opts a procedure into the REST form.
type Route struct {
	Method string
	Path   string
}

type Definition struct {
	// Name is the procedure's name within its router, e.g. "getAll".
	Name string
	// Method is the preferred RPC method. POST is accepted for every
	// procedure; GET only when Method is GET.
	Method    string
	Route     *Route
	Protected bool
	Summary   string

	InputSchema  map[string]any
	OutputSchema map[string]any
}

// Validator is implemented by inputs that check their own constraints.
type Validator interface {
	Validate() error
}

// Empty is the input of procedures that take none.
type Empty struct{}

// Handler is the pure operation behind a procedure.
type Handler[I, O any] func(ctx context.Context, ac auth.Context, in I) (O, error)

type Procedure interface {
	Definition() Definition
	// Call runs the protected check, decodes and validates raw, then invokes
	// the handler. raw may be empty or JSON null for procedures without input.
	Call(ctx context.Context, ac auth.Context, raw []byte) (any, error)
}

type typed[I, O any] struct {
	def     Definition
	handler Handler[I, O]
}

// New declares a procedure. Input and output schemas are derived from I and O
// unless def already carries them.
func New[I, O any](def Definition, handler Handler[I, O]) Procedure {
	if def.InputSchema == nil {
		var in I
		def.InputSchema = SchemaOf(in)
	}
	if def.OutputSchema == nil {
		var out O
		def.OutputSchema = SchemaOf(out)
	}
	return &typed[I, O]{def: def, handler: handler}
}

func (p *typed[I, O]) Definition() Definition {
	return p.def
}

func (p *typed[I, O]) Call(ctx context.Context, ac auth.Context, raw []byte) (any, error) {
	if p.def.Protected && !ac.Authenticated() {
		return nil, ErrUnauthorized
	}

	var in I
	if err := decodeInput(raw, &in); err != nil {
		return nil, err
	}
	if v, ok := any(in).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, asValidationError(err)
		}
	}

	out, err := p.handler(ctx, ac, in)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeInput(raw []byte, dst any) error {
	if _, ok := dst.(*Empty); ok {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return &ValidationError{Message: "Input validation failed", Issues: []Issue{{Path: fieldOf(err), Message: describeDecode(err)}}}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &ValidationError{Message: "Input validation failed", Issues: []Issue{{Message: "unexpected data after input"}}}
	}
	return nil
}

func fieldOf(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field
	}
	return ""
}

func describeDecode(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("expected %s, received %s", typeErr.Type.Kind(), typeErr.Value)
	}
	return "malformed JSON input"
}

func asValidationError(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &ValidationError{Message: err.Error()}
}

// ExpandedStruct only applies to struct roots; for slices and scalars it
// would look up a definition that was never recorded.
var (
	structReflector = &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	valueReflector = &jsonschema.Reflector{
		DoNotReference: true,
	}
)

// SchemaOf returns the JSON Schema of v's type as a generic document
// suitable for embedding in OpenAPI.
func SchemaOf(v any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	r := valueReflector
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		r = structReflector
	}
	raw, err := json.Marshal(r.ReflectFromType(t))
	if err != nil {
		return map[string]any{}
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return map[string]any{}
	}
	delete(doc, "$schema")
	delete(doc, "$id")
	return doc
}
