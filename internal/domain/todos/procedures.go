package todos

import (
	"context"
	"net/http"

	"github.com/siteflow/server/internal/auth"
	"github.com/siteflow/server/internal/procedure"
)

// RouterName prefixes every todo procedure ("todo.getAll").
const RouterName = "todo"

type CreateInput struct {
	Text string `json:"text" validate:"min=1" jsonschema:"minLength=1"`
}

func (in CreateInput) Validate() error {
	return procedure.ValidateStruct(in)
}

type ToggleInput struct {
	ID        *int64 `json:"id" validate:"required"`
	Completed *bool  `json:"completed" validate:"required"`
}

func (in ToggleInput) Validate() error {
	return procedure.ValidateStruct(in)
}

type DeleteInput struct {
	ID *int64 `json:"id" validate:"required"`
}

func (in DeleteInput) Validate() error {
	return procedure.ValidateStruct(in)
}

// NewRouter declares the todo procedures. All of them require a session.
// Only getAll and create are exposed in the REST form.
func NewRouter(svc *Service) *procedure.Router {
	getAll := procedure.New(procedure.Definition{
		Name:      "getAll",
		Method:    http.MethodGet,
		Route:     &procedure.Route{Method: http.MethodGet, Path: "/todos"},
		Protected: true,
		Summary:   "List all todos",
	}, func(ctx context.Context, _ auth.Context, _ procedure.Empty) ([]Todo, error) {
		return svc.List(ctx)
	})

	create := procedure.New(procedure.Definition{
		Name:      "create",
		Method:    http.MethodPost,
		Route:     &procedure.Route{Method: http.MethodPost, Path: "/todos"},
		Protected: true,
		Summary:   "Create a todo",
	}, func(ctx context.Context, _ auth.Context, in CreateInput) (Todo, error) {
		return svc.Create(ctx, in.Text)
	})

	toggle := procedure.New(procedure.Definition{
		Name:      "toggle",
		Method:    http.MethodPost,
		Protected: true,
		Summary:   "Set a todo's completed flag",
	}, func(ctx context.Context, _ auth.Context, in ToggleInput) (MutationResult, error) {
		return svc.SetCompleted(ctx, *in.ID, *in.Completed)
	})

	remove := procedure.New(procedure.Definition{
		Name:      "delete",
		Method:    http.MethodPost,
		Protected: true,
		Summary:   "Delete a todo",
	}, func(ctx context.Context, _ auth.Context, in DeleteInput) (MutationResult, error) {
		return svc.Delete(ctx, *in.ID)
	})

	return procedure.NewRouter(RouterName, getAll, create, toggle, remove)
}
