// Package todos holds the todo list: its persistence contract, the service
// wrapping it, and the "todo" procedure router exposed over RPC and REST.
package todos

import (
	"context"
)

// Todo is a single list entry. The list is shared by every signed-in user.
type Todo struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// MutationResult reports how many rows an update or delete touched. Zero means
// the id did not exist; that is not an error.
type MutationResult struct {
	RowsAffected int64 `json:"rowsAffected"`
}

// Repository is implemented by each storage backend. Every method is a single
// atomic statement and performs no authorization.
type Repository interface {
	// List returns all todos ordered by id.
	List(ctx context.Context) ([]Todo, error)
	// Insert stores a new, incomplete todo and returns it with its id.
	Insert(ctx context.Context, text string) (Todo, error)
	UpdateCompleted(ctx context.Context, id int64, completed bool) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
}
