package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/siteflow/server/internal/domain/todos"
)

type TodoRepository struct {
	db *sql.DB
}

var _ todos.Repository = (*TodoRepository)(nil)

func (r *TodoRepository) List(ctx context.Context) ([]todos.Todo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, text, completed FROM todo ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	defer rows.Close()

	items := []todos.Todo{}
	for rows.Next() {
		var t todos.Todo
		if err := rows.Scan(&t.ID, &t.Text, &t.Completed); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}
	return items, nil
}

func (r *TodoRepository) Insert(ctx context.Context, text string) (todos.Todo, error) {
	var t todos.Todo
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO todo (text) VALUES (?) RETURNING id, text, completed`,
		text,
	).Scan(&t.ID, &t.Text, &t.Completed)
	if err != nil {
		return todos.Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	return t, nil
}

func (r *TodoRepository) UpdateCompleted(ctx context.Context, id int64, completed bool) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE todo SET completed = ? WHERE id = ?`, completed, id)
	if err != nil {
		return 0, fmt.Errorf("update todo: %w", err)
	}
	return rowsAffected(res)
}

func (r *TodoRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM todo WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete todo: %w", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
