package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/siteflow/server/internal/domain/todos"
)

type TodoRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ todos.Repository = (*TodoRepository)(nil)

func (r *TodoRepository) List(ctx context.Context) ([]todos.Todo, error) {
	rows, err := r.queryer().Query(ctx, `SELECT id, text, completed FROM todo ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (todos.Todo, error) {
		var t todos.Todo
		err := row.Scan(&t.ID, &t.Text, &t.Completed)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan todos: %w", err)
	}
	return items, nil
}

func (r *TodoRepository) Insert(ctx context.Context, text string) (todos.Todo, error) {
	var t todos.Todo
	err := r.queryer().QueryRow(ctx,
		`INSERT INTO todo (text) VALUES ($1) RETURNING id, text, completed`,
		text,
	).Scan(&t.ID, &t.Text, &t.Completed)
	if err != nil {
		return todos.Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	return t, nil
}

func (r *TodoRepository) UpdateCompleted(ctx context.Context, id int64, completed bool) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `UPDATE todo SET completed = $2 WHERE id = $1`, id, completed)
	if err != nil {
		return 0, fmt.Errorf("update todo: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *TodoRepository) Delete(ctx context.Context, id int64) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM todo WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete todo: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *TodoRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}
