package todos

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "todos").Logger(),
	}
}

func (s *Service) List(ctx context.Context) ([]Todo, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	if items == nil {
		items = []Todo{}
	}
	return items, nil
}

func (s *Service) Create(ctx context.Context, text string) (Todo, error) {
	todo, err := s.repo.Insert(ctx, text)
	if err != nil {
		return Todo{}, fmt.Errorf("create todo: %w", err)
	}
	s.logger.Debug().Int64("todo_id", todo.ID).Msg("todo created")
	return todo, nil
}

// SetCompleted is last-write-wins; concurrent toggles of one id are not
// serialized.
func (s *Service) SetCompleted(ctx context.Context, id int64, completed bool) (MutationResult, error) {
	n, err := s.repo.UpdateCompleted(ctx, id, completed)
	if err != nil {
		return MutationResult{}, fmt.Errorf("toggle todo %d: %w", id, err)
	}
	return MutationResult{RowsAffected: n}, nil
}

func (s *Service) Delete(ctx context.Context, id int64) (MutationResult, error) {
	n, err := s.repo.Delete(ctx, id)
	if err != nil {
		return MutationResult{}, fmt.Errorf("delete todo %d: %w", id, err)
	}
	if n > 0 {
		s.logger.Debug().Int64("todo_id", id).Msg("todo deleted")
	}
	return MutationResult{RowsAffected: n}, nil
}
