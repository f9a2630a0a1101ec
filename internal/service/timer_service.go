package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	apperrors "focustimer/internal/errors"
	"focustimer/internal/effects"
	"focustimer/internal/model"
	"focustimer/internal/repository"
	"focustimer/internal/timer"
)

// TimerService adapts the per-owner timer engines to the HTTP API.
type TimerService struct {
	registry *timer.Registry
	sessions *repository.SessionRepository
	now      func() time.Time
}

type HistoryView struct {
	Sessions          []model.SessionRecord `json:"sessions"`
	TodayFocusSeconds int                   `json:"todayFocusSeconds"`
}

func NewTimerService(registry *timer.Registry, sessions *repository.SessionRepository) *TimerService {
	return &TimerService{
		registry: registry,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *TimerService) State(ctx context.Context, userID string) (*timer.View, *apperrors.APIError) {
	engine, apiErr := s.engine(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	view := engine.View()
	return &view, nil
}

func (s *TimerService) Start(ctx context.Context, userID string, baseRevision int, subjectID *string) (*timer.View, *apperrors.APIError) {
	engine, apiErr := s.engine(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	if subjectID != nil {
		trimmed := strings.TrimSpace(*subjectID)
		if trimmed == "" {
			subjectID = nil
		} else {
			subjectID = &trimmed
		}
	}
	return result(engine.Start(ctx, baseRevision, subjectID))
}

func (s *TimerService) Pause(ctx context.Context, userID string, baseRevision int) (*timer.View, *apperrors.APIError) {
	engine, apiErr := s.engine(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	return result(engine.Pause(ctx, baseRevision))
}

func (s *TimerService) Stop(ctx context.Context, userID string, baseRevision int) (*timer.View, *apperrors.APIError) {
	engine, apiErr := s.engine(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	return result(engine.Stop(ctx, baseRevision))
}

func (s *TimerService) Skip(ctx context.Context, userID string, baseRevision int) (*timer.View, *apperrors.APIError) {
	engine, apiErr := s.engine(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	return result(engine.Skip(ctx, baseRevision))
}

func (s *TimerService) UpdateConfig(ctx context.Context, userID string, baseRevision int, patch model.ConfigPatch) (*timer.View, *apperrors.APIError) {
	engine, apiErr := s.engine(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	return result(engine.UpdateConfig(ctx, baseRevision, patch))
}

// SetVisibility forwards the client's foreground signal. viewFocused is
// optional and only updated when present.
func (s *TimerService) SetVisibility(ctx context.Context, userID string, visible bool, viewFocused *bool) (*timer.View, *apperrors.APIError) {
	engine, apiErr := s.engine(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	if viewFocused != nil {
		engine.SetViewFocused(*viewFocused)
	}
	view := engine.SetVisibility(ctx, visible)
	return &view, nil
}

func (s *TimerService) History(ctx context.Context, userID string, limit int) (*HistoryView, *apperrors.APIError) {
	sessions, err := s.sessions.List(ctx, userID, limit)
	if err != nil {
		log.Printf("list history for %s: %v", userID, err)
		return nil, apperrors.Internal("failed to load history")
	}

	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	total, err := s.sessions.TotalFocusSeconds(ctx, userID, dayStart)
	if err != nil {
		log.Printf("sum history for %s: %v", userID, err)
		return nil, apperrors.Internal("failed to load history")
	}
	return &HistoryView{Sessions: sessions, TodayFocusSeconds: total}, nil
}

// Events subscribes to the owner's effect stream.
func (s *TimerService) Events(ctx context.Context, userID string) (<-chan effects.Effect, func(), *apperrors.APIError) {
	engine, apiErr := s.engine(ctx, userID)
	if apiErr != nil {
		return nil, nil, apiErr
	}
	stream, cancel := engine.Subscribe(32)
	return stream, cancel, nil
}

func (s *TimerService) engine(ctx context.Context, userID string) (*timer.Engine, *apperrors.APIError) {
	engine, err := s.registry.Engine(ctx, userID)
	if err != nil {
		if errors.Is(err, timer.ErrRegistryClosed) {
			return nil, apperrors.Unavailable("server is shutting down")
		}
		return nil, apperrors.Internal("failed to load timer")
	}
	return engine, nil
}

func result(view timer.View, err error) (*timer.View, *apperrors.APIError) {
	if err == nil {
		return &view, nil
	}
	switch {
	case errors.Is(err, timer.ErrStaleRevision):
		return nil, apperrors.Conflict("state_conflict", "state changed on another device", map[string]interface{}{
			"state": view,
		})
	case errors.Is(err, model.ErrInvalidConfig):
		return nil, apperrors.BadRequest("invalid_config", strings.ReplaceAll(err.Error(), "\n", ": "))
	default:
		return nil, apperrors.Internal("failed to update timer")
	}
}
