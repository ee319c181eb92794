package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/vbsb/internal/history"
	"github.com/starford/vbsb/internal/models"
)

// StatusSource exposes the live state of a running pipeline.
type StatusSource interface {
	Units() []models.Unit
	LastCycle() *models.CycleResult
	Output() string
}

// ErrHistoryDisabled is returned by history lookups when no store is configured.
var ErrHistoryDisabled = errors.New("api: history disabled")

// Service coordinates the pipeline state and the build history for the API layer.
type Service struct {
	src     StatusSource
	history history.Store
}

// NewService creates a new API service. store may be nil when history is
// disabled.
func NewService(src StatusSource, store history.Store) *Service {
	return &Service{src: src, history: store}
}

// Status returns the tracked units and the last cycle.
func (s *Service) Status() StatusResponse {
	units := s.src.Units()
	resp := StatusResponse{
		Output: s.src.Output(),
		Units:  make([]UnitItem, 0, len(units)),
	}
	for _, u := range units {
		resp.Units = append(resp.Units, newUnitItem(u))
		if !u.IsTest {
			resp.Bundled++
		}
	}
	resp.LastCycle = s.src.LastCycle()
	return resp
}

// Builds returns up to limit recorded builds, newest first. An empty list is
// returned when history is disabled.
func (s *Service) Builds(ctx context.Context, limit int) ([]history.Build, error) {
	if s.history == nil {
		return []history.Build{}, nil
	}
	builds, err := s.history.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("api: builds: %w", err)
	}
	return builds, nil
}

// Failures returns the failures recorded for a build.
func (s *Service) Failures(ctx context.Context, id int64) ([]history.Failure, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Failures(ctx, id)
}
