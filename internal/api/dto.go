package api

import (
	"github.com/starford/vbsb/internal/history"
	"github.com/starford/vbsb/internal/models"
)

// UnitItem is a tracked unit in the status response.
type UnitItem struct {
	Path     string `json:"path" example:"/src/^header.vbs" validate:"required"`
	IsHeader bool   `json:"is_header"`
	IsFooter bool   `json:"is_footer"`
	IsTest   bool   `json:"is_test"`
}

func newUnitItem(u models.Unit) UnitItem {
	return UnitItem{Path: u.Path, IsHeader: u.IsHeader, IsFooter: u.IsFooter, IsTest: u.IsTest}
}

// StatusResponse describes the running pipeline.
type StatusResponse struct {
	Output    string              `json:"output" example:"/work/bundle.vbs" validate:"required"`
	Units     []UnitItem          `json:"units" validate:"required"`
	Bundled   int                 `json:"bundled" example:"12"`
	LastCycle *models.CycleResult `json:"last_cycle"`
}

// BuildListResponse wraps recorded builds.
type BuildListResponse struct {
	Builds []history.Build `json:"builds" validate:"required"`
}

// FailureListResponse wraps the failures of one build.
type FailureListResponse struct {
	BuildID  int64             `json:"build_id" example:"7" validate:"required"`
	Failures []history.Failure `json:"failures" validate:"required"`
}
