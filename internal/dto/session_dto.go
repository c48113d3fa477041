package dto

import (
	"github.com/rubrix-app/rubrix-api/internal/models"
	"github.com/rubrix-app/rubrix-api/internal/session"
)

// CommitUnitRequest records one student's answer for the current unit.
type CommitUnitRequest struct {
	StudentName        string              `json:"student_name" validate:"required,min=1,max=255"`
	Selections         map[string]string   `json:"selections"`
	Scores             map[string]float64  `json:"scores"`
	Results            map[string]bool     `json:"results"`
	Feedback           map[string]string   `json:"feedback"`
	CalculationCorrect map[string]bool     `json:"calculation_correct"`
	MetRequirements    map[string][]string `json:"met_requirements"`
	ConditionsMet      map[int]bool        `json:"conditions_met"`
	SelectedRoute      string              `json:"selected_route"`
	RubricVersion      string              `json:"rubric_version"`
	NotMade            bool                `json:"not_made"`
}

// ClearNotMadeRequest un-toggles the not-made flag for a student on the
// current unit.
type ClearNotMadeRequest struct {
	StudentName string `json:"student_name" validate:"required"`
}

// SessionProgressResponse reports the workflow position after an operation.
// ProgressSaved is false when persistence was skipped (typically a missing
// privacy key); the client is expected to warn the user.
type SessionProgressResponse struct {
	Resumed       bool             `json:"resumed,omitempty"`
	Progress      session.Progress `json:"progress"`
	ProgressSaved bool             `json:"progress_saved"`
	Warning       string           `json:"warning,omitempty"`
}

// FinishResponse returns the finalized grades of a completed session.
type FinishResponse struct {
	RubricID string                 `json:"rubric_id"`
	Results  []models.GradedStudent `json:"results"`
}
