package dto

import (
	"time"

	"github.com/rubrix-app/rubrix-api/internal/models"
)

// RubricColumnPayload describes one performance level in a rubric payload.
type RubricColumnPayload struct {
	ID     string  `json:"id"`
	Name   string  `json:"name" validate:"required"`
	Points float64 `json:"points"`
}

// RubricRowPayload describes one criterion or exam question.
type RubricRowPayload struct {
	ID                string   `json:"id"`
	Name              string   `json:"name" validate:"required"`
	LearningGoal      string   `json:"learning_goal"`
	MaxPoints         float64  `json:"max_points" validate:"gte=0"`
	CalculationPoints float64  `json:"calculation_points" validate:"gte=0"`
	IsBonus           bool     `json:"is_bonus"`
	Routes            []string `json:"routes"`
	Requirements      []string `json:"requirements"`
	MinRequirements   int      `json:"min_requirements" validate:"gte=0"`
}

// RubricSaveRequest creates or replaces a rubric definition.
type RubricSaveRequest struct {
	Name              string                                `json:"name" validate:"required,min=1,max=255"`
	Type              models.RubricType                     `json:"type" validate:"required,oneof=assignment exam"`
	GradingMethod     models.GradingMethod                  `json:"grading_method" validate:"required,oneof=standard mastery"`
	ScoringMode       models.ScoringMode                    `json:"scoring_mode" validate:"required,oneof=discrete cumulative"`
	Columns           []RubricColumnPayload                 `json:"columns" validate:"dive"`
	Rows              []RubricRowPayload                    `json:"rows" validate:"required,min=1,dive"`
	Criteria          []models.Criterion                    `json:"criteria"`
	Thresholds        []models.Threshold                    `json:"thresholds"`
	LearningGoalRules map[string]models.LearningGoalRule    `json:"learning_goal_rules"`
	MasteryThresholds map[string]models.MasteryScale        `json:"mastery_thresholds"`
}

// RubricResponse is returned to API clients when viewing rubrics.
type RubricResponse struct {
	ID                string                             `json:"id"`
	Name              string                             `json:"name"`
	Type              models.RubricType                  `json:"type"`
	GradingMethod     models.GradingMethod               `json:"grading_method"`
	ScoringMode       models.ScoringMode                 `json:"scoring_mode"`
	Columns           []models.RubricColumn              `json:"columns"`
	Rows              []models.RubricRow                 `json:"rows"`
	Criteria          []models.Criterion                 `json:"criteria,omitempty"`
	Thresholds        []models.Threshold                 `json:"thresholds,omitempty"`
	LearningGoalRules map[string]models.LearningGoalRule `json:"learning_goal_rules,omitempty"`
	MasteryThresholds map[string]models.MasteryScale     `json:"mastery_thresholds,omitempty"`
	CreatedAt         time.Time                          `json:"created_at"`
	UpdatedAt         time.Time                          `json:"updated_at"`
}

// NewRubricResponse maps the model onto the response shape.
func NewRubricResponse(rubric models.Rubric) RubricResponse {
	return RubricResponse{
		ID:                rubric.ID,
		Name:              rubric.Name,
		Type:              rubric.Type,
		GradingMethod:     rubric.GradingMethod,
		ScoringMode:       rubric.ScoringMode,
		Columns:           rubric.Columns,
		Rows:              rubric.Rows,
		Criteria:          rubric.Criteria,
		Thresholds:        rubric.Thresholds,
		LearningGoalRules: rubric.LearningGoalRules,
		MasteryThresholds: rubric.MasteryThresholds,
		CreatedAt:         rubric.CreatedAt,
		UpdatedAt:         rubric.UpdatedAt,
	}
}
