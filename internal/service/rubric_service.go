package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/gorm"

	"github.com/rubrix-app/rubrix-api/internal/auth"
	"github.com/rubrix-app/rubrix-api/internal/dto"
	"github.com/rubrix-app/rubrix-api/internal/models"
	"github.com/rubrix-app/rubrix-api/internal/repository"
)

// ErrRubricNotFound indicates the rubric was not located.
var ErrRubricNotFound = errors.New("rubric not found")

// ErrInvalidRubric indicates the rubric definition violates a structural rule.
var ErrInvalidRubric = errors.New("invalid rubric definition")

// rubricSchema guards imported rubric payloads beyond struct validation:
// identifier shapes, column point types, threshold ranges.
const rubricSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "type", "grading_method", "scoring_mode", "rows"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "type": {"enum": ["assignment", "exam"]},
    "grading_method": {"enum": ["standard", "mastery"]},
    "scoring_mode": {"enum": ["discrete", "cumulative"]},
    "columns": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string", "minLength": 1},
          "points": {"type": "number"}
        }
      }
    },
    "rows": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string", "minLength": 1},
          "max_points": {"type": "number", "minimum": 0},
          "calculation_points": {"type": "number", "minimum": 0},
          "min_requirements": {"type": "integer", "minimum": 0}
        }
      }
    },
    "thresholds": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["min", "label"],
        "properties": {
          "min": {"type": "number"},
          "max": {"type": ["number", "null"]},
          "label": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

// RubricService owns rubric template CRUD and definition validation.
type RubricService interface {
	Create(ctx context.Context, payload dto.RubricSaveRequest, owner *auth.User) (models.Rubric, error)
	List(ctx context.Context, owner *auth.User) ([]models.Rubric, error)
	Get(ctx context.Context, id string) (models.Rubric, error)
	Update(ctx context.Context, id string, payload dto.RubricSaveRequest, owner *auth.User) (models.Rubric, error)
	Delete(ctx context.Context, id string) error
}

type rubricService struct {
	repo      repository.RubricRepository
	validator *validator.Validate
	schema    *jsonschema.Schema
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewRubricService constructs the service. The embedded JSON schema is
// compiled once at startup; a broken schema is a programming error.
func NewRubricService(repo repository.RubricRepository, validate *validator.Validate, logger zerolog.Logger) RubricService {
	schema := jsonschema.MustCompileString("rubric.schema.json", rubricSchema)
	return &rubricService{
		repo:      repo,
		validator: validate,
		schema:    schema,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "rubric_service").Logger(),
	}
}

func (s *rubricService) Create(ctx context.Context, payload dto.RubricSaveRequest, owner *auth.User) (models.Rubric, error) {
	rubric, err := s.build(payload)
	if err != nil {
		return models.Rubric{}, err
	}

	rubric.ID = uuid.NewString()
	if owner != nil {
		ownerID := owner.ID
		rubric.OwnerID = &ownerID
	}

	if err := s.repo.Create(ctx, &rubric); err != nil {
		return models.Rubric{}, err
	}

	s.logger.Info().Str("rubric_id", rubric.ID).Str("name", rubric.Name).Msg("rubric created")
	return rubric, nil
}

func (s *rubricService) List(ctx context.Context, owner *auth.User) ([]models.Rubric, error) {
	filter := repository.RubricFilter{}
	if owner != nil {
		ownerID := owner.ID
		filter.OwnerID = &ownerID
	}
	return s.repo.List(ctx, filter)
}

func (s *rubricService) Get(ctx context.Context, id string) (models.Rubric, error) {
	rubric, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Rubric{}, ErrRubricNotFound
		}
		return models.Rubric{}, err
	}
	return rubric, nil
}

func (s *rubricService) Update(ctx context.Context, id string, payload dto.RubricSaveRequest, owner *auth.User) (models.Rubric, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return models.Rubric{}, err
	}

	rubric, err := s.build(payload)
	if err != nil {
		return models.Rubric{}, err
	}

	rubric.ID = existing.ID
	rubric.OwnerID = existing.OwnerID
	rubric.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, &rubric); err != nil {
		return models.Rubric{}, err
	}
	return rubric, nil
}

func (s *rubricService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// build validates the payload (struct tags, JSON schema, structural
// invariants) and assembles the model, assigning identifiers where the
// client omitted them and sanitizing criteria text.
func (s *rubricService) build(payload dto.RubricSaveRequest) (models.Rubric, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Rubric{}, err
	}
	if err := s.validateAgainstSchema(payload); err != nil {
		return models.Rubric{}, err
	}

	rubric := models.Rubric{
		Name:              payload.Name,
		Type:              payload.Type,
		GradingMethod:     payload.GradingMethod,
		ScoringMode:       payload.ScoringMode,
		Thresholds:        payload.Thresholds,
		LearningGoalRules: payload.LearningGoalRules,
		MasteryThresholds: payload.MasteryThresholds,
	}

	rubric.Columns = make([]models.RubricColumn, 0, len(payload.Columns))
	previous := 0.0
	for i, column := range payload.Columns {
		id := column.ID
		if id == "" {
			id = uuid.NewString()
		}
		if payload.ScoringMode == models.ScoringModeCumulative && i > 0 && column.Points < previous {
			return models.Rubric{}, fmt.Errorf("%w: columns must be in ascending point order for cumulative scoring", ErrInvalidRubric)
		}
		previous = column.Points
		rubric.Columns = append(rubric.Columns, models.RubricColumn{ID: id, Name: column.Name, Points: column.Points})
	}

	seen := make(map[string]bool, len(payload.Rows))
	rubric.Rows = make([]models.RubricRow, 0, len(payload.Rows))
	for _, row := range payload.Rows {
		id := row.ID
		if id == "" {
			id = uuid.NewString()
		}
		if seen[id] {
			return models.Rubric{}, fmt.Errorf("%w: duplicate row id %q", ErrInvalidRubric, id)
		}
		seen[id] = true
		rubric.Rows = append(rubric.Rows, models.RubricRow{
			ID:                id,
			Name:              row.Name,
			LearningGoal:      row.LearningGoal,
			MaxPoints:         row.MaxPoints,
			CalculationPoints: row.CalculationPoints,
			IsBonus:           row.IsBonus,
			Routes:            row.Routes,
			Requirements:      row.Requirements,
			MinRequirements:   row.MinRequirements,
		})
	}

	rubric.Criteria = make([]models.Criterion, 0, len(payload.Criteria))
	for _, criterion := range payload.Criteria {
		criterion.Text = s.sanitizer.Sanitize(criterion.Text)
		rubric.Criteria = append(rubric.Criteria, criterion)
	}

	return rubric, nil
}

func (s *rubricService) validateAgainstSchema(payload dto.RubricSaveRequest) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return err
	}

	if err := s.schema.Validate(document); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRubric, err)
	}
	return nil
}
