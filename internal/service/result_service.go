package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/rubrix-app/rubrix-api/internal/dto"
	"github.com/rubrix-app/rubrix-api/internal/models"
	"github.com/rubrix-app/rubrix-api/internal/repository"
	"github.com/rubrix-app/rubrix-api/internal/scoring"
	"github.com/rubrix-app/rubrix-api/internal/store"
)

// ResultService exposes stored grading results and accepts student
// self-assessments.
type ResultService interface {
	Fetch(ctx context.Context, rubricID string) (dto.ResultsResponse, error)
	Save(ctx context.Context, rubricID string, payload dto.ResultSaveRequest) (models.GradedStudent, error)
	SubmitSelfAssessment(ctx context.Context, rubricID string, payload dto.SelfAssessmentRequest) (models.GradedStudent, error)
}

type resultService struct {
	rubrics   repository.RubricRepository
	results   *store.ResultsStore
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewResultService constructs the result service.
func NewResultService(rubrics repository.RubricRepository, results *store.ResultsStore, validate *validator.Validate, logger zerolog.Logger) ResultService {
	return &resultService{
		rubrics:   rubrics,
		results:   results,
		validator: validate,
		logger:    logger.With().Str("component", "result_service").Logger(),
		now:       time.Now,
	}
}

func (s *resultService) Fetch(ctx context.Context, rubricID string) (dto.ResultsResponse, error) {
	if _, err := s.rubrics.GetByID(ctx, rubricID); err != nil {
		return dto.ResultsResponse{}, ErrRubricNotFound
	}
	students, err := s.results.Fetch(ctx, rubricID)
	if err != nil {
		return dto.ResultsResponse{}, err
	}
	return dto.ResultsResponse{RubricID: rubricID, Results: students}, nil
}

// Save upserts a single edited result, recomputing the score so manual edits
// cannot drift from the rubric's arithmetic.
func (s *resultService) Save(ctx context.Context, rubricID string, payload dto.ResultSaveRequest) (models.GradedStudent, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.GradedStudent{}, err
	}
	rubric, err := s.rubrics.GetByID(ctx, rubricID)
	if err != nil {
		return models.GradedStudent{}, ErrRubricNotFound
	}

	student := s.grade(&rubric, payload.StudentName, payload.ClassName, payload.Data)
	return s.results.Save(ctx, rubricID, student)
}

// SubmitSelfAssessment stores a student's own grading of their work. The
// record is flagged so teacher grades always shadow it on fetch.
func (s *resultService) SubmitSelfAssessment(ctx context.Context, rubricID string, payload dto.SelfAssessmentRequest) (models.GradedStudent, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.GradedStudent{}, err
	}
	rubric, err := s.rubrics.GetByID(ctx, rubricID)
	if err != nil {
		return models.GradedStudent{}, ErrRubricNotFound
	}

	student := s.grade(&rubric, payload.StudentName, payload.ClassName, payload.Data)
	student.IsSelfAssessment = true
	return s.results.SubmitSelfAssessment(ctx, rubricID, student)
}

func (s *resultService) grade(rubric *models.Rubric, name, class string, data models.StudentGradingData) models.GradedStudent {
	result := scoring.Calculate(rubric, &data)

	student := models.GradedStudent{
		StudentName:        name,
		ClassName:          class,
		StudentGradingData: data,
		FinalRowScores:     result.RowScores,
		TotalScore:         result.Total,
		GradedAt:           s.now(),
	}

	if rubric.GradingMethod == models.GradingMethodMastery {
		outcomes := scoring.EvaluateMastery(rubric, &data, result.RowScores)
		student.Status, student.StatusLabel = scoring.SummarizeMastery(outcomes)
		return student
	}

	thresholds := scoring.ThresholdsFor(rubric, &data)
	resolved := scoring.Resolve(thresholds, result.Total, scoring.HasLowestColumnSelected(rubric, &data))
	if resolved != nil {
		student.Status = resolved.Status
		student.StatusLabel = resolved.Label
	}
	return student
}
