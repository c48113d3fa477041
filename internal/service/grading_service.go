package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/rubrix-app/rubrix-api/internal/auth"
	"github.com/rubrix-app/rubrix-api/internal/dto"
	"github.com/rubrix-app/rubrix-api/internal/models"
	"github.com/rubrix-app/rubrix-api/internal/observability"
	"github.com/rubrix-app/rubrix-api/internal/repository"
	"github.com/rubrix-app/rubrix-api/internal/scoring"
	"github.com/rubrix-app/rubrix-api/internal/session"
	"github.com/rubrix-app/rubrix-api/internal/store"
)

// ErrNoActiveSession indicates no grading session is running for the rubric.
var ErrNoActiveSession = errors.New("no active grading session")

// ErrNoStudents indicates a finish was requested before any student was graded.
var ErrNoStudents = errors.New("no students graded yet")

// EventPublisher pushes grading lifecycle events to interested consumers.
// *nats.Conn satisfies it.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// GradingService orchestrates bulk grading sessions: one state machine per
// evaluator and rubric, autosaved snapshots, and finalization through the
// score calculator, threshold resolver and results store.
type GradingService interface {
	Start(ctx context.Context, rubricID string) (dto.SessionProgressResponse, error)
	Commit(ctx context.Context, rubricID string, payload dto.CommitUnitRequest) (dto.SessionProgressResponse, error)
	CompleteFirstUnit(ctx context.Context, rubricID string) (dto.SessionProgressResponse, error)
	Back(ctx context.Context, rubricID string) (dto.SessionProgressResponse, error)
	ClearNotMade(ctx context.Context, rubricID string, payload dto.ClearNotMadeRequest) (dto.SessionProgressResponse, error)
	Progress(ctx context.Context, rubricID string) (dto.SessionProgressResponse, error)
	Finish(ctx context.Context, rubricID string) (dto.FinishResponse, error)
	Abandon(ctx context.Context, rubricID string) error
}

type activeSession struct {
	machine   *session.Machine
	autosaver *session.Autosaver
}

type gradingService struct {
	rubrics          repository.RubricRepository
	sessions         *store.SessionStore
	results          *store.ResultsStore
	activity         repository.ActivityRepository
	auth             auth.Provider
	validator        *validator.Validate
	events           EventPublisher
	eventSubject     string
	autosaveInterval time.Duration
	sanitizer        *bluemonday.Policy
	logger           zerolog.Logger
	tracer           trace.Tracer
	now              func() time.Time

	mu     sync.Mutex
	active map[string]*activeSession
}

// NewGradingService constructs the orchestrator. The event publisher and
// activity repository may be nil; both are best-effort side channels.
func NewGradingService(
	rubrics repository.RubricRepository,
	sessions *store.SessionStore,
	results *store.ResultsStore,
	activity repository.ActivityRepository,
	authProvider auth.Provider,
	validate *validator.Validate,
	events EventPublisher,
	eventSubject string,
	autosaveInterval time.Duration,
	logger zerolog.Logger,
) GradingService {
	return &gradingService{
		rubrics:          rubrics,
		sessions:         sessions,
		results:          results,
		activity:         activity,
		auth:             authProvider,
		validator:        validate,
		events:           events,
		eventSubject:     eventSubject,
		autosaveInterval: autosaveInterval,
		sanitizer:        bluemonday.StrictPolicy(),
		logger:           logger.With().Str("component", "grading_service").Logger(),
		tracer:           otel.Tracer("github.com/rubrix-app/rubrix-api/internal/service/grading"),
		now:              time.Now,
	}
}

// sessionKey scopes active sessions per evaluator: guests share the
// anonymous scope, authenticated users each get their own.
func (s *gradingService) sessionKey(ctx context.Context, rubricID string) string {
	if user := s.auth.CurrentUser(ctx); user != nil {
		return fmt.Sprintf("%d|%s", user.ID, rubricID)
	}
	return "guest|" + rubricID
}

func (s *gradingService) lookup(ctx context.Context, rubricID string) (*activeSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active, ok := s.active[s.sessionKey(ctx, rubricID)]
	return active, ok
}

func (s *gradingService) Start(ctx context.Context, rubricID string) (dto.SessionProgressResponse, error) {
	rubric, err := s.loadRubric(ctx, rubricID)
	if err != nil {
		return dto.SessionProgressResponse{}, err
	}

	if active, ok := s.lookup(ctx, rubricID); ok {
		active.autosaver.Bind(ctx)
		return dto.SessionProgressResponse{
			Resumed:       true,
			Progress:      active.machine.Progress(),
			ProgressSaved: true,
		}, nil
	}

	warning := ""
	var snapshot *models.GradingSessionState
	snapshot, err = s.sessions.Fetch(ctx, rubricID)
	if err != nil {
		if !errors.Is(err, store.ErrPrivacyKeyMissing) {
			return dto.SessionProgressResponse{}, err
		}
		warning = "privacy key missing: progress is not being saved"
	}

	machine := session.Restore(&rubric, snapshot)
	autosaver := session.NewAutosaver(machine, s.sessions, s.autosaveInterval, s.logger)
	autosaver.Bind(ctx)
	autosaver.Start()

	s.mu.Lock()
	if s.active == nil {
		s.active = map[string]*activeSession{}
	}
	s.active[s.sessionKey(ctx, rubricID)] = &activeSession{machine: machine, autosaver: autosaver}
	s.mu.Unlock()

	return dto.SessionProgressResponse{
		Resumed:       snapshot != nil,
		Progress:      machine.Progress(),
		ProgressSaved: warning == "",
		Warning:       warning,
	}, nil
}

func (s *gradingService) Commit(ctx context.Context, rubricID string, payload dto.CommitUnitRequest) (dto.SessionProgressResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionProgressResponse{}, err
	}

	active, ok := s.lookup(ctx, rubricID)
	if !ok {
		return dto.SessionProgressResponse{}, ErrNoActiveSession
	}

	input := session.CommitInput{
		StudentName:        payload.StudentName,
		Selections:         payload.Selections,
		Scores:             payload.Scores,
		Results:            payload.Results,
		Feedback:           s.sanitizeFeedback(payload.Feedback),
		CalculationCorrect: payload.CalculationCorrect,
		MetRequirements:    payload.MetRequirements,
		ConditionsMet:      payload.ConditionsMet,
		SelectedRoute:      payload.SelectedRoute,
		RubricVersion:      payload.RubricVersion,
		NotMade:            payload.NotMade,
	}

	if err := active.machine.Commit(input); err != nil {
		return dto.SessionProgressResponse{}, err
	}
	observability.GradingCommits().Inc()

	// A committed unit forces an immediate save, independent of the timer.
	active.autosaver.Bind(ctx)
	warning := ""
	if err := active.autosaver.Flush(ctx); err != nil {
		if errors.Is(err, store.ErrPrivacyKeyMissing) {
			warning = "privacy key missing: progress is not being saved"
		} else {
			s.logger.Warn().Err(err).Str("rubric_id", rubricID).Msg("forced session save failed")
			warning = "progress could not be saved"
		}
	}

	return dto.SessionProgressResponse{
		Progress:      active.machine.Progress(),
		ProgressSaved: warning == "",
		Warning:       warning,
	}, nil
}

func (s *gradingService) sanitizeFeedback(feedback map[string]string) map[string]string {
	if len(feedback) == 0 {
		return feedback
	}
	cleaned := make(map[string]string, len(feedback))
	for rowID, text := range feedback {
		cleaned[rowID] = strings.TrimSpace(s.sanitizer.Sanitize(text))
	}
	return cleaned
}

func (s *gradingService) CompleteFirstUnit(ctx context.Context, rubricID string) (dto.SessionProgressResponse, error) {
	active, ok := s.lookup(ctx, rubricID)
	if !ok {
		return dto.SessionProgressResponse{}, ErrNoActiveSession
	}

	if err := active.machine.CompleteFirstUnit(); err != nil {
		return dto.SessionProgressResponse{}, err
	}

	active.autosaver.Bind(ctx)
	warning := ""
	if err := active.autosaver.Flush(ctx); err != nil {
		if errors.Is(err, store.ErrPrivacyKeyMissing) {
			warning = "privacy key missing: progress is not being saved"
		} else {
			warning = "progress could not be saved"
		}
	}

	return dto.SessionProgressResponse{
		Progress:      active.machine.Progress(),
		ProgressSaved: warning == "",
		Warning:       warning,
	}, nil
}

func (s *gradingService) Back(ctx context.Context, rubricID string) (dto.SessionProgressResponse, error) {
	active, ok := s.lookup(ctx, rubricID)
	if !ok {
		return dto.SessionProgressResponse{}, ErrNoActiveSession
	}

	active.machine.Back()
	active.autosaver.Bind(ctx)
	return dto.SessionProgressResponse{Progress: active.machine.Progress(), ProgressSaved: true}, nil
}

func (s *gradingService) ClearNotMade(ctx context.Context, rubricID string, payload dto.ClearNotMadeRequest) (dto.SessionProgressResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionProgressResponse{}, err
	}

	active, ok := s.lookup(ctx, rubricID)
	if !ok {
		return dto.SessionProgressResponse{}, ErrNoActiveSession
	}

	active.machine.ClearNotMade(payload.StudentName)
	active.autosaver.Bind(ctx)
	return dto.SessionProgressResponse{Progress: active.machine.Progress(), ProgressSaved: true}, nil
}

func (s *gradingService) Progress(ctx context.Context, rubricID string) (dto.SessionProgressResponse, error) {
	active, ok := s.lookup(ctx, rubricID)
	if !ok {
		return dto.SessionProgressResponse{}, ErrNoActiveSession
	}
	return dto.SessionProgressResponse{Progress: active.machine.Progress(), ProgressSaved: true}, nil
}

// Finish finalizes every rostered student: compute scores, resolve status,
// upsert into the results store, then clear the session.
func (s *gradingService) Finish(ctx context.Context, rubricID string) (dto.FinishResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.finish")
	span.SetAttributes(attribute.String("grading.rubric_id", rubricID))
	defer span.End()

	rubric, err := s.loadRubric(ctx, rubricID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rubric_lookup_failed")
		return dto.FinishResponse{}, err
	}

	active, ok := s.lookup(ctx, rubricID)
	if !ok {
		return dto.FinishResponse{}, ErrNoActiveSession
	}

	roster := active.machine.Roster()
	if len(roster) == 0 {
		return dto.FinishResponse{}, ErrNoStudents
	}

	gradedAt := s.now()
	finalized := make([]models.GradedStudent, 0, len(roster))
	for _, name := range roster {
		data := active.machine.StudentData(name)
		if data == nil {
			data = models.NewStudentGradingData()
		}

		graded := s.finalize(&rubric, name, data, gradedAt)
		saved, err := s.results.Save(ctx, rubricID, graded)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "result_save_failed")
			return dto.FinishResponse{}, err
		}
		finalized = append(finalized, saved)
	}

	if err := s.sessions.Clear(ctx, rubricID); err != nil {
		s.logger.Warn().Err(err).Str("rubric_id", rubricID).Msg("failed to clear finished session")
	}

	active.autosaver.Stop()
	s.mu.Lock()
	delete(s.active, s.sessionKey(ctx, rubricID))
	s.mu.Unlock()

	s.recordActivity(ctx, "grading.completed", rubricID, map[string]interface{}{
		"student_count": len(finalized),
	})
	s.publishCompleted(rubricID, rubric.Name, len(finalized), gradedAt)

	span.SetAttributes(attribute.Int("grading.student_count", len(finalized)))
	return dto.FinishResponse{RubricID: rubricID, Results: finalized}, nil
}

// finalize turns one student's in-progress data into a GradedStudent.
func (s *gradingService) finalize(rubric *models.Rubric, name string, data *models.StudentGradingData, gradedAt time.Time) models.GradedStudent {
	result := scoring.Calculate(rubric, data)

	graded := models.GradedStudent{
		StudentName:        name,
		StudentGradingData: *data,
		FinalRowScores:     result.RowScores,
		TotalScore:         result.Total,
		GradedAt:           gradedAt,
	}

	if rubric.GradingMethod == models.GradingMethodMastery {
		outcomes := scoring.EvaluateMastery(rubric, data, result.RowScores)
		graded.Status, graded.StatusLabel = scoring.SummarizeMastery(outcomes)
		return graded
	}

	thresholds := scoring.ThresholdsFor(rubric, data)
	resolved := scoring.Resolve(thresholds, result.Total, scoring.HasLowestColumnSelected(rubric, data))
	if resolved != nil {
		graded.Status = resolved.Status
		graded.StatusLabel = resolved.Label
	}
	return graded
}

func (s *gradingService) Abandon(ctx context.Context, rubricID string) error {
	if active, ok := s.lookup(ctx, rubricID); ok {
		active.autosaver.Stop()
		s.mu.Lock()
		delete(s.active, s.sessionKey(ctx, rubricID))
		s.mu.Unlock()
	}
	return s.sessions.Clear(ctx, rubricID)
}

func (s *gradingService) loadRubric(ctx context.Context, rubricID string) (models.Rubric, error) {
	rubric, err := s.rubrics.GetByID(ctx, rubricID)
	if err != nil {
		return models.Rubric{}, ErrRubricNotFound
	}
	return rubric, nil
}

func (s *gradingService) recordActivity(ctx context.Context, action, rubricID string, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	var actorID uint
	if user := s.auth.CurrentUser(ctx); user != nil {
		actorID = user.ID
	}
	entry := models.GradingActivity{
		ActorID:  actorID,
		Action:   action,
		RubricID: rubricID,
		Metadata: datatypes.JSONMap(metadata),
	}
	if err := s.activity.Create(ctx, &entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record grading activity")
	}
}

func (s *gradingService) publishCompleted(rubricID, rubricName string, studentCount int, completedAt time.Time) {
	if s.events == nil || s.eventSubject == "" {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"rubric_id":     rubricID,
		"rubric_name":   rubricName,
		"student_count": studentCount,
		"completed_at":  completedAt.UTC(),
	})
	if err != nil {
		return
	}
	if err := s.events.Publish(s.eventSubject, payload); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish grading event")
	}
}
