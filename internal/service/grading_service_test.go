package service

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rubrix-app/rubrix-api/internal/auth"
	"github.com/rubrix-app/rubrix-api/internal/dto"
	"github.com/rubrix-app/rubrix-api/internal/models"
	"github.com/rubrix-app/rubrix-api/internal/repository"
	"github.com/rubrix-app/rubrix-api/internal/store"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type fakeRubricRepo struct {
	rubrics map[string]models.Rubric
}

func newFakeRubricRepo(rubrics ...models.Rubric) *fakeRubricRepo {
	repo := &fakeRubricRepo{rubrics: map[string]models.Rubric{}}
	for _, rubric := range rubrics {
		repo.rubrics[rubric.ID] = rubric
	}
	return repo
}

func (f *fakeRubricRepo) List(_ context.Context, filter repository.RubricFilter) ([]models.Rubric, error) {
	var out []models.Rubric
	for _, rubric := range f.rubrics {
		if filter.OwnerID != nil && (rubric.OwnerID == nil || *rubric.OwnerID != *filter.OwnerID) {
			continue
		}
		out = append(out, rubric)
	}
	return out, nil
}

func (f *fakeRubricRepo) GetByID(_ context.Context, id string) (models.Rubric, error) {
	rubric, ok := f.rubrics[id]
	if !ok {
		return models.Rubric{}, gorm.ErrRecordNotFound
	}
	return rubric, nil
}

func (f *fakeRubricRepo) Create(_ context.Context, rubric *models.Rubric) error {
	f.rubrics[rubric.ID] = *rubric
	return nil
}

func (f *fakeRubricRepo) Update(_ context.Context, rubric *models.Rubric) error {
	f.rubrics[rubric.ID] = *rubric
	return nil
}

func (f *fakeRubricRepo) Delete(_ context.Context, id string) error {
	delete(f.rubrics, id)
	return nil
}

type capturedEvent struct {
	subject string
	data    []byte
}

type fakeEvents struct {
	published []capturedEvent
}

func (f *fakeEvents) Publish(subject string, data []byte) error {
	f.published = append(f.published, capturedEvent{subject: subject, data: data})
	return nil
}

func gradingTestRubric() models.Rubric {
	return models.Rubric{
		ID:            "rubric-1",
		Name:          "Essay Rubric",
		Type:          models.RubricTypeAssignment,
		GradingMethod: models.GradingMethodStandard,
		ScoringMode:   models.ScoringModeDiscrete,
		Columns: []models.RubricColumn{
			{ID: "poor", Name: "Poor", Points: 0},
			{ID: "good", Name: "Good", Points: 5},
			{ID: "excellent", Name: "Excellent", Points: 10},
		},
		Rows: []models.RubricRow{
			{ID: "structure", Name: "Structure", MaxPoints: 10},
			{ID: "argument", Name: "Argument", MaxPoints: 10},
		},
		Thresholds: []models.Threshold{
			{Min: 0, Label: "Insufficient", Status: "insufficient"},
			{Min: 10, Label: "Sufficient", Status: "sufficient"},
		},
	}
}

type gradingHarness struct {
	svc     GradingService
	events  *fakeEvents
	kv      store.KeyValue
	results *store.ResultsStore
}

func newGradingHarness(t *testing.T, rubrics ...models.Rubric) *gradingHarness {
	t.Helper()

	logger := testLogger()
	provider := auth.ContextProvider{}
	kv := store.NewMemoryKeyValue()
	results := store.NewResultsStore(provider, kv, nil, logger)
	sessions := store.NewSessionStore(provider, kv, nil, logger)
	events := &fakeEvents{}

	svc := NewGradingService(
		newFakeRubricRepo(rubrics...),
		sessions,
		results,
		nil,
		provider,
		validator.New(),
		events,
		"grading.completed",
		time.Hour,
		logger,
	)
	return &gradingHarness{svc: svc, events: events, kv: kv, results: results}
}

func TestGradingSessionGuestLifecycle(t *testing.T) {
	h := newGradingHarness(t, gradingTestRubric())
	ctx := context.Background()

	started, err := h.svc.Start(ctx, "rubric-1")
	require.NoError(t, err)
	require.False(t, started.Resumed)
	require.True(t, started.ProgressSaved)
	require.Equal(t, "naming_first_unit", string(started.Progress.Phase))

	// Unit one builds the roster.
	progress, err := h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		StudentName: "Anna",
		Selections:  map[string]string{"structure": "good"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Anna"}, progress.Progress.StudentOrder)

	_, err = h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		StudentName: "Ben",
		Selections:  map[string]string{"structure": "excellent"},
	})
	require.NoError(t, err)

	progress, err = h.svc.CompleteFirstUnit(ctx, "rubric-1")
	require.NoError(t, err)
	require.Equal(t, "grading_unit", string(progress.Progress.Phase))

	_, err = h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		StudentName: "Anna",
		Selections:  map[string]string{"argument": "excellent"},
	})
	require.NoError(t, err)

	progress, err = h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		StudentName: "Ben",
		Selections:  map[string]string{"argument": "poor"},
	})
	require.NoError(t, err)
	require.Equal(t, "completed", string(progress.Progress.Phase))

	finished, err := h.svc.Finish(ctx, "rubric-1")
	require.NoError(t, err)
	require.Len(t, finished.Results, 2)

	byName := map[string]models.GradedStudent{}
	for _, student := range finished.Results {
		byName[student.StudentName] = student
	}
	require.InDelta(t, 15, byName["Anna"].TotalScore, 1e-9)
	require.Equal(t, "sufficient", byName["Anna"].Status)
	require.InDelta(t, 10, byName["Ben"].TotalScore, 1e-9)
	require.Equal(t, "sufficient", byName["Ben"].Status)

	stored, err := h.results.Fetch(ctx, "rubric-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	// The finished session must not resume.
	started, err = h.svc.Start(ctx, "rubric-1")
	require.NoError(t, err)
	require.False(t, started.Resumed)
	require.Equal(t, "naming_first_unit", string(started.Progress.Phase))
}

func TestGradingFinishPublishesEvent(t *testing.T) {
	h := newGradingHarness(t, gradingTestRubric())
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "rubric-1")
	require.NoError(t, err)
	_, err = h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		StudentName: "Anna",
		Selections:  map[string]string{"structure": "good"},
	})
	require.NoError(t, err)
	_, err = h.svc.CompleteFirstUnit(ctx, "rubric-1")
	require.NoError(t, err)
	_, err = h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		StudentName: "Anna",
		Selections:  map[string]string{"argument": "good"},
	})
	require.NoError(t, err)

	_, err = h.svc.Finish(ctx, "rubric-1")
	require.NoError(t, err)

	require.Len(t, h.events.published, 1)
	require.Equal(t, "grading.completed", h.events.published[0].subject)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(h.events.published[0].data, &payload))
	require.Equal(t, "rubric-1", payload["rubric_id"])
	require.EqualValues(t, 1, payload["student_count"])
}

func TestGradingCommitSanitizesFeedback(t *testing.T) {
	h := newGradingHarness(t, gradingTestRubric())
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "rubric-1")
	require.NoError(t, err)

	_, err = h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		StudentName: "Anna",
		Selections:  map[string]string{"structure": "good"},
		Feedback:    map[string]string{"structure": `<script>alert("x")</script>Solid intro`},
	})
	require.NoError(t, err)
	_, err = h.svc.CompleteFirstUnit(ctx, "rubric-1")
	require.NoError(t, err)
	_, err = h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		StudentName: "Anna",
		Selections:  map[string]string{"argument": "good"},
	})
	require.NoError(t, err)

	finished, err := h.svc.Finish(ctx, "rubric-1")
	require.NoError(t, err)
	require.Len(t, finished.Results, 1)
	require.Len(t, finished.Results[0].CellFeedback, 1)
	require.Equal(t, "Solid intro", finished.Results[0].CellFeedback[0].Feedback)
}

func TestGradingResumeAfterRestart(t *testing.T) {
	rubric := gradingTestRubric()
	h := newGradingHarness(t, rubric)
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "rubric-1")
	require.NoError(t, err)
	_, err = h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		StudentName: "Anna",
		Selections:  map[string]string{"structure": "good"},
	})
	require.NoError(t, err)

	// A new service over the same storage stands in for a process restart.
	logger := testLogger()
	provider := auth.ContextProvider{}
	restarted := NewGradingService(
		newFakeRubricRepo(rubric),
		store.NewSessionStore(provider, h.kv, nil, logger),
		store.NewResultsStore(provider, h.kv, nil, logger),
		nil,
		provider,
		validator.New(),
		nil,
		"",
		time.Hour,
		logger,
	)

	resumed, err := restarted.Start(ctx, "rubric-1")
	require.NoError(t, err)
	require.True(t, resumed.Resumed)
	require.Equal(t, []string{"Anna"}, resumed.Progress.StudentOrder)
}

func TestGradingCommitWithoutSession(t *testing.T) {
	h := newGradingHarness(t, gradingTestRubric())

	_, err := h.svc.Commit(context.Background(), "rubric-1", dto.CommitUnitRequest{
		StudentName: "Anna",
		Selections:  map[string]string{"structure": "good"},
	})
	require.ErrorIs(t, err, ErrNoActiveSession)
}

func TestGradingStartUnknownRubric(t *testing.T) {
	h := newGradingHarness(t)

	_, err := h.svc.Start(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRubricNotFound)
}

func TestGradingFinishWithoutStudents(t *testing.T) {
	h := newGradingHarness(t, gradingTestRubric())
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "rubric-1")
	require.NoError(t, err)

	_, err = h.svc.Finish(ctx, "rubric-1")
	require.ErrorIs(t, err, ErrNoStudents)
}

func TestGradingAbandonClearsSession(t *testing.T) {
	h := newGradingHarness(t, gradingTestRubric())
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "rubric-1")
	require.NoError(t, err)
	_, err = h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		StudentName: "Anna",
		Selections:  map[string]string{"structure": "good"},
	})
	require.NoError(t, err)

	require.NoError(t, h.svc.Abandon(ctx, "rubric-1"))

	_, err = h.svc.Progress(ctx, "rubric-1")
	require.ErrorIs(t, err, ErrNoActiveSession)

	started, err := h.svc.Start(ctx, "rubric-1")
	require.NoError(t, err)
	require.False(t, started.Resumed)
}

func TestGradingAuthedWithoutKeyWarns(t *testing.T) {
	h := newGradingHarness(t, gradingTestRubric())
	ctx := auth.ContextWithUser(context.Background(), &auth.User{ID: 7})

	started, err := h.svc.Start(ctx, "rubric-1")
	require.NoError(t, err)
	require.False(t, started.ProgressSaved)
	require.NotEmpty(t, started.Warning)

	progress, err := h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		StudentName: "Anna",
		Selections:  map[string]string{"structure": "good"},
	})
	require.NoError(t, err)
	require.False(t, progress.ProgressSaved)
	require.NotEmpty(t, progress.Warning)
}

func TestGradingValidationErrors(t *testing.T) {
	h := newGradingHarness(t, gradingTestRubric())
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "rubric-1")
	require.NoError(t, err)

	_, err = h.svc.Commit(ctx, "rubric-1", dto.CommitUnitRequest{
		Selections: map[string]string{"structure": "good"},
	})
	require.Error(t, err)
	var verr validator.ValidationErrors
	require.ErrorAs(t, err, &verr)
}
