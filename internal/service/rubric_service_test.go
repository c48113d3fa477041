package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/rubrix-app/rubrix-api/internal/auth"
	"github.com/rubrix-app/rubrix-api/internal/dto"
	"github.com/rubrix-app/rubrix-api/internal/models"
)

func validRubricPayload() dto.RubricSaveRequest {
	return dto.RubricSaveRequest{
		Name:          "Essay Rubric",
		Type:          models.RubricTypeAssignment,
		GradingMethod: models.GradingMethodStandard,
		ScoringMode:   models.ScoringModeDiscrete,
		Columns: []dto.RubricColumnPayload{
			{Name: "Poor", Points: 0},
			{Name: "Good", Points: 5},
		},
		Rows: []dto.RubricRowPayload{
			{Name: "Structure", MaxPoints: 5},
		},
	}
}

func TestRubricCreateAssignsIdentifiers(t *testing.T) {
	repo := newFakeRubricRepo()
	svc := NewRubricService(repo, validator.New(), testLogger())

	created, err := svc.Create(context.Background(), validRubricPayload(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.NotEmpty(t, created.Columns[0].ID)
	require.NotEmpty(t, created.Rows[0].ID)
	require.Nil(t, created.OwnerID)

	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "Essay Rubric", stored.Name)
}

func TestRubricCreateSetsOwner(t *testing.T) {
	svc := NewRubricService(newFakeRubricRepo(), validator.New(), testLogger())

	created, err := svc.Create(context.Background(), validRubricPayload(), &auth.User{ID: 42})
	require.NoError(t, err)
	require.NotNil(t, created.OwnerID)
	require.EqualValues(t, 42, *created.OwnerID)
}

func TestRubricCreateSanitizesCriteria(t *testing.T) {
	svc := NewRubricService(newFakeRubricRepo(), validator.New(), testLogger())

	payload := validRubricPayload()
	payload.Rows[0].ID = "structure"
	payload.Criteria = []models.Criterion{
		{RowID: "structure", ColumnID: "good", Text: `<script>bad()</script><b>Clear</b> paragraphs`},
	}

	created, err := svc.Create(context.Background(), payload, nil)
	require.NoError(t, err)
	require.Equal(t, "<b>Clear</b> paragraphs", created.Criteria[0].Text)
}

func TestRubricCreateRejectsMissingRows(t *testing.T) {
	svc := NewRubricService(newFakeRubricRepo(), validator.New(), testLogger())

	payload := validRubricPayload()
	payload.Rows = nil

	_, err := svc.Create(context.Background(), payload, nil)
	require.Error(t, err)
}

func TestRubricCreateRejectsDescendingCumulativeColumns(t *testing.T) {
	svc := NewRubricService(newFakeRubricRepo(), validator.New(), testLogger())

	payload := validRubricPayload()
	payload.ScoringMode = models.ScoringModeCumulative
	payload.Columns = []dto.RubricColumnPayload{
		{Name: "High", Points: 10},
		{Name: "Low", Points: 2},
	}

	_, err := svc.Create(context.Background(), payload, nil)
	require.ErrorIs(t, err, ErrInvalidRubric)
}

func TestRubricCreateRejectsDuplicateRowIDs(t *testing.T) {
	svc := NewRubricService(newFakeRubricRepo(), validator.New(), testLogger())

	payload := validRubricPayload()
	payload.Rows = []dto.RubricRowPayload{
		{ID: "row", Name: "First"},
		{ID: "row", Name: "Second"},
	}

	_, err := svc.Create(context.Background(), payload, nil)
	require.ErrorIs(t, err, ErrInvalidRubric)
}

func TestRubricUpdatePreservesIdentityAndOwner(t *testing.T) {
	repo := newFakeRubricRepo()
	svc := NewRubricService(repo, validator.New(), testLogger())

	created, err := svc.Create(context.Background(), validRubricPayload(), &auth.User{ID: 9})
	require.NoError(t, err)

	payload := validRubricPayload()
	payload.Name = "Essay Rubric v2"

	updated, err := svc.Update(context.Background(), created.ID, payload, nil)
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)
	require.Equal(t, "Essay Rubric v2", updated.Name)
	require.NotNil(t, updated.OwnerID)
	require.EqualValues(t, 9, *updated.OwnerID)
}

func TestRubricGetNotFound(t *testing.T) {
	svc := NewRubricService(newFakeRubricRepo(), validator.New(), testLogger())

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRubricNotFound)
}

func TestRubricDelete(t *testing.T) {
	repo := newFakeRubricRepo()
	svc := NewRubricService(repo, validator.New(), testLogger())

	created, err := svc.Create(context.Background(), validRubricPayload(), nil)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))

	_, err = svc.Get(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrRubricNotFound)

	require.ErrorIs(t, svc.Delete(context.Background(), created.ID), ErrRubricNotFound)
}

func TestRubricListFiltersByOwner(t *testing.T) {
	repo := newFakeRubricRepo()
	svc := NewRubricService(repo, validator.New(), testLogger())

	_, err := svc.Create(context.Background(), validRubricPayload(), &auth.User{ID: 1})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), validRubricPayload(), &auth.User{ID: 2})
	require.NoError(t, err)

	mine, err := svc.List(context.Background(), &auth.User{ID: 1})
	require.NoError(t, err)
	require.Len(t, mine, 1)
}
