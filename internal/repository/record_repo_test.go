package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rubrix-app/rubrix-api/internal/models"
)

func setupRecordTestDB(t *testing.T, schemas ...interface{}) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(schemas...))
	return db
}

func boolPtr(v bool) *bool { return &v }
func uintPtr(v uint) *uint { return &v }

func TestResultRecordRepositoryListFilters(t *testing.T) {
	db := setupRecordTestDB(t, &models.ResultRecord{})
	repo := NewResultRecordRepository(db)
	ctx := context.Background()

	teacher := models.ResultRecord{ID: "rec-1", RubricID: "rub-1", UserID: 7, StudentName: "cipher-a", Data: "cipher-b"}
	self := models.ResultRecord{ID: "rec-2", RubricID: "rub-1", StudentName: "Jan", Data: "{}", IsSelfAssessment: true}
	other := models.ResultRecord{ID: "rec-3", RubricID: "rub-2", UserID: 7, StudentName: "cipher-c", Data: "cipher-d"}

	require.NoError(t, repo.Create(ctx, &teacher))
	require.NoError(t, repo.Create(ctx, &self))
	require.NoError(t, repo.Create(ctx, &other))

	records, err := repo.List(ctx, ResultRecordFilter{RubricID: "rub-1"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, err = repo.List(ctx, ResultRecordFilter{RubricID: "rub-1", UserID: uintPtr(7), IsSelfAssessment: boolPtr(false)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "rec-1", records[0].ID)

	records, err = repo.List(ctx, ResultRecordFilter{RubricID: "rub-1", IsSelfAssessment: boolPtr(true)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "rec-2", records[0].ID)
}

func TestResultRecordRepositoryUpdatePreservesID(t *testing.T) {
	db := setupRecordTestDB(t, &models.ResultRecord{})
	repo := NewResultRecordRepository(db)
	ctx := context.Background()

	record := models.ResultRecord{ID: "rec-1", RubricID: "rub-1", UserID: 7, Data: "v1"}
	require.NoError(t, repo.Create(ctx, &record))

	record.Data = "v2"
	require.NoError(t, repo.Update(ctx, &record))

	records, err := repo.List(ctx, ResultRecordFilter{RubricID: "rub-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "v2", records[0].Data)
}

func TestSessionRecordRepositoryUpsertAndDelete(t *testing.T) {
	db := setupRecordTestDB(t, &models.SessionRecord{})
	repo := NewSessionRecordRepository(db)
	ctx := context.Background()

	_, err := repo.Get(ctx, "rub-1", 7)
	require.ErrorIs(t, err, ErrSessionRecordNotFound)

	require.NoError(t, repo.Upsert(ctx, &models.SessionRecord{RubricID: "rub-1", UserID: 7, Data: "snapshot-1"}))
	require.NoError(t, repo.Upsert(ctx, &models.SessionRecord{RubricID: "rub-1", UserID: 7, Data: "snapshot-2"}))

	record, err := repo.Get(ctx, "rub-1", 7)
	require.NoError(t, err)
	require.Equal(t, "snapshot-2", record.Data, "second upsert replaces the snapshot in place")

	var count int64
	require.NoError(t, db.Model(&models.SessionRecord{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	require.NoError(t, repo.Delete(ctx, "rub-1", 7))
	_, err = repo.Get(ctx, "rub-1", 7)
	require.ErrorIs(t, err, ErrSessionRecordNotFound)
}

func TestRubricRepositoryRoundTrip(t *testing.T) {
	db := setupRecordTestDB(t, &models.Rubric{})
	repo := NewRubricRepository(db)
	ctx := context.Background()

	rubric := models.Rubric{
		ID:            "rub-1",
		Name:          "Essay",
		Type:          models.RubricTypeAssignment,
		GradingMethod: models.GradingMethodStandard,
		ScoringMode:   models.ScoringModeDiscrete,
		Columns: []models.RubricColumn{
			{ID: "c1", Name: "Poor", Points: 0},
			{ID: "c2", Name: "Good", Points: 5},
		},
		Rows: []models.RubricRow{{ID: "row1", Name: "Structure", MaxPoints: 5}},
	}
	require.NoError(t, repo.Create(ctx, &rubric))

	loaded, err := repo.GetByID(ctx, "rub-1")
	require.NoError(t, err)
	require.Equal(t, rubric.Name, loaded.Name)
	require.Len(t, loaded.Columns, 2)
	require.Equal(t, 5.0, loaded.Columns[1].Points)

	ownerless, err := repo.List(ctx, RubricFilter{})
	require.NoError(t, err)
	require.Len(t, ownerless, 1)

	require.NoError(t, repo.Delete(ctx, "rub-1"))
	_, err = repo.GetByID(ctx, "rub-1")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
