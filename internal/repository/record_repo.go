package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rubrix-app/rubrix-api/internal/models"
)

// ResultRecordFilter narrows result record queries.
type ResultRecordFilter struct {
	RubricID         string
	UserID           *uint
	IsSelfAssessment *bool
}

// ResultRecordRepository is the generic CRUD surface over finalized grade
// rows in the remote record store.
type ResultRecordRepository interface {
	List(ctx context.Context, filter ResultRecordFilter) ([]models.ResultRecord, error)
	Create(ctx context.Context, record *models.ResultRecord) error
	Update(ctx context.Context, record *models.ResultRecord) error
	Delete(ctx context.Context, id string) error
}

type resultRecordRepository struct {
	db *gorm.DB
}

// NewResultRecordRepository instantiates the repository.
func NewResultRecordRepository(db *gorm.DB) ResultRecordRepository {
	return &resultRecordRepository{db: db}
}

func (r *resultRecordRepository) List(ctx context.Context, filter ResultRecordFilter) ([]models.ResultRecord, error) {
	query := r.db.WithContext(ctx).Model(&models.ResultRecord{}).
		Where("rubric_id = ?", filter.RubricID)

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.IsSelfAssessment != nil {
		query = query.Where("is_self_assessment = ?", *filter.IsSelfAssessment)
	}

	var records []models.ResultRecord
	if err := query.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r *resultRecordRepository) Create(ctx context.Context, record *models.ResultRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *resultRecordRepository) Update(ctx context.Context, record *models.ResultRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *resultRecordRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.ResultRecord{}, "id = ?", id).Error
}

// SessionRecordRepository stores one session snapshot per rubric and user.
type SessionRecordRepository interface {
	Get(ctx context.Context, rubricID string, userID uint) (models.SessionRecord, error)
	Upsert(ctx context.Context, record *models.SessionRecord) error
	Delete(ctx context.Context, rubricID string, userID uint) error
}

// ErrSessionRecordNotFound indicates no snapshot exists for the rubric/user pair.
var ErrSessionRecordNotFound = errors.New("session record not found")

type sessionRecordRepository struct {
	db *gorm.DB
}

// NewSessionRecordRepository instantiates the repository.
func NewSessionRecordRepository(db *gorm.DB) SessionRecordRepository {
	return &sessionRecordRepository{db: db}
}

func (r *sessionRecordRepository) Get(ctx context.Context, rubricID string, userID uint) (models.SessionRecord, error) {
	var record models.SessionRecord
	err := r.db.WithContext(ctx).
		Where("rubric_id = ? AND user_id = ?", rubricID, userID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SessionRecord{}, ErrSessionRecordNotFound
		}
		return models.SessionRecord{}, err
	}

	return record, nil
}

func (r *sessionRecordRepository) Upsert(ctx context.Context, record *models.SessionRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "rubric_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(record).Error
}

func (r *sessionRecordRepository) Delete(ctx context.Context, rubricID string, userID uint) error {
	return r.db.WithContext(ctx).
		Where("rubric_id = ? AND user_id = ?", rubricID, userID).
		Delete(&models.SessionRecord{}).Error
}

// ActivityRepository records auditable grading events.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.GradingActivity) error
}

type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository instantiates the repository.
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, activity *models.GradingActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}
