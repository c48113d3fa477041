package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/rubrix-app/rubrix-api/internal/models"
)

// RubricFilter narrows rubric queries.
type RubricFilter struct {
	OwnerID *uint
	Type    *models.RubricType
}

// RubricRepository defines data operations for rubric templates.
type RubricRepository interface {
	List(ctx context.Context, filter RubricFilter) ([]models.Rubric, error)
	GetByID(ctx context.Context, id string) (models.Rubric, error)
	Create(ctx context.Context, rubric *models.Rubric) error
	Update(ctx context.Context, rubric *models.Rubric) error
	Delete(ctx context.Context, id string) error
}

type rubricRepository struct {
	db *gorm.DB
}

// NewRubricRepository instantiates the repository.
func NewRubricRepository(db *gorm.DB) RubricRepository {
	return &rubricRepository{db: db}
}

func (r *rubricRepository) List(ctx context.Context, filter RubricFilter) ([]models.Rubric, error) {
	query := r.db.WithContext(ctx).Model(&models.Rubric{})

	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}

	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}

	var rubrics []models.Rubric
	if err := query.Order("updated_at DESC").Find(&rubrics).Error; err != nil {
		return nil, err
	}

	return rubrics, nil
}

func (r *rubricRepository) GetByID(ctx context.Context, id string) (models.Rubric, error) {
	var rubric models.Rubric
	if err := r.db.WithContext(ctx).First(&rubric, "id = ?", id).Error; err != nil {
		return models.Rubric{}, err
	}

	return rubric, nil
}

func (r *rubricRepository) Create(ctx context.Context, rubric *models.Rubric) error {
	return r.db.WithContext(ctx).Create(rubric).Error
}

func (r *rubricRepository) Update(ctx context.Context, rubric *models.Rubric) error {
	return r.db.WithContext(ctx).Save(rubric).Error
}

func (r *rubricRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Rubric{}, "id = ?", id).Error
}
