package dto

import "github.com/rubrix-app/rubrix-api/internal/models"

// ResultsResponse lists the stored grades for a rubric.
type ResultsResponse struct {
	RubricID string                 `json:"rubric_id"`
	Results  []models.GradedStudent `json:"results"`
}

// ResultSaveRequest re-saves one finalized grade, matched by normalized
// student name.
type ResultSaveRequest struct {
	StudentName string                    `json:"student_name" validate:"required,min=1,max=255"`
	ClassName   string                    `json:"class_name"`
	Data        models.StudentGradingData `json:"data"`
}

// SelfAssessmentRequest is a student-submitted answer set for a rubric.
type SelfAssessmentRequest struct {
	StudentName string                    `json:"student_name" validate:"required,min=1,max=255"`
	ClassName   string                    `json:"class_name"`
	Data        models.StudentGradingData `json:"data"`
}
