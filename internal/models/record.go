package models

import (
	"time"

	"gorm.io/datatypes"
)

// ResultRecord is one finalized grade row in the remote record store. For
// authenticated users StudentName and Data hold independently encrypted
// ciphertext; self-assessment rows are submitted by students without a
// privacy key and stay plaintext JSON.
type ResultRecord struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	RubricID         string    `gorm:"size:36;index;not null" json:"rubric_id"`
	UserID           uint      `gorm:"index" json:"user_id"`
	StudentName      string    `gorm:"type:text" json:"student_name"`
	Data             string    `gorm:"type:text" json:"data"`
	IsSelfAssessment bool      `gorm:"not null;default:false" json:"is_self_assessment"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SessionRecord is the remote snapshot of one in-progress grading session.
// Data is ciphertext; one row exists per rubric and user.
type SessionRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RubricID  string    `gorm:"size:36;index:idx_session_rubric_user,unique;not null" json:"rubric_id"`
	UserID    uint      `gorm:"index:idx_session_rubric_user,unique" json:"user_id"`
	Data      string    `gorm:"type:text" json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GradingActivity captures auditable grading events such as session
// completion and result re-saves.
type GradingActivity struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	ActorID   uint              `gorm:"index" json:"actor_id"`
	Action    string            `gorm:"size:64;not null" json:"action"`
	RubricID  string            `gorm:"size:36;index" json:"rubric_id"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}
