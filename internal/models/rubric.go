package models

import (
	"time"
)

// RubricType distinguishes level-grid rubrics from exam-style point rubrics.
type RubricType string

const (
	// RubricTypeAssignment grades rows against performance-level columns.
	RubricTypeAssignment RubricType = "assignment"
	// RubricTypeExam grades rows with manually entered point scores.
	RubricTypeExam RubricType = "exam"
)

// GradingMethod selects between point-based and mastery checklist grading.
type GradingMethod string

const (
	GradingMethodStandard GradingMethod = "standard"
	GradingMethodMastery  GradingMethod = "mastery"
)

// ScoringMode controls how a selected column translates into points.
type ScoringMode string

const (
	// ScoringModeDiscrete awards exactly the selected column's points.
	ScoringModeDiscrete ScoringMode = "discrete"
	// ScoringModeCumulative awards the sum of all column points up to and
	// including the selected column.
	ScoringModeCumulative ScoringMode = "cumulative"
)

// RubricColumn is one performance level. Columns are ordered lowest to
// highest point value; cumulative scoring relies on that order.
type RubricColumn struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Points float64 `json:"points"`
}

// RubricRow is one gradable criterion or exam question.
type RubricRow struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	LearningGoal      string   `json:"learning_goal,omitempty"`
	MaxPoints         float64  `json:"max_points"`
	CalculationPoints float64  `json:"calculation_points,omitempty"`
	IsBonus           bool     `json:"is_bonus,omitempty"`
	Routes            []string `json:"routes,omitempty"`
	Requirements      []string `json:"requirements,omitempty"`
	MinRequirements   int      `json:"min_requirements,omitempty"`
}

// AppliesToRoute reports whether the row is part of the given route track.
// Rows without routes apply to every student.
func (r RubricRow) AppliesToRoute(route string) bool {
	if len(r.Routes) == 0 {
		return true
	}
	for _, candidate := range r.Routes {
		if candidate == route {
			return true
		}
	}
	return false
}

// Criterion is the description text for one rubric cell, optionally scoped
// to a rubric version (A/B).
type Criterion struct {
	RowID    string `json:"row_id"`
	ColumnID string `json:"column_id"`
	Version  string `json:"version,omitempty"`
	Text     string `json:"text"`
}

// Threshold maps a score range onto a status label.
type Threshold struct {
	Min              float64  `json:"min"`
	Max              *float64 `json:"max,omitempty"`
	Label            string   `json:"label"`
	Status           string   `json:"status"`
	RequiresNoLowest bool     `json:"requires_no_lowest,omitempty"`
}

// Contains reports whether the score falls inside the threshold's range.
func (t Threshold) Contains(score float64) bool {
	if score < t.Min {
		return false
	}
	return t.Max == nil || score <= *t.Max
}

// LearningGoalRule configures mastery pass/fail evaluation for one goal.
type LearningGoalRule struct {
	Threshold       *int     `json:"threshold,omitempty"`
	ExtraConditions []string `json:"extra_conditions,omitempty"`
	MinConditions   *int     `json:"min_conditions,omitempty"`
}

// MasteryScale holds the per-route point cutoffs used instead of the
// rubric's default thresholds when a student follows that route.
type MasteryScale struct {
	Mastered float64 `json:"mastered"`
	Expert   float64 `json:"expert"`
}

// Rubric is the immutable description of a scoring template. Row and column
// identifiers are unique and stable for the life of the rubric.
type Rubric struct {
	ID                string                      `gorm:"primaryKey;size:36" json:"id"`
	Name              string                      `gorm:"size:255;not null" json:"name"`
	Type              RubricType                  `gorm:"size:32;not null" json:"type"`
	GradingMethod     GradingMethod               `gorm:"size:32;not null" json:"grading_method"`
	ScoringMode       ScoringMode                 `gorm:"size:32;not null" json:"scoring_mode"`
	Columns           []RubricColumn              `gorm:"serializer:json" json:"columns"`
	Rows              []RubricRow                 `gorm:"serializer:json" json:"rows"`
	Criteria          []Criterion                 `gorm:"serializer:json" json:"criteria,omitempty"`
	Thresholds        []Threshold                 `gorm:"serializer:json" json:"thresholds,omitempty"`
	LearningGoalRules map[string]LearningGoalRule `gorm:"serializer:json" json:"learning_goal_rules,omitempty"`
	MasteryThresholds map[string]MasteryScale     `gorm:"serializer:json" json:"mastery_thresholds,omitempty"`
	OwnerID           *uint                       `gorm:"index" json:"owner_id,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

// ColumnIndex returns the position of the column, or -1 when the identifier
// is stale.
func (r *Rubric) ColumnIndex(columnID string) int {
	for i, column := range r.Columns {
		if column.ID == columnID {
			return i
		}
	}
	return -1
}

// RowByID returns the row with the given identifier, or nil.
func (r *Rubric) RowByID(rowID string) *RubricRow {
	for i := range r.Rows {
		if r.Rows[i].ID == rowID {
			return &r.Rows[i]
		}
	}
	return nil
}

// LowestColumnID returns the identifier of the lowest performance level, or
// an empty string for rubrics without columns.
func (r *Rubric) LowestColumnID() string {
	if len(r.Columns) == 0 {
		return ""
	}
	return r.Columns[0].ID
}

// LearningGoals returns the distinct learning goals in row order. Rows
// without a goal are grouped under their own name so every row belongs to
// exactly one mastery unit.
func (r *Rubric) LearningGoals() []string {
	seen := make(map[string]bool, len(r.Rows))
	goals := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		goal := row.LearningGoal
		if goal == "" {
			goal = row.Name
		}
		if !seen[goal] {
			seen[goal] = true
			goals = append(goals, goal)
		}
	}
	return goals
}

// RowsForGoal returns the rows grouped under the given learning goal.
func (r *Rubric) RowsForGoal(goal string) []RubricRow {
	rows := make([]RubricRow, 0, len(r.Rows))
	for _, row := range r.Rows {
		rowGoal := row.LearningGoal
		if rowGoal == "" {
			rowGoal = row.Name
		}
		if rowGoal == goal {
			rows = append(rows, row)
		}
	}
	return rows
}
