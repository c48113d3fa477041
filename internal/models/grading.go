package models

import "time"

// CellFeedback is remark text attached to one rubric cell for one student.
type CellFeedback struct {
	RowID    string `json:"row_id"`
	ColumnID string `json:"column_id,omitempty"`
	Feedback string `json:"feedback"`
}

// StudentGradingData is the in-progress answer set for one student during a
// bulk grading session. It is created on the first touch of a student name
// and mutated incrementally as each unit is committed.
//
// CalculationCorrect is tri-state: an absent row means "not judged", which
// counts as correct when the calculation bonus is awarded.
type StudentGradingData struct {
	Selections         map[string]string      `json:"selections,omitempty"`
	RowScores          map[string]float64     `json:"row_scores,omitempty"`
	CellFeedback       []CellFeedback         `json:"cell_feedback,omitempty"`
	CalculationCorrect map[string]bool        `json:"calculation_correct,omitempty"`
	NotMadeRows        map[string]bool        `json:"not_made_rows,omitempty"`
	SelectedRoute      string                 `json:"selected_route,omitempty"`
	RubricVersion      string                 `json:"rubric_version,omitempty"`
	ExtraConditionsMet map[string]map[int]bool `json:"extra_conditions_met,omitempty"`
	MetRequirements    map[string][]string    `json:"met_requirements,omitempty"`
}

// NewStudentGradingData returns an empty answer set with all maps allocated.
func NewStudentGradingData() *StudentGradingData {
	return &StudentGradingData{
		Selections:         map[string]string{},
		RowScores:          map[string]float64{},
		CalculationCorrect: map[string]bool{},
		NotMadeRows:        map[string]bool{},
		ExtraConditionsMet: map[string]map[int]bool{},
		MetRequirements:    map[string][]string{},
	}
}

// HasAnswer reports whether the student answered the row: a column has been
// selected or a manual/mastery score is present. Rows marked not-made do not
// count as answered.
func (d *StudentGradingData) HasAnswer(rowID string) bool {
	if d == nil {
		return false
	}
	if d.NotMadeRows[rowID] {
		return false
	}
	if _, ok := d.Selections[rowID]; ok {
		return true
	}
	if _, ok := d.RowScores[rowID]; ok {
		return true
	}
	return len(d.MetRequirements[rowID]) > 0
}

// Clone returns a deep copy so snapshots never alias live session state.
func (d *StudentGradingData) Clone() *StudentGradingData {
	if d == nil {
		return nil
	}
	out := &StudentGradingData{
		SelectedRoute: d.SelectedRoute,
		RubricVersion: d.RubricVersion,
	}
	out.Selections = copyStringMap(d.Selections)
	out.RowScores = copyFloatMap(d.RowScores)
	out.CalculationCorrect = copyBoolMap(d.CalculationCorrect)
	out.NotMadeRows = copyBoolMap(d.NotMadeRows)
	out.CellFeedback = append([]CellFeedback(nil), d.CellFeedback...)
	out.ExtraConditionsMet = make(map[string]map[int]bool, len(d.ExtraConditionsMet))
	for goal, conditions := range d.ExtraConditionsMet {
		inner := make(map[int]bool, len(conditions))
		for idx, met := range conditions {
			inner[idx] = met
		}
		out.ExtraConditionsMet[goal] = inner
	}
	out.MetRequirements = make(map[string][]string, len(d.MetRequirements))
	for rowID, requirements := range d.MetRequirements {
		out.MetRequirements[rowID] = append([]string(nil), requirements...)
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyFloatMap(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyBoolMap(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GradedStudent is the finalized grade for one student. Immutable once
// written except through an explicit re-save matched by normalized name.
type GradedStudent struct {
	ID          string `json:"id"`
	StudentName string `json:"student_name"`
	ClassName   string `json:"class_name,omitempty"`

	StudentGradingData

	FinalRowScores   map[string]float64 `json:"final_row_scores,omitempty"`
	TotalScore       float64            `json:"total_score"`
	Status           string             `json:"status"`
	StatusLabel      string             `json:"status_label"`
	GradedAt         time.Time          `json:"graded_at"`
	IsSelfAssessment bool               `json:"is_self_assessment,omitempty"`
}

// GradingSessionState is the persisted snapshot of an in-progress bulk
// grading workflow. It is created empty when grading starts, updated on
// every committed unit, and deleted once grading finishes or is abandoned.
type GradingSessionState struct {
	RubricID              string                         `json:"rubric_id"`
	Phase                 string                         `json:"phase"`
	CurrentUnitIndex      int                            `json:"current_unit_index"`
	StudentOrder          []string                       `json:"student_order"`
	CurrentStudentIndex   int                            `json:"current_student_index"`
	StudentsData          map[string]*StudentGradingData `json:"students_data"`
	CompletedStudentCount int                            `json:"completed_student_count"`
	Timestamp             time.Time                      `json:"timestamp"`
}

// Empty reports whether there is nothing worth persisting yet: no roster and
// no per-student data.
func (s *GradingSessionState) Empty() bool {
	return s == nil || (len(s.StudentOrder) == 0 && len(s.StudentsData) == 0)
}
