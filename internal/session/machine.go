// Package session implements the bulk-grading workflow: sequencing students
// across rubric units, validating committed input, and snapshotting progress
// for pause/resume.
package session

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rubrix-app/rubrix-api/internal/models"
)

// Phase names the machine's workflow state.
type Phase string

const (
	// PhaseNamingFirstUnit collects the ordered student roster while the
	// first rubric unit is being graded.
	PhaseNamingFirstUnit Phase = "naming_first_unit"
	// PhaseGradingUnit iterates the frozen roster for the current unit.
	PhaseGradingUnit Phase = "grading_unit"
	// PhaseCompleted marks the last unit of the last student as graded.
	PhaseCompleted Phase = "completed"
)

var (
	// ErrCannotProceed indicates the commit guard rejected the input: the
	// student name is empty and nothing was answered or marked not-made.
	ErrCannotProceed = errors.New("cannot proceed: missing student name or answer")
	// ErrSessionCompleted indicates the workflow has already finished.
	ErrSessionCompleted = errors.New("grading session already completed")
	// ErrRosterEmpty indicates the first unit cannot close without students.
	ErrRosterEmpty = errors.New("no students named yet")
)

// Unit is the smallest thing graded in one step: one row for standard and
// exam rubrics, one learning-goal group of rows for mastery rubrics.
type Unit struct {
	LearningGoal string             `json:"learning_goal,omitempty"`
	Rows         []models.RubricRow `json:"rows"`
}

// AppliesToRoute reports whether any of the unit's rows belong to the route.
func (u Unit) AppliesToRoute(route string) bool {
	for _, row := range u.Rows {
		if row.AppliesToRoute(route) {
			return true
		}
	}
	return false
}

// UnitsFor derives the grading units from the rubric.
func UnitsFor(rubric *models.Rubric) []Unit {
	if rubric == nil {
		return nil
	}
	if rubric.GradingMethod == models.GradingMethodMastery {
		goals := rubric.LearningGoals()
		units := make([]Unit, 0, len(goals))
		for _, goal := range goals {
			units = append(units, Unit{LearningGoal: goal, Rows: rubric.RowsForGoal(goal)})
		}
		return units
	}

	units := make([]Unit, 0, len(rubric.Rows))
	for _, row := range rubric.Rows {
		units = append(units, Unit{Rows: []models.RubricRow{row}})
	}
	return units
}

// CommitInput carries one student's answers for the current unit. Maps are
// keyed by row id; only the current unit's rows are expected but stale keys
// are harmless (they score zero downstream).
type CommitInput struct {
	StudentName        string
	Selections         map[string]string
	Scores             map[string]float64
	Results            map[string]bool
	Feedback           map[string]string
	CalculationCorrect map[string]bool
	MetRequirements    map[string][]string
	ConditionsMet      map[int]bool
	SelectedRoute      string
	RubricVersion      string
	NotMade            bool
}

// Machine orchestrates one bulk grading session. All transitions are
// synchronous; in-memory state is the source of truth and persisted
// snapshots trail it. StudentsData is mutated only through Commit and
// ClearNotMade.
type Machine struct {
	mu     sync.Mutex
	rubric *models.Rubric
	units  []Unit

	phase          Phase
	unitIndex      int
	studentIndex   int
	studentOrder   []string
	studentsData   map[string]*models.StudentGradingData
	completedCount int

	dirty atomic.Bool
}

// New starts a fresh session over the rubric.
func New(rubric *models.Rubric) *Machine {
	return &Machine{
		rubric:       rubric,
		units:        UnitsFor(rubric),
		phase:        PhaseNamingFirstUnit,
		studentsData: map[string]*models.StudentGradingData{},
	}
}

// Restore rebuilds a machine from a persisted snapshot so grading continues
// exactly where it left off. Pointer indices are clamped into range in
// case the rubric changed between save and resume.
func Restore(rubric *models.Rubric, state *models.GradingSessionState) *Machine {
	m := New(rubric)
	if state == nil {
		return m
	}

	switch Phase(state.Phase) {
	case PhaseGradingUnit, PhaseCompleted:
		m.phase = Phase(state.Phase)
	default:
		m.phase = PhaseNamingFirstUnit
	}

	m.studentOrder = append([]string(nil), state.StudentOrder...)
	m.completedCount = state.CompletedStudentCount
	m.studentsData = map[string]*models.StudentGradingData{}
	for name, data := range state.StudentsData {
		m.studentsData[name] = data.Clone()
	}

	m.unitIndex = clampIndex(state.CurrentUnitIndex, len(m.units))
	limit := len(m.studentOrder)
	if m.phase == PhaseNamingFirstUnit {
		// The roster is still open; the pointer may sit one past its end.
		limit++
	}
	m.studentIndex = clampIndex(state.CurrentStudentIndex, limit)

	return m
}

func clampIndex(value, length int) int {
	if length == 0 {
		return 0
	}
	if value < 0 {
		return 0
	}
	if value >= length {
		return length - 1
	}
	return value
}

// Snapshot returns a deep copy of the workflow state for persistence.
func (m *Machine) Snapshot() *models.GradingSessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	students := make(map[string]*models.StudentGradingData, len(m.studentsData))
	for name, data := range m.studentsData {
		students[name] = data.Clone()
	}

	return &models.GradingSessionState{
		RubricID:              m.rubric.ID,
		Phase:                 string(m.phase),
		CurrentUnitIndex:      m.unitIndex,
		StudentOrder:          append([]string(nil), m.studentOrder...),
		CurrentStudentIndex:   m.studentIndex,
		StudentsData:          students,
		CompletedStudentCount: m.completedCount,
	}
}

// Phase returns the current workflow phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// CurrentUnit returns the unit being graded.
func (m *Machine) CurrentUnit() (Unit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unitIndex < 0 || m.unitIndex >= len(m.units) {
		return Unit{}, false
	}
	return m.units[m.unitIndex], true
}

// CurrentStudent returns the roster name at the pointer, or empty during
// first-unit naming when the pointer sits on a yet-unnamed student.
func (m *Machine) CurrentStudent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.studentIndex < len(m.studentOrder) {
		return m.studentOrder[m.studentIndex]
	}
	return ""
}

// Roster returns a copy of the ordered student list.
func (m *Machine) Roster() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.studentOrder...)
}

// StudentData returns the answer set collected so far for a student.
func (m *Machine) StudentData(name string) *models.StudentGradingData {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.studentsData[name]; ok {
		return data.Clone()
	}
	return nil
}

// UnitCount returns the number of grading units.
func (m *Machine) UnitCount() int { return len(m.units) }

// ConsumeDirty atomically reads and clears the dirty flag; the autosaver
// only writes when something changed since the last save.
func (m *Machine) ConsumeDirty() bool {
	return m.dirty.CompareAndSwap(true, false)
}

// CanProceed is the commit guard: the student name must be non-empty, and
// the unit must be either marked not-made, answered, or inapplicable to the
// student's route.
func (m *Machine) CanProceed(input CommitInput) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canProceedLocked(input)
}

func (m *Machine) canProceedLocked(input CommitInput) bool {
	if m.phase == PhaseCompleted || m.unitIndex >= len(m.units) {
		return false
	}
	name := strings.TrimSpace(input.StudentName)
	if name == "" {
		return false
	}
	if input.NotMade {
		return true
	}

	unit := m.units[m.unitIndex]

	route := input.SelectedRoute
	if route == "" {
		if data, ok := m.studentsData[name]; ok {
			route = data.SelectedRoute
		}
	}
	if route != "" && !unit.AppliesToRoute(route) {
		// Visually skipped rows still advance without requiring input.
		return true
	}

	for _, row := range unit.Rows {
		if _, ok := input.Selections[row.ID]; ok {
			return true
		}
		if _, ok := input.Scores[row.ID]; ok {
			return true
		}
		if _, ok := input.Results[row.ID]; ok {
			return true
		}
		if len(input.MetRequirements[row.ID]) > 0 {
			return true
		}
	}
	return false
}

// Commit records the current student's answer for the current unit, merges
// it into the student's data, and advances the pointer.
func (m *Machine) Commit(input CommitInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseCompleted {
		return ErrSessionCompleted
	}
	if !m.canProceedLocked(input) {
		return ErrCannotProceed
	}

	name := strings.TrimSpace(input.StudentName)
	data, ok := m.studentsData[name]
	if !ok {
		data = models.NewStudentGradingData()
		m.studentsData[name] = data
	}

	m.merge(data, input)
	m.completedCount++

	if m.phase == PhaseNamingFirstUnit {
		if !m.onRoster(name) {
			m.studentOrder = append(m.studentOrder, name)
		}
		m.studentIndex++
	} else {
		m.advance()
	}

	m.dirty.Store(true)
	return nil
}

func (m *Machine) onRoster(name string) bool {
	for _, existing := range m.studentOrder {
		if existing == name {
			return true
		}
	}
	return false
}

func (m *Machine) merge(data *models.StudentGradingData, input CommitInput) {
	if input.SelectedRoute != "" {
		data.SelectedRoute = input.SelectedRoute
	}
	if input.RubricVersion != "" {
		data.RubricVersion = input.RubricVersion
	}

	unit := m.units[m.unitIndex]

	if input.NotMade {
		for _, row := range unit.Rows {
			data.NotMadeRows[row.ID] = true
			delete(data.Selections, row.ID)
			delete(data.RowScores, row.ID)
		}
		return
	}

	for rowID, columnID := range input.Selections {
		data.Selections[rowID] = columnID
		delete(data.NotMadeRows, rowID)
	}
	for rowID, score := range input.Scores {
		data.RowScores[rowID] = score
		delete(data.NotMadeRows, rowID)
	}
	for rowID, passed := range input.Results {
		if passed {
			data.RowScores[rowID] = 1
		} else {
			data.RowScores[rowID] = 0
		}
		delete(data.NotMadeRows, rowID)
	}
	for rowID, correct := range input.CalculationCorrect {
		data.CalculationCorrect[rowID] = correct
	}
	for rowID, requirements := range input.MetRequirements {
		data.MetRequirements[rowID] = append([]string(nil), requirements...)
	}
	for rowID, text := range input.Feedback {
		m.mergeFeedback(data, rowID, text)
	}
	if len(input.ConditionsMet) > 0 && unit.LearningGoal != "" {
		conditions := data.ExtraConditionsMet[unit.LearningGoal]
		if conditions == nil {
			conditions = map[int]bool{}
			data.ExtraConditionsMet[unit.LearningGoal] = conditions
		}
		for index, met := range input.ConditionsMet {
			conditions[index] = met
		}
	}
}

func (m *Machine) mergeFeedback(data *models.StudentGradingData, rowID, text string) {
	columnID := data.Selections[rowID]
	for i := range data.CellFeedback {
		if data.CellFeedback[i].RowID == rowID {
			if text == "" {
				data.CellFeedback = append(data.CellFeedback[:i], data.CellFeedback[i+1:]...)
			} else {
				data.CellFeedback[i].ColumnID = columnID
				data.CellFeedback[i].Feedback = text
			}
			return
		}
	}
	if text != "" {
		data.CellFeedback = append(data.CellFeedback, models.CellFeedback{RowID: rowID, ColumnID: columnID, Feedback: text})
	}
}

// advance moves the pointer after a committed unit: next student in the
// roster, then next unit, then completion.
func (m *Machine) advance() {
	if m.studentIndex+1 < len(m.studentOrder) {
		m.studentIndex++
		return
	}
	if m.unitIndex+1 < len(m.units) {
		m.unitIndex++
		m.studentIndex = 0
		return
	}
	m.phase = PhaseCompleted
}

// CompleteFirstUnit freezes the roster once every student has been named
// and graded for the first unit, then moves to the second unit (or straight
// to completion for single-unit rubrics).
func (m *Machine) CompleteFirstUnit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseNamingFirstUnit {
		return ErrSessionCompleted
	}
	if len(m.studentOrder) == 0 {
		return ErrRosterEmpty
	}

	if m.unitIndex+1 < len(m.units) {
		m.phase = PhaseGradingUnit
		m.unitIndex++
		m.studentIndex = 0
	} else {
		m.phase = PhaseCompleted
	}

	m.dirty.Store(true)
	return nil
}

// Back moves the pointer to the previous student; at the first student of a
// non-first unit it jumps to the last student of the previous unit, and at
// the very first student of the first unit it is a no-op.
func (m *Machine) Back() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseCompleted {
		return
	}

	if m.studentIndex > 0 {
		m.studentIndex--
		m.dirty.Store(true)
		return
	}
	if m.unitIndex > 0 {
		m.unitIndex--
		if m.unitIndex == 0 {
			m.phase = PhaseNamingFirstUnit
		}
		if len(m.studentOrder) > 0 {
			m.studentIndex = len(m.studentOrder) - 1
		}
		m.dirty.Store(true)
	}
}

// ClearNotMade un-toggles the not-made flag on the current unit for a
// student. The rows' answers were wiped when the flag was set, so the guard
// blocks advancing until a score is entered again.
func (m *Machine) ClearNotMade(studentName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.studentsData[strings.TrimSpace(studentName)]
	if !ok || m.unitIndex >= len(m.units) {
		return
	}
	for _, row := range m.units[m.unitIndex].Rows {
		delete(data.NotMadeRows, row.ID)
	}
	m.dirty.Store(true)
}

// Progress summarises the workflow position for the grading surface.
type Progress struct {
	Phase           Phase    `json:"phase"`
	UnitIndex       int      `json:"unit_index"`
	UnitCount       int      `json:"unit_count"`
	StudentIndex    int      `json:"student_index"`
	StudentOrder    []string `json:"student_order"`
	CompletedUnits  int      `json:"completed_units"`
	CurrentStudent  string   `json:"current_student,omitempty"`
	CurrentUnitName string   `json:"current_unit_name,omitempty"`
}

// Progress reports the current pointer state.
func (m *Machine) Progress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()

	progress := Progress{
		Phase:          m.phase,
		UnitIndex:      m.unitIndex,
		UnitCount:      len(m.units),
		StudentIndex:   m.studentIndex,
		StudentOrder:   append([]string(nil), m.studentOrder...),
		CompletedUnits: m.completedCount,
	}
	if m.studentIndex < len(m.studentOrder) {
		progress.CurrentStudent = m.studentOrder[m.studentIndex]
	}
	if m.unitIndex < len(m.units) {
		unit := m.units[m.unitIndex]
		if unit.LearningGoal != "" {
			progress.CurrentUnitName = unit.LearningGoal
		} else if len(unit.Rows) > 0 {
			progress.CurrentUnitName = unit.Rows[0].Name
		}
	}
	return progress
}
