package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rubrix-app/rubrix-api/internal/auth"
	"github.com/rubrix-app/rubrix-api/internal/models"
	"github.com/rubrix-app/rubrix-api/internal/observability"
	"github.com/rubrix-app/rubrix-api/internal/privacy"
	"github.com/rubrix-app/rubrix-api/internal/repository"
)

// ErrPrivacyKeyMissing indicates an authenticated user issued a cloud
// operation without supplying a privacy key. The operation is skipped; the
// caller warns the user instead of crashing.
var ErrPrivacyKeyMissing = errors.New("privacy key missing")

// NormalizeName canonicalizes a student name for de-duplication: trimmed
// and case-insensitive.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func guestResultsKey(rubricID string) string {
	return fmt.Sprintf("guest_results_%s", rubricID)
}

// ResultsStore is the durable record of finalized per-student grades. The
// storage strategy is picked per operation from the current authentication
// status: guests write plaintext to local device storage, authenticated
// users write independently encrypted name and payload fields to the remote
// record store.
type ResultsStore struct {
	auth    auth.Provider
	kv      KeyValue
	records repository.ResultRecordRepository
	logger  zerolog.Logger
	now     func() time.Time
}

// NewResultsStore constructs the store.
func NewResultsStore(authProvider auth.Provider, kv KeyValue, records repository.ResultRecordRepository, logger zerolog.Logger) *ResultsStore {
	return &ResultsStore{
		auth:    authProvider,
		kv:      kv,
		records: records,
		logger:  logger.With().Str("component", "results_store").Logger(),
		now:     time.Now,
	}
}

type resultsStrategy interface {
	fetch(ctx context.Context, rubricID string) ([]models.GradedStudent, error)
	save(ctx context.Context, rubricID string, student models.GradedStudent) (models.GradedStudent, error)
}

func (s *ResultsStore) strategyFor(ctx context.Context) (resultsStrategy, error) {
	user := s.auth.CurrentUser(ctx)
	if user == nil {
		return &localResults{kv: s.kv, logger: s.logger}, nil
	}

	key := privacy.KeyFromContext(ctx)
	if key == "" {
		return nil, ErrPrivacyKeyMissing
	}

	return &remoteResults{records: s.records, user: user, key: key, logger: s.logger, now: s.now}, nil
}

// Fetch returns the result set for a rubric. Rows that fail to decrypt are
// logged and skipped, never surfaced as a failure.
func (s *ResultsStore) Fetch(ctx context.Context, rubricID string) ([]models.GradedStudent, error) {
	strategy, err := s.strategyFor(ctx)
	if err != nil {
		return nil, err
	}
	return strategy.fetch(ctx, rubricID)
}

// Save upserts one finalized grade, keyed by normalized student name rather
// than client-generated id; a re-save of the same student replaces the
// earlier record in place.
func (s *ResultsStore) Save(ctx context.Context, rubricID string, student models.GradedStudent) (models.GradedStudent, error) {
	strategy, err := s.strategyFor(ctx)
	if err != nil {
		return models.GradedStudent{}, err
	}
	return strategy.save(ctx, rubricID, student)
}

// SubmitSelfAssessment stores a student-submitted result row. Self
// assessments carry no privacy key and stay plaintext; they surface on
// fetch only while no teacher grade exists for the same student name. A
// re-submission under the same normalized name replaces the earlier row.
func (s *ResultsStore) SubmitSelfAssessment(ctx context.Context, rubricID string, student models.GradedStudent) (models.GradedStudent, error) {
	student.IsSelfAssessment = true

	existingID, err := s.findSelfAssessment(ctx, rubricID, student.StudentName)
	if err != nil {
		return models.GradedStudent{}, err
	}
	if existingID != "" {
		student.ID = existingID
	} else if student.ID == "" {
		student.ID = uuid.NewString()
	}

	payload, err := json.Marshal(student)
	if err != nil {
		return models.GradedStudent{}, err
	}

	record := models.ResultRecord{
		ID:               student.ID,
		RubricID:         rubricID,
		StudentName:      strings.TrimSpace(student.StudentName),
		Data:             string(payload),
		IsSelfAssessment: true,
	}
	if existingID != "" {
		err = s.records.Update(ctx, &record)
	} else {
		err = s.records.Create(ctx, &record)
	}
	if err != nil {
		return models.GradedStudent{}, err
	}

	return student, nil
}

// findSelfAssessment returns the id of the rubric's self-assessment record
// matching the normalized student name, or "" when none exists.
func (s *ResultsStore) findSelfAssessment(ctx context.Context, rubricID, studentName string) (string, error) {
	selfOnly := true
	records, err := s.records.List(ctx, repository.ResultRecordFilter{
		RubricID:         rubricID,
		IsSelfAssessment: &selfOnly,
	})
	if err != nil {
		return "", err
	}

	normalized := NormalizeName(studentName)
	for _, record := range records {
		if NormalizeName(record.StudentName) == normalized {
			return record.ID, nil
		}
	}
	return "", nil
}

// localResults keeps guest grades as one plaintext JSON list per rubric in
// local device storage.
type localResults struct {
	kv     KeyValue
	logger zerolog.Logger
}

func (l *localResults) fetch(ctx context.Context, rubricID string) ([]models.GradedStudent, error) {
	raw, err := l.kv.Get(ctx, guestResultsKey(rubricID))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return []models.GradedStudent{}, nil
		}
		return nil, err
	}

	var results []models.GradedStudent
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		l.logger.Warn().Err(err).Str("rubric_id", rubricID).Msg("discarding malformed guest results")
		return []models.GradedStudent{}, nil
	}

	return results, nil
}

func (l *localResults) save(ctx context.Context, rubricID string, student models.GradedStudent) (models.GradedStudent, error) {
	results, err := l.fetch(ctx, rubricID)
	if err != nil {
		return models.GradedStudent{}, err
	}

	normalized := NormalizeName(student.StudentName)
	replaced := false
	for i := range results {
		if NormalizeName(results[i].StudentName) == normalized {
			student.ID = results[i].ID
			results[i] = student
			replaced = true
			break
		}
	}
	if !replaced {
		if student.ID == "" {
			student.ID = uuid.NewString()
		}
		results = append(results, student)
	}

	payload, err := json.Marshal(results)
	if err != nil {
		return models.GradedStudent{}, err
	}
	if err := l.kv.Set(ctx, guestResultsKey(rubricID), string(payload)); err != nil {
		return models.GradedStudent{}, err
	}

	return student, nil
}

// remoteResults stores each grade as one record whose student_name and data
// fields are ciphertext under the evaluator's privacy key.
type remoteResults struct {
	records repository.ResultRecordRepository
	user    *auth.User
	key     string
	logger  zerolog.Logger
	now     func() time.Time
}

func (r *remoteResults) fetch(ctx context.Context, rubricID string) ([]models.GradedStudent, error) {
	teacherOnly := false
	records, err := r.records.List(ctx, repository.ResultRecordFilter{
		RubricID:         rubricID,
		UserID:           &r.user.ID,
		IsSelfAssessment: &teacherOnly,
	})
	if err != nil {
		return nil, err
	}

	results := make([]models.GradedStudent, 0, len(records))
	graded := make(map[string]bool, len(records))
	for _, record := range records {
		student, ok := r.decode(record)
		if !ok {
			continue
		}
		results = append(results, student)
		graded[NormalizeName(student.StudentName)] = true
	}

	// Self-assessments surface only when the teacher has not graded the
	// student yet; teacher input always wins.
	selfOnly := true
	selfRecords, err := r.records.List(ctx, repository.ResultRecordFilter{
		RubricID:         rubricID,
		IsSelfAssessment: &selfOnly,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("rubric_id", rubricID).Msg("failed to load self-assessments")
		return results, nil
	}
	for _, record := range selfRecords {
		var student models.GradedStudent
		if err := json.Unmarshal([]byte(record.Data), &student); err != nil {
			r.logger.Warn().Str("record_id", record.ID).Msg("skipping malformed self-assessment")
			continue
		}
		student.ID = record.ID
		student.IsSelfAssessment = true
		if !graded[NormalizeName(student.StudentName)] {
			results = append(results, student)
		}
	}

	return results, nil
}

func (r *remoteResults) decode(record models.ResultRecord) (models.GradedStudent, bool) {
	name, err := privacy.Decrypt(record.StudentName, r.key)
	if err != nil {
		observability.DecryptFailures().Inc()
		r.logger.Warn().Str("record_id", record.ID).Msg("skipping undecryptable result record")
		return models.GradedStudent{}, false
	}

	data, err := privacy.Decrypt(record.Data, r.key)
	if err != nil {
		observability.DecryptFailures().Inc()
		r.logger.Warn().Str("record_id", record.ID).Msg("skipping undecryptable result record")
		return models.GradedStudent{}, false
	}

	var student models.GradedStudent
	if err := json.Unmarshal([]byte(data), &student); err != nil {
		r.logger.Warn().Str("record_id", record.ID).Msg("skipping malformed result record")
		return models.GradedStudent{}, false
	}

	student.ID = record.ID
	student.StudentName = name
	return student, true
}

func (r *remoteResults) save(ctx context.Context, rubricID string, student models.GradedStudent) (models.GradedStudent, error) {
	teacherOnly := false
	records, err := r.records.List(ctx, repository.ResultRecordFilter{
		RubricID:         rubricID,
		UserID:           &r.user.ID,
		IsSelfAssessment: &teacherOnly,
	})
	if err != nil {
		return models.GradedStudent{}, err
	}

	normalized := NormalizeName(student.StudentName)
	var existing *models.ResultRecord
	for i := range records {
		name, err := privacy.Decrypt(records[i].StudentName, r.key)
		if err != nil {
			continue
		}
		if NormalizeName(name) == normalized {
			existing = &records[i]
			break
		}
	}

	if existing != nil {
		student.ID = existing.ID
	} else if student.ID == "" {
		student.ID = uuid.NewString()
	}

	payload, err := json.Marshal(student)
	if err != nil {
		return models.GradedStudent{}, err
	}

	encryptedName, err := privacy.Encrypt(strings.TrimSpace(student.StudentName), r.key)
	if err != nil {
		return models.GradedStudent{}, err
	}
	encryptedData, err := privacy.Encrypt(string(payload), r.key)
	if err != nil {
		return models.GradedStudent{}, err
	}

	if existing != nil {
		existing.StudentName = encryptedName
		existing.Data = encryptedData
		existing.UpdatedAt = r.now()
		return student, r.records.Update(ctx, existing)
	}

	record := models.ResultRecord{
		ID:          student.ID,
		RubricID:    rubricID,
		UserID:      r.user.ID,
		StudentName: encryptedName,
		Data:        encryptedData,
	}
	return student, r.records.Create(ctx, &record)
}
