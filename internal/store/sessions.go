package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rubrix-app/rubrix-api/internal/auth"
	"github.com/rubrix-app/rubrix-api/internal/models"
	"github.com/rubrix-app/rubrix-api/internal/observability"
	"github.com/rubrix-app/rubrix-api/internal/privacy"
	"github.com/rubrix-app/rubrix-api/internal/repository"
)

func guestSessionKey(rubricID string) string {
	return fmt.Sprintf("rubric-grading-session-%s", rubricID)
}

// SessionStore is the autosave/resume layer for in-progress grading
// sessions, using the same guest/authenticated dual strategy as the results
// store. Persisted snapshots are eventually consistent with in-memory state,
// never the other way around.
type SessionStore struct {
	auth    auth.Provider
	kv      KeyValue
	records repository.SessionRecordRepository
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSessionStore constructs the store.
func NewSessionStore(authProvider auth.Provider, kv KeyValue, records repository.SessionRecordRepository, logger zerolog.Logger) *SessionStore {
	return &SessionStore{
		auth:    authProvider,
		kv:      kv,
		records: records,
		logger:  logger.With().Str("component", "session_store").Logger(),
		now:     time.Now,
	}
}

// Save persists a snapshot. An empty state (no roster, no per-student data)
// is skipped entirely. Authenticated saves require the privacy key; without
// it the save is skipped and ErrPrivacyKeyMissing tells the caller to warn
// the user that progress is not being saved.
func (s *SessionStore) Save(ctx context.Context, state *models.GradingSessionState) error {
	if state.Empty() {
		return nil
	}

	state.Timestamp = s.now()
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	user := s.auth.CurrentUser(ctx)
	if user == nil {
		if err := s.kv.Set(ctx, guestSessionKey(state.RubricID), string(payload)); err != nil {
			return err
		}
		observability.SessionSaves("local").Inc()
		return nil
	}

	key := privacy.KeyFromContext(ctx)
	if key == "" {
		return ErrPrivacyKeyMissing
	}

	encrypted, err := privacy.Encrypt(string(payload), key)
	if err != nil {
		return err
	}

	record := models.SessionRecord{
		RubricID:  state.RubricID,
		UserID:    user.ID,
		Data:      encrypted,
		UpdatedAt: s.now(),
	}
	if err := s.records.Upsert(ctx, &record); err != nil {
		return err
	}
	observability.SessionSaves("remote").Inc()
	return nil
}

// Fetch loads the persisted snapshot for a rubric, or nil when none exists.
// Malformed or undecryptable snapshots are discarded so grading starts
// fresh instead of resuming into a corrupted state.
func (s *SessionStore) Fetch(ctx context.Context, rubricID string) (*models.GradingSessionState, error) {
	user := s.auth.CurrentUser(ctx)
	if user == nil {
		raw, err := s.kv.Get(ctx, guestSessionKey(rubricID))
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return s.parse(rubricID, raw), nil
	}

	key := privacy.KeyFromContext(ctx)
	if key == "" {
		return nil, ErrPrivacyKeyMissing
	}

	record, err := s.records.Get(ctx, rubricID, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	plaintext, err := privacy.Decrypt(record.Data, key)
	if err != nil {
		observability.DecryptFailures().Inc()
		s.logger.Warn().Str("rubric_id", rubricID).Msg("discarding undecryptable session snapshot")
		return nil, nil
	}

	return s.parse(rubricID, plaintext), nil
}

func (s *SessionStore) parse(rubricID, raw string) *models.GradingSessionState {
	var state models.GradingSessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		s.logger.Warn().Err(err).Str("rubric_id", rubricID).Msg("discarding malformed session snapshot")
		return nil
	}
	return &state
}

// Clear removes the persisted snapshot after grading finishes or the
// session is abandoned.
func (s *SessionStore) Clear(ctx context.Context, rubricID string) error {
	user := s.auth.CurrentUser(ctx)
	if user == nil {
		return s.kv.Del(ctx, guestSessionKey(rubricID))
	}
	return s.records.Delete(ctx, rubricID, user.ID)
}
