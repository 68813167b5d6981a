package rsvp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marismas/boda/backend/internal/telemetry"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")
	errMissingCallback   = errors.New("change callback is required")
	noOpLogger           = zap.NewNop()

	// ErrIncompleteSubmission rejects creating a brand new document that is
	// flagged final but does not pass validation. This is not retriable: the
	// guest has to finish the form first.
	ErrIncompleteSubmission = errors.New("rsvp: cannot submit incomplete response")
)

const (
	opServiceNew = "rsvp.service.new"
	opSave       = "rsvp.save"
	opGet        = "rsvp.get"
	opDelete     = "rsvp.delete"
	opListAll    = "rsvp.list_all"
	opStatistics = "rsvp.statistics"
	opSubscribe  = "rsvp.subscribe"
)

// Generic guest-facing messages. Diagnostic detail goes to the logger and the
// telemetry sink, never to the guest.
var userMessages = map[string]string{
	opSave:       "No se pudo guardar la respuesta. Por favor, inténtalo de nuevo.",
	opGet:        "No se pudo cargar la respuesta. Por favor, inténtalo de nuevo.",
	opDelete:     "No se pudo eliminar la respuesta. Por favor, inténtalo de nuevo.",
	opListAll:    "No se pudieron cargar las respuestas. Por favor, inténtalo de nuevo.",
	opStatistics: "No se pudieron cargar las estadísticas. Por favor, inténtalo de nuevo.",
}

// ServiceError wraps a failed gateway operation with a stable code.
type ServiceError struct {
	code      string
	operation string
	err       error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

// UserMessage returns the generic message safe to show a guest.
func (e *ServiceError) UserMessage() string {
	if message, ok := userMessages[e.operation]; ok {
		return message
	}
	return "Ha ocurrido un error. Por favor, inténtalo de nuevo."
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{
		code:      fmt.Sprintf("%s.%s", operation, reason),
		operation: operation,
		err:       cause,
	}
}

// IsIncompleteSubmission reports whether the error is the non-retriable
// incomplete final submission rejection.
func IsIncompleteSubmission(err error) bool {
	return errors.Is(err, ErrIncompleteSubmission)
}

// IDProvider issues identifiers for audit records.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig bundles the gateway dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Schema     Schema
	Logger     *zap.Logger
	Telemetry  telemetry.Sink
}

// Service is the persistence gateway for RSVP submissions. Writes for the
// same guest are serialized through a per-key mutex so the read-merge-write
// cycle never loses an update to an interleaved writer.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	schema     Schema
	logger     *zap.Logger
	sink       telemetry.Sink
	feed       *changeFeed

	keyMu sync.Mutex
	keys  map[string]*sync.Mutex
}

// NewService constructs the gateway.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	sink := cfg.Telemetry
	if sink == nil {
		sink = telemetry.NewNop()
	}
	schema := cfg.Schema
	if schema.Version == 0 {
		schema = DefaultSchema()
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		schema:     schema,
		logger:     logger,
		sink:       sink,
		feed:       newChangeFeed(),
		keys:       make(map[string]*sync.Mutex),
	}, nil
}

// Schema exposes the question set the gateway enforces on final submissions.
func (s *Service) Schema() Schema {
	return s.schema
}

// lockKey serializes writes per guest key.
func (s *Service) lockKey(userID string) func() {
	s.keyMu.Lock()
	mutex, ok := s.keys[userID]
	if !ok {
		mutex = &sync.Mutex{}
		s.keys[userID] = mutex
	}
	s.keyMu.Unlock()
	mutex.Lock()
	return mutex.Unlock
}

// Save creates or updates the guest's submission. Updates merge field by
// field: the sanitized incoming answers win, stored answers survive for every
// question the write leaves out. submittedAt is assigned once, on the first
// write; lastUpdatedAt always comes from the service clock; version starts at
// 1 and increments on every subsequent write.
func (s *Service) Save(ctx context.Context, userID UserID, userEmail, userDisplayName string, responses Response, submitted bool) (Submission, error) {
	if userID.String() == "" {
		s.logError(opSave, "missing_user_id", errMissingUserID)
		return Submission{}, newServiceError(opSave, "missing_user_id", errMissingUserID)
	}

	unlock := s.lockKey(userID.String())
	defer unlock()

	sanitized := Sanitize(responses)
	var saved SubmissionRecord

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing SubmissionRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID.String()).
			Take(&existing).Error

		now := s.clock().UTC()
		record := SubmissionRecord{
			UserID:               userID.String(),
			UserEmail:            userEmail,
			UserDisplayName:      userDisplayName,
			IsSubmitted:          submitted,
			LastUpdatedAtSeconds: now.Unix(),
		}
		var previousVersion *int64

		if errors.Is(err, gorm.ErrRecordNotFound) {
			if submitted && !s.schema.IsValid(sanitized) {
				return newServiceError(opSave, "incomplete_submission", ErrIncompleteSubmission)
			}
			encoded, encodeErr := encodeResponses(sanitized)
			if encodeErr != nil {
				s.logError(opSave, "encode_failed", encodeErr, zap.String("user_id", userID.String()))
				return newServiceError(opSave, "encode_failed", encodeErr)
			}
			record.ResponsesJSON = encoded
			record.SubmittedAtSeconds = now.Unix()
			record.Version = 1
		} else if err != nil {
			s.logError(opSave, "select_failed", err, zap.String("user_id", userID.String()))
			return newServiceError(opSave, "select_failed", err)
		} else {
			stored, decodeErr := existing.toSubmission()
			if decodeErr != nil {
				s.logError(opSave, "decode_failed", decodeErr, zap.String("user_id", userID.String()))
				return newServiceError(opSave, "decode_failed", decodeErr)
			}
			merged := mergeResponses(stored.Responses, sanitized)
			encoded, encodeErr := encodeResponses(merged)
			if encodeErr != nil {
				s.logError(opSave, "encode_failed", encodeErr, zap.String("user_id", userID.String()))
				return newServiceError(opSave, "encode_failed", encodeErr)
			}
			record.ResponsesJSON = encoded
			record.SubmittedAtSeconds = existing.SubmittedAtSeconds
			if record.SubmittedAtSeconds == 0 {
				record.SubmittedAtSeconds = now.Unix()
			}
			record.Version = existing.Version + 1
			previous := existing.Version
			previousVersion = &previous
		}

		if saveErr := tx.Save(&record).Error; saveErr != nil {
			s.logError(opSave, "save_failed", saveErr, zap.String("user_id", userID.String()))
			return newServiceError(opSave, "save_failed", saveErr)
		}

		changeID, idErr := s.idProvider.NewID()
		if idErr != nil {
			s.logError(opSave, "id_generation_failed", idErr, zap.String("user_id", userID.String()))
			return newServiceError(opSave, "id_generation_failed", idErr)
		}
		audit := SubmissionChange{
			ChangeID:         changeID,
			UserID:           userID.String(),
			AppliedAtSeconds: now.Unix(),
			IsSubmitted:      submitted,
			ResponsesJSON:    record.ResponsesJSON,
			PreviousVersion:  previousVersion,
			NewVersion:       record.Version,
		}
		if auditErr := tx.Create(&audit).Error; auditErr != nil {
			s.logError(opSave, "audit_insert_failed", auditErr, zap.String("user_id", userID.String()))
			return newServiceError(opSave, "audit_insert_failed", auditErr)
		}

		saved = record
		return nil
	})

	if txErr != nil {
		if !IsIncompleteSubmission(txErr) {
			s.sink.CaptureException(txErr,
				map[string]string{"operation": opSave},
				map[string]any{"user_id": userID.String(), "is_submitted": submitted})
		}
		return Submission{}, txErr
	}

	submission, err := saved.toSubmission()
	if err != nil {
		s.logError(opSave, "decode_failed", err, zap.String("user_id", userID.String()))
		return Submission{}, newServiceError(opSave, "decode_failed", err)
	}

	s.sink.AddBreadcrumb(telemetry.Breadcrumb{
		Category: "rsvp",
		Message:  "submission saved",
		Level:    telemetry.LevelInfo,
		Data: map[string]any{
			"user_id":      userID.String(),
			"version":      submission.Version,
			"is_submitted": submission.IsSubmitted,
		},
	})
	s.feed.publish(userID.String(), &submission)
	return submission, nil
}

// Get returns the guest's submission, or nil when none exists yet. A missing
// document is the normal state for a first-time guest, not a failure.
func (s *Service) Get(ctx context.Context, userID UserID) (*Submission, error) {
	if userID.String() == "" {
		s.logError(opGet, "missing_user_id", errMissingUserID)
		return nil, newServiceError(opGet, "missing_user_id", errMissingUserID)
	}

	var record SubmissionRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opGet, "query_failed", err)
	}

	submission, err := record.toSubmission()
	if err != nil {
		s.logError(opGet, "decode_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opGet, "decode_failed", err)
	}
	return &submission, nil
}

// Delete removes the guest's submission outright. Administrative use only.
func (s *Service) Delete(ctx context.Context, userID UserID) error {
	if userID.String() == "" {
		s.logError(opDelete, "missing_user_id", errMissingUserID)
		return newServiceError(opDelete, "missing_user_id", errMissingUserID)
	}

	unlock := s.lockKey(userID.String())
	defer unlock()

	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Delete(&SubmissionRecord{}).Error; err != nil {
		s.logError(opDelete, "delete_failed", err, zap.String("user_id", userID.String()))
		return newServiceError(opDelete, "delete_failed", err)
	}

	s.feed.publish(userID.String(), nil)
	return nil
}

// ListAll returns every submission, most recently updated first.
func (s *Service) ListAll(ctx context.Context) ([]Submission, error) {
	var records []SubmissionRecord
	if err := s.db.WithContext(ctx).
		Order("last_updated_at_s DESC").
		Find(&records).Error; err != nil {
		s.logError(opListAll, "query_failed", err)
		return nil, newServiceError(opListAll, "query_failed", err)
	}

	submissions := make([]Submission, 0, len(records))
	for _, record := range records {
		submission, err := record.toSubmission()
		if err != nil {
			s.logError(opListAll, "decode_failed", err, zap.String("user_id", record.UserID))
			return nil, newServiceError(opListAll, "decode_failed", err)
		}
		submissions = append(submissions, submission)
	}
	return submissions, nil
}

// Statistics summarizes attendance answers and the draft/submitted split.
type Statistics struct {
	TotalResponses int `json:"totalResponses"`
	Attending      int `json:"attending"`
	NotAttending   int `json:"notAttending"`
	Maybe          int `json:"maybe"`
	Submitted      int `json:"submitted"`
	Drafts         int `json:"drafts"`
}

// Statistics derives counts from ListAll.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	submissions, err := s.ListAll(ctx)
	if err != nil {
		return Statistics{}, newServiceError(opStatistics, "list_failed", err)
	}

	stats := Statistics{TotalResponses: len(submissions)}
	for _, submission := range submissions {
		switch submission.Responses.Attendance {
		case AttendanceYes:
			stats.Attending++
		case AttendanceNo:
			stats.NotAttending++
		case AttendanceMaybe:
			stats.Maybe++
		}
		if submission.IsSubmitted {
			stats.Submitted++
		} else {
			stats.Drafts++
		}
	}
	return stats, nil
}

// Subscribe registers a callback for the guest's submission changes. The
// current state is delivered immediately, then again after every accepted
// write, including the subscriber's own. A transient fetch failure delivers
// nil rather than an error; callers recover via an explicit Get.
func (s *Service) Subscribe(userID UserID, onChange func(*Submission)) (func(), error) {
	if userID.String() == "" {
		return nil, newServiceError(opSubscribe, "missing_user_id", errMissingUserID)
	}
	if onChange == nil {
		return nil, newServiceError(opSubscribe, "missing_callback", errMissingCallback)
	}

	unsubscribe := s.feed.subscribe(userID.String(), onChange)

	current, err := s.Get(context.Background(), userID)
	if err != nil {
		s.logError(opSubscribe, "initial_fetch_failed", err, zap.String("user_id", userID.String()))
		deliver(onChange, nil)
		return unsubscribe, nil
	}
	deliver(onChange, current)
	return unsubscribe, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("rsvp service error", attrs...)
}
