package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marismas/boda/backend/internal/rsvp"
	"github.com/marismas/boda/backend/internal/telemetry"
)

var (
	errMissingGateway = errors.New("session: persistence gateway is required")
	errMissingGuest   = errors.New("session: guest identifier is required")
	errClosed         = errors.New("session: controller is closed")
)

// SubmitErrorField is the pseudo-field key carrying a submit failure that is
// not tied to any single question.
const SubmitErrorField = "submit"

const msgSubmitFailed = "No se pudo enviar la respuesta. Por favor, inténtalo de nuevo."

// Gateway is the slice of the persistence service the controller needs.
// *rsvp.Service satisfies it.
type Gateway interface {
	Get(ctx context.Context, userID rsvp.UserID) (*rsvp.Submission, error)
	Save(ctx context.Context, userID rsvp.UserID, userEmail, userDisplayName string, responses rsvp.Response, submitted bool) (rsvp.Submission, error)
}

// Guest identifies the signed-in guest whose form this session edits.
type Guest struct {
	ID          rsvp.UserID
	Email       string
	DisplayName string
}

// LoadState distinguishes a confirmed-empty form from one whose true state is
// unknown because the load failed. The two must never be conflated: a failed
// load presented as a fresh draft can silently shadow a real submission.
type LoadState int

const (
	LoadStateUnknown LoadState = iota
	LoadStateLoaded
	LoadStateEmpty
	LoadStateFailed
)

// Config bundles controller dependencies.
type Config struct {
	Gateway   Gateway
	Guest     Guest
	Schema    rsvp.Schema
	AutoSave  AutoSaveConfig
	Initial   *rsvp.Submission
	Logger    *zap.Logger
	Telemetry telemetry.Sink
	Clock     func() time.Time
}

// Snapshot is a point-in-time copy of the session state for the presentation
// layer. Errors is empty until validation has been triggered, even though
// they are recomputed on every edit.
type Snapshot struct {
	Responses    rsvp.Response
	Errors       map[string]string
	IsDirty      bool
	IsValid      bool
	IsSaving     bool
	IsSubmitted  bool
	HasValidated bool
	LastSavedAt  time.Time
	LoadState    LoadState
}

// Controller owns one guest's in-memory form session: the working response
// copy, validation errors, dirtiness against the last persisted snapshot and
// the auto-save schedule. One instance per active session; nothing here is
// process-global.
type Controller struct {
	gateway Gateway
	guest   Guest
	schema  rsvp.Schema
	logger  *zap.Logger
	sink    telemetry.Sink
	clock   func() time.Time

	mu           sync.Mutex
	responses    rsvp.Response
	lastSaved    rsvp.Response
	fieldErrors  map[string]string
	hasValidated bool
	isSubmitted  bool
	isSaving     bool
	lastSavedAt  time.Time
	loadState    LoadState
	closed       bool

	// saveMu serializes every persistence write issued by this session, so a
	// submit never races an in-flight auto-save for the same document key.
	saveMu    sync.Mutex
	scheduler *autoSaveScheduler
}

// NewController constructs a form session for the given guest.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Gateway == nil {
		return nil, errMissingGateway
	}
	if cfg.Guest.ID.String() == "" {
		return nil, errMissingGuest
	}

	schema := cfg.Schema
	if schema.Version == 0 {
		schema = rsvp.DefaultSchema()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := cfg.Telemetry
	if sink == nil {
		sink = telemetry.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	controller := &Controller{
		gateway:     cfg.Gateway,
		guest:       cfg.Guest,
		schema:      schema,
		logger:      logger,
		sink:        sink,
		clock:       clock,
		fieldErrors: make(map[string]string),
	}
	controller.scheduler = newAutoSaveScheduler(cfg.AutoSave, controller.performAutoSave, controller.isDirtyNow)

	if cfg.Initial != nil {
		controller.adopt(*cfg.Initial)
	}
	return controller, nil
}

func (c *Controller) adopt(submission rsvp.Submission) {
	c.mu.Lock()
	c.responses = submission.Responses
	c.lastSaved = submission.Responses
	c.isSubmitted = submission.IsSubmitted
	c.lastSavedAt = submission.LastUpdatedAt
	c.loadState = LoadStateLoaded
	c.fieldErrors = c.schema.Validate(c.responses)
	c.mu.Unlock()
}

// UpdateField replaces one answer in the working response. Errors are
// recomputed immediately but stay hidden until validation is triggered.
// Dirtiness is recomputed and the auto-save schedule is reset on each edit.
// UpdateField never persists by itself.
func (c *Controller) UpdateField(field string, value any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	if err := applyField(&c.responses, field, value); err != nil {
		c.mu.Unlock()
		return err
	}
	c.fieldErrors = c.schema.Validate(c.responses)
	dirty := c.dirtyLocked()
	c.mu.Unlock()

	if dirty {
		c.scheduler.noteEdit()
	}
	return nil
}

// ValidateForm surfaces validation errors to the presentation layer ahead of
// a submit attempt.
func (c *Controller) ValidateForm() {
	c.mu.Lock()
	c.hasValidated = true
	c.fieldErrors = c.schema.Validate(c.responses)
	c.mu.Unlock()
}

// SubmitForm validates and, if the form is complete, persists it as the
// guest's final answer. A validation failure returns false without touching
// persistence. A persistence failure surfaces a single field-independent
// submit error and leaves the form editable and re-submittable.
func (c *Controller) SubmitForm(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.hasValidated = true
	c.fieldErrors = c.schema.Validate(c.responses)
	if len(c.fieldErrors) > 0 {
		c.mu.Unlock()
		return false
	}
	responses := c.responses
	c.mu.Unlock()

	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	c.setSaving(true)
	defer c.setSaving(false)

	_, err := c.gateway.Save(ctx, c.guest.ID, c.guest.Email, c.guest.DisplayName, responses, true)
	if err != nil {
		c.logger.Error("submit failed",
			zap.String("user_id", c.guest.ID.String()),
			zap.Error(err))
		c.sink.CaptureException(err,
			map[string]string{"operation": "submit"},
			map[string]any{"user_id": c.guest.ID.String()})
		c.mu.Lock()
		c.fieldErrors[SubmitErrorField] = msgSubmitFailed
		c.mu.Unlock()
		return false
	}

	c.mu.Lock()
	c.lastSaved = responses
	c.lastSavedAt = c.clock()
	c.isSubmitted = true
	delete(c.fieldErrors, SubmitErrorField)
	c.mu.Unlock()

	c.sink.AddBreadcrumb(telemetry.Breadcrumb{
		Category: "rsvp_form",
		Message:  "form submitted",
		Level:    telemetry.LevelInfo,
		Data:     map[string]any{"user_id": c.guest.ID.String()},
	})
	return true
}

// ResetForm restores the defaults for an edit-again flow.
func (c *Controller) ResetForm() {
	c.mu.Lock()
	c.responses = rsvp.Response{}
	c.lastSaved = rsvp.Response{}
	c.fieldErrors = make(map[string]string)
	c.hasValidated = false
	c.isSubmitted = false
	c.mu.Unlock()
}

// LoadExistingData re-fetches the persisted submission and replaces the
// working state when one exists. A missing document is a no-op, not an error;
// a genuine load failure is reported and leaves the state marked unknown.
func (c *Controller) LoadExistingData(ctx context.Context) error {
	submission, err := c.gateway.Get(ctx, c.guest.ID)
	if err != nil {
		c.mu.Lock()
		c.loadState = LoadStateFailed
		c.mu.Unlock()
		c.logger.Error("load failed",
			zap.String("user_id", c.guest.ID.String()),
			zap.Error(err))
		c.sink.CaptureException(err,
			map[string]string{"operation": "load"},
			map[string]any{"user_id": c.guest.ID.String()})
		return err
	}
	if submission == nil {
		c.mu.Lock()
		c.loadState = LoadStateEmpty
		c.mu.Unlock()
		return nil
	}
	c.adopt(*submission)
	return nil
}

// EnableAutoSave turns debounced draft persistence on.
func (c *Controller) EnableAutoSave() {
	c.scheduler.setEnabled(true)
	if c.isDirtyNow() {
		c.scheduler.noteEdit()
	}
}

// DisableAutoSave turns auto-save off and cancels any pending timer.
func (c *Controller) DisableAutoSave() {
	c.scheduler.setEnabled(false)
}

// Close tears the session down, cancelling pending auto-save timers. In-flight
// writes are awaited by the next saveMu holder, never abandoned mid-write.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.scheduler.setEnabled(false)
}

// State returns a copy of the current session state.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	surfaced := make(map[string]string)
	if c.hasValidated {
		for field, message := range c.fieldErrors {
			surfaced[field] = message
		}
	}
	return Snapshot{
		Responses:    c.responses,
		Errors:       surfaced,
		IsDirty:      c.dirtyLocked(),
		IsValid:      c.schema.IsValid(c.responses),
		IsSaving:     c.isSaving,
		IsSubmitted:  c.isSubmitted,
		HasValidated: c.hasValidated,
		LastSavedAt:  c.lastSavedAt,
		LoadState:    c.loadState,
	}
}

// IsValid reports form validity regardless of whether errors are surfaced.
func (c *Controller) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schema.IsValid(c.responses)
}

func (c *Controller) dirtyLocked() bool {
	return !reflect.DeepEqual(c.responses, c.lastSaved)
}

func (c *Controller) isDirtyNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.dirtyLocked()
}

func (c *Controller) setSaving(saving bool) {
	c.mu.Lock()
	c.isSaving = saving
	c.mu.Unlock()
}

// performAutoSave persists the working copy as a draft. Failures are logged
// and breadcrumbed but never surfaced: an unsaved draft is not catastrophic
// and the next edit reschedules another attempt.
func (c *Controller) performAutoSave() {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	if c.closed || !c.dirtyLocked() {
		c.mu.Unlock()
		return
	}
	responses := c.responses
	c.isSaving = true
	c.mu.Unlock()
	defer c.setSaving(false)

	_, err := c.gateway.Save(context.Background(), c.guest.ID, c.guest.Email, c.guest.DisplayName, responses, false)
	if err != nil {
		c.logger.Warn("auto-save failed",
			zap.String("user_id", c.guest.ID.String()),
			zap.Error(err))
		c.sink.AddBreadcrumb(telemetry.Breadcrumb{
			Category: "rsvp_form",
			Message:  "auto-save failed",
			Level:    telemetry.LevelWarning,
			Data:     map[string]any{"user_id": c.guest.ID.String()},
		})
		return
	}

	c.mu.Lock()
	c.lastSaved = responses
	c.lastSavedAt = c.clock()
	c.mu.Unlock()
}

func applyField(responses *rsvp.Response, field string, value any) error {
	switch field {
	case rsvp.FieldAttendance:
		text, err := coerceString(field, value)
		if err != nil {
			return err
		}
		responses.Attendance = rsvp.AttendanceStatus(text)
	case rsvp.FieldAccommodationManagement:
		text, err := coerceString(field, value)
		if err != nil {
			return err
		}
		responses.AccommodationManagement = rsvp.AccommodationChoice(text)
	case rsvp.FieldNightsStaying:
		nights, err := coerceNights(value)
		if err != nil {
			return err
		}
		responses.NightsStaying = nights
	case rsvp.FieldOtherNightsCombination:
		text, err := coerceString(field, value)
		if err != nil {
			return err
		}
		responses.OtherNightsCombination = text
	case rsvp.FieldRoomSharing:
		text, err := coerceString(field, value)
		if err != nil {
			return err
		}
		responses.RoomSharing = text
	case rsvp.FieldTransportationNeeds:
		needs, err := coerceTransportation(value)
		if err != nil {
			return err
		}
		responses.TransportationNeeds = needs
	case rsvp.FieldDietaryRestrictions:
		text, err := coerceString(field, value)
		if err != nil {
			return err
		}
		responses.DietaryRestrictions = text
	case rsvp.FieldMainCoursePreference:
		text, err := coerceString(field, value)
		if err != nil {
			return err
		}
		responses.MainCoursePreference = rsvp.MainCoursePreference(text)
	default:
		return fmt.Errorf("session: unknown field %q", field)
	}
	return nil
}

func coerceString(field string, value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case rsvp.AttendanceStatus:
		return string(typed), nil
	case rsvp.AccommodationChoice:
		return string(typed), nil
	case rsvp.MainCoursePreference:
		return string(typed), nil
	default:
		return "", fmt.Errorf("session: field %q expects a string value, got %T", field, value)
	}
}

func coerceNights(value any) ([]rsvp.NightOption, error) {
	switch typed := value.(type) {
	case []rsvp.NightOption:
		return append([]rsvp.NightOption(nil), typed...), nil
	case []string:
		nights := make([]rsvp.NightOption, 0, len(typed))
		for _, night := range typed {
			nights = append(nights, rsvp.NightOption(night))
		}
		return nights, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("session: field %q expects a list of nights, got %T", rsvp.FieldNightsStaying, value)
	}
}

func coerceTransportation(value any) ([]rsvp.TransportationNeed, error) {
	switch typed := value.(type) {
	case []rsvp.TransportationNeed:
		return append([]rsvp.TransportationNeed(nil), typed...), nil
	case []string:
		needs := make([]rsvp.TransportationNeed, 0, len(typed))
		for _, need := range typed {
			needs = append(needs, rsvp.TransportationNeed(need))
		}
		return needs, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("session: field %q expects a list of transportation needs, got %T", rsvp.FieldTransportationNeeds, value)
	}
}
