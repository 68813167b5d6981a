package rsvp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidUserID indicates that a guest identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("rsvp: invalid user id")
	// ErrInvalidResponses indicates that a stored responses payload could not be decoded.
	ErrInvalidResponses = errors.New("rsvp: invalid responses payload")
)

// AttendanceStatus answers whether the guest is coming to the wedding.
type AttendanceStatus string

const (
	AttendanceYes   AttendanceStatus = "yes"
	AttendanceNo    AttendanceStatus = "no"
	AttendanceMaybe AttendanceStatus = "maybe"
)

// AccommodationChoice answers whether the couple should arrange the guest's stay.
type AccommodationChoice string

const (
	AccommodationManaged AccommodationChoice = "yes"
	AccommodationOwn     AccommodationChoice = "no"
)

// NightOption enumerates the nights a guest may stay in Cádiz.
type NightOption string

const (
	NightFriday   NightOption = "friday"
	NightSaturday NightOption = "saturday"
	NightSunday   NightOption = "sunday"
	NightOther    NightOption = "other"
)

// TransportationNeed enumerates the ride-sharing answers.
type TransportationNeed string

const (
	TransportFindRide  TransportationNeed = "find_ride"
	TransportOfferRide TransportationNeed = "offer_ride"
	TransportNoHelp    TransportationNeed = "no_help"
	TransportNotSure   TransportationNeed = "not_sure"
)

// MainCoursePreference enumerates the dinner choices.
type MainCoursePreference string

const (
	CourseFish         MainCoursePreference = "fish"
	CourseMeat         MainCoursePreference = "meat"
	CourseVegetarian   MainCoursePreference = "vegetarian"
	CourseNoPreference MainCoursePreference = "no_preference"
)

// Field names shared by validation, the session controller and the HTTP layer.
const (
	FieldAttendance              = "attendance"
	FieldAccommodationManagement = "accommodationManagement"
	FieldNightsStaying           = "nightsStaying"
	FieldOtherNightsCombination  = "otherNightsCombination"
	FieldRoomSharing             = "roomSharing"
	FieldTransportationNeeds     = "transportationNeeds"
	FieldDietaryRestrictions     = "dietaryRestrictions"
	FieldMainCoursePreference    = "mainCoursePreference"
)

// Response holds a guest's answers. Zero values mean the question is
// unanswered, so a partially filled draft is just a Response with gaps.
type Response struct {
	Attendance              AttendanceStatus     `json:"attendance,omitempty"`
	AccommodationManagement AccommodationChoice  `json:"accommodationManagement,omitempty"`
	NightsStaying           []NightOption        `json:"nightsStaying,omitempty"`
	OtherNightsCombination  string               `json:"otherNightsCombination,omitempty"`
	RoomSharing             string               `json:"roomSharing,omitempty"`
	TransportationNeeds     []TransportationNeed `json:"transportationNeeds,omitempty"`
	DietaryRestrictions     string               `json:"dietaryRestrictions,omitempty"`
	MainCoursePreference    MainCoursePreference `json:"mainCoursePreference,omitempty"`
}

// HasNight reports whether the given night is part of the guest's selection.
func (r Response) HasNight(night NightOption) bool {
	for _, candidate := range r.NightsStaying {
		if candidate == night {
			return true
		}
	}
	return false
}

// Submission is the persisted envelope around a guest's responses.
type Submission struct {
	UserID          string    `json:"userId"`
	UserEmail       string    `json:"userEmail"`
	UserDisplayName string    `json:"userDisplayName"`
	Responses       Response  `json:"responses"`
	SubmittedAt     time.Time `json:"submittedAt"`
	LastUpdatedAt   time.Time `json:"lastUpdatedAt"`
	IsSubmitted     bool      `json:"isSubmitted"`
	Version         int64     `json:"version"`
}

// UserID represents a validated guest identifier. The identifier doubles as
// the storage key: one submission per guest.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// SubmissionRecord models the persisted submission row.
type SubmissionRecord struct {
	UserID               string `gorm:"column:user_id;primaryKey;size:190;not null"`
	UserEmail            string `gorm:"column:user_email;size:320"`
	UserDisplayName      string `gorm:"column:user_display_name;size:320"`
	ResponsesJSON        string `gorm:"column:responses_json;type:text;not null"`
	SubmittedAtSeconds   int64  `gorm:"column:submitted_at_s;not null"`
	LastUpdatedAtSeconds int64  `gorm:"column:last_updated_at_s;not null;index:idx_rsvp_last_updated"`
	IsSubmitted          bool   `gorm:"column:is_submitted;not null;default:false"`
	Version              int64  `gorm:"column:version;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (SubmissionRecord) TableName() string {
	return "rsvp_submissions"
}

// SubmissionChange captures an append-only audit trail for submission writes.
type SubmissionChange struct {
	ChangeID         string `gorm:"column:change_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;not null;index:idx_rsvp_changes_user_time,priority:1"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null;index:idx_rsvp_changes_user_time,priority:2"`
	IsSubmitted      bool   `gorm:"column:is_submitted;not null"`
	ResponsesJSON    string `gorm:"column:responses_json;type:text;not null"`
	PreviousVersion  *int64 `gorm:"column:prev_version"`
	NewVersion       int64  `gorm:"column:new_version;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SubmissionChange) TableName() string {
	return "rsvp_submission_changes"
}

func (record SubmissionRecord) toSubmission() (Submission, error) {
	var responses Response
	if record.ResponsesJSON != "" {
		if err := json.Unmarshal([]byte(record.ResponsesJSON), &responses); err != nil {
			return Submission{}, fmt.Errorf("%w: %v", ErrInvalidResponses, err)
		}
	}
	return Submission{
		UserID:          record.UserID,
		UserEmail:       record.UserEmail,
		UserDisplayName: record.UserDisplayName,
		Responses:       responses,
		SubmittedAt:     time.Unix(record.SubmittedAtSeconds, 0).UTC(),
		LastUpdatedAt:   time.Unix(record.LastUpdatedAtSeconds, 0).UTC(),
		IsSubmitted:     record.IsSubmitted,
		Version:         record.Version,
	}, nil
}

func encodeResponses(responses Response) (string, error) {
	encoded, err := json.Marshal(responses)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponses, err)
	}
	return string(encoded), nil
}
