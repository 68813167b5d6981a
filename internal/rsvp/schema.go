package rsvp

import (
	"fmt"
	"strings"
)

// SchemaVersion selects which evolution of the question set is enforced.
type SchemaVersion int

const (
	// SchemaV1 is the original question set: accommodation management and
	// room sharing are both required.
	SchemaV1 SchemaVersion = 1
	// SchemaV2 drops the accommodation question and makes room sharing
	// optional.
	SchemaV2 SchemaVersion = 2
)

// Schema describes which fields the active form evolution requires. The
// question set changed between launches, so the required-field set is
// configuration rather than code.
type Schema struct {
	Version              SchemaVersion
	RequireAccommodation bool
	RequireRoomSharing   bool
}

// SchemaForVersion returns the schema matching a configured version number.
func SchemaForVersion(version SchemaVersion) (Schema, error) {
	switch version {
	case SchemaV1:
		return Schema{Version: SchemaV1, RequireAccommodation: true, RequireRoomSharing: true}, nil
	case SchemaV2:
		return Schema{Version: SchemaV2}, nil
	default:
		return Schema{}, fmt.Errorf("rsvp: unknown schema version %d", version)
	}
}

// DefaultSchema returns the schema enforced when none is configured.
func DefaultSchema() Schema {
	schema, _ := SchemaForVersion(SchemaV1)
	return schema
}

const (
	msgAttendanceRequired     = "Por favor, indica si vas a venir a la boda"
	msgAccommodationRequired  = "Por favor, indica si quieres que gestionemos tu alojamiento"
	msgNightsRequired         = "Por favor, selecciona al menos una noche"
	msgOtherNightsRequired    = "Por favor, especifica tu combinación de noches"
	msgRoomSharingRequired    = "Por favor, indica con quién compartes habitación"
	msgTransportationRequired = "Por favor, selecciona al menos una opción de transporte"
	msgMainCourseRequired     = "Por favor, selecciona tu preferencia para el plato principal"
)

// Validate maps a possibly partial response to field-level error messages.
// Every rule is evaluated; violations are reported together rather than
// stopping at the first one. Dietary restrictions are never validated.
func (s Schema) Validate(responses Response) map[string]string {
	errs := make(map[string]string)

	if responses.Attendance == "" {
		errs[FieldAttendance] = msgAttendanceRequired
	}

	if s.RequireAccommodation && responses.AccommodationManagement == "" {
		errs[FieldAccommodationManagement] = msgAccommodationRequired
	}

	if len(responses.NightsStaying) == 0 {
		errs[FieldNightsStaying] = msgNightsRequired
	}

	if responses.HasNight(NightOther) && strings.TrimSpace(responses.OtherNightsCombination) == "" {
		errs[FieldOtherNightsCombination] = msgOtherNightsRequired
	}

	if s.RequireRoomSharing && strings.TrimSpace(responses.RoomSharing) == "" {
		errs[FieldRoomSharing] = msgRoomSharingRequired
	}

	if len(responses.TransportationNeeds) == 0 {
		errs[FieldTransportationNeeds] = msgTransportationRequired
	}

	if responses.MainCoursePreference == "" {
		errs[FieldMainCoursePreference] = msgMainCourseRequired
	}

	return errs
}

// IsValid reports whether the response would pass Validate without errors.
func (s Schema) IsValid(responses Response) bool {
	return len(s.Validate(responses)) == 0
}
