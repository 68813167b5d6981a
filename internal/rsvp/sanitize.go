package rsvp

import "strings"

// Sanitize strips answers that carry no information: strings that are empty
// after trimming and empty multi-select sets. It runs before every write so
// an incremental draft never clobbers previously saved answers with blanks.
// Sanitizing an already sanitized response is a no-op.
func Sanitize(responses Response) Response {
	cleaned := Response{
		Attendance:              responses.Attendance,
		AccommodationManagement: responses.AccommodationManagement,
		MainCoursePreference:    responses.MainCoursePreference,
	}
	if len(responses.NightsStaying) > 0 {
		cleaned.NightsStaying = append([]NightOption(nil), responses.NightsStaying...)
	}
	if len(responses.TransportationNeeds) > 0 {
		cleaned.TransportationNeeds = append([]TransportationNeed(nil), responses.TransportationNeeds...)
	}
	if strings.TrimSpace(responses.OtherNightsCombination) != "" {
		cleaned.OtherNightsCombination = responses.OtherNightsCombination
	}
	if strings.TrimSpace(responses.RoomSharing) != "" {
		cleaned.RoomSharing = responses.RoomSharing
	}
	if strings.TrimSpace(responses.DietaryRestrictions) != "" {
		cleaned.DietaryRestrictions = responses.DietaryRestrictions
	}
	return cleaned
}

// mergeResponses layers a sanitized incoming response over the stored one:
// answered fields win, unanswered fields keep their stored values.
func mergeResponses(existing, incoming Response) Response {
	merged := existing
	if incoming.Attendance != "" {
		merged.Attendance = incoming.Attendance
	}
	if incoming.AccommodationManagement != "" {
		merged.AccommodationManagement = incoming.AccommodationManagement
	}
	if len(incoming.NightsStaying) > 0 {
		merged.NightsStaying = incoming.NightsStaying
	}
	if incoming.OtherNightsCombination != "" {
		merged.OtherNightsCombination = incoming.OtherNightsCombination
	}
	if incoming.RoomSharing != "" {
		merged.RoomSharing = incoming.RoomSharing
	}
	if len(incoming.TransportationNeeds) > 0 {
		merged.TransportationNeeds = incoming.TransportationNeeds
	}
	if incoming.DietaryRestrictions != "" {
		merged.DietaryRestrictions = incoming.DietaryRestrictions
	}
	if incoming.MainCoursePreference != "" {
		merged.MainCoursePreference = incoming.MainCoursePreference
	}
	return merged
}
