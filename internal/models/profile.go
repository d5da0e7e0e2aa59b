// Package models contains the data structures shared by the chat client:
// audience profiles, session descriptors, conversation messages, citations
// and the raw backend events they are derived from.
package models

import "fmt"

// AudienceProfile selects the backend routing tag and result limits for a
// conversation. It is immutable for the lifetime of a session; changing it
// retires the session and bootstraps a new one.
type AudienceProfile string

const (
	ProfileGeneral    AudienceProfile = "general"
	ProfilePatient    AudienceProfile = "patient"
	ProfileResearcher AudienceProfile = "researcher"
)

// ParseProfile validates a profile string.
func ParseProfile(s string) (AudienceProfile, error) {
	switch AudienceProfile(s) {
	case ProfileGeneral, ProfilePatient, ProfileResearcher:
		return AudienceProfile(s), nil
	}
	return "", fmt.Errorf("unknown audience profile %q", s)
}

// MaxResults returns the maximum number of literature results the backend
// should return for this profile.
func (p AudienceProfile) MaxResults() int {
	switch p {
	case ProfileResearcher:
		return 20
	case ProfilePatient:
		return 8
	default:
		return 5
	}
}

func (p AudienceProfile) String() string {
	return string(p)
}
