package enums

import "fmt"

// MilestoneStatus maps to the milestone_status enum in Postgres.
type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "pending"
	MilestoneStatusInProgress MilestoneStatus = "in_progress"
	MilestoneStatusSubmitted  MilestoneStatus = "submitted"
	MilestoneStatusApproved   MilestoneStatus = "approved"
	MilestoneStatusRejected   MilestoneStatus = "rejected"
	MilestoneStatusPaid       MilestoneStatus = "paid"
)

var validMilestoneStatuses = []MilestoneStatus{
	MilestoneStatusPending,
	MilestoneStatusInProgress,
	MilestoneStatusSubmitted,
	MilestoneStatusApproved,
	MilestoneStatusRejected,
	MilestoneStatusPaid,
}

// String implements fmt.Stringer.
func (s MilestoneStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known MilestoneStatus.
func (s MilestoneStatus) IsValid() bool {
	for _, candidate := range validMilestoneStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsResolved reports whether the milestone counts toward contract completion.
func (s MilestoneStatus) IsResolved() bool {
	return s == MilestoneStatusPaid || s == MilestoneStatusRejected
}

// ParseMilestoneStatus converts raw input into a MilestoneStatus.
func ParseMilestoneStatus(value string) (MilestoneStatus, error) {
	for _, candidate := range validMilestoneStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid milestone status %q", value)
}
