package enums

import "fmt"

// ReminderType distinguishes reminders sent ahead of a due date from overdue notices.
type ReminderType string

const (
	ReminderTypeUpcoming ReminderType = "UPCOMING"
	ReminderTypeOverdue  ReminderType = "OVERDUE"
)

var validReminderTypes = []ReminderType{
	ReminderTypeUpcoming,
	ReminderTypeOverdue,
}

// String implements fmt.Stringer.
func (r ReminderType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReminderType.
func (r ReminderType) IsValid() bool {
	for _, candidate := range validReminderTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReminderType converts raw input into a ReminderType.
func ParseReminderType(value string) (ReminderType, error) {
	for _, candidate := range validReminderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reminder type %q", value)
}
