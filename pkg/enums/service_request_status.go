package enums

import "fmt"

// ServiceRequestStatus tracks the decision on an add-on service request.
type ServiceRequestStatus string

const (
	ServiceRequestStatusPending  ServiceRequestStatus = "PENDING"
	ServiceRequestStatusAccepted ServiceRequestStatus = "ACCEPTED"
	ServiceRequestStatusRejected ServiceRequestStatus = "REJECTED"
)

var validServiceRequestStatuses = []ServiceRequestStatus{
	ServiceRequestStatusPending,
	ServiceRequestStatusAccepted,
	ServiceRequestStatusRejected,
}

// String implements fmt.Stringer.
func (s ServiceRequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ServiceRequestStatus.
func (s ServiceRequestStatus) IsValid() bool {
	for _, candidate := range validServiceRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseServiceRequestStatus converts raw input into a ServiceRequestStatus.
func ParseServiceRequestStatus(value string) (ServiceRequestStatus, error) {
	for _, candidate := range validServiceRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid service request status %q", value)
}
