package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// CustomerData is the contact snapshot captured when a payment intent is
// created. It is persisted as a serialized JSON document.
type CustomerData struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Value marshals CustomerData into its JSON column representation.
func (c CustomerData) Value() (driver.Value, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("customer data: marshal %w", err)
	}
	return string(raw), nil
}

// Scan decodes the JSON column written by Value.
func (c *CustomerData) Scan(value interface{}) error {
	if value == nil {
		*c = CustomerData{}
		return nil
	}

	raw, ok := toString(value)
	if !ok {
		return fmt.Errorf("customer data: unsupported scan type %T", value)
	}
	if strings.TrimSpace(raw) == "" {
		*c = CustomerData{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), c); err != nil {
		return fmt.Errorf("customer data: unmarshal %w", err)
	}
	return nil
}

// HasEmail reports whether the snapshot can receive notifications.
func (c CustomerData) HasEmail() bool {
	return strings.TrimSpace(c.Email) != ""
}

func toString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}
