package instance

import "os"

// fallbackID names processes started outside a managed dyno.
const fallbackID = "local"

// GetID returns the process identifier used to tag logs and locks.
// DYNO wins over VENUEPAY_INSTANCE_ID.
func GetID() string {
	for _, key := range []string{"DYNO", "VENUEPAY_INSTANCE_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return fallbackID
}
