package responses

import (
	"net/http"
	"strings"

	"github.com/munnerz/goautoneg"
)

// WantsJSON reports whether the Accept header lists application/json with a
// non-zero quality.
func WantsJSON(r *http.Request) bool {
	for _, accept := range goautoneg.ParseAccept(r.Header.Get("Accept")) {
		if accept.Q > 0 && strings.EqualFold(accept.Type, "application") && strings.EqualFold(accept.SubType, "json") {
			return true
		}
	}
	return false
}
