package app

import (
	"net/http"
	"strings"
)

// DefaultUserID identifies callers that do not name themselves. There is no
// authentication in front of the alert endpoints.
const DefaultUserID = "demo-user"

const maxUserIDLength = 128

// RequestUserID resolves the caller from the user_id query parameter or the
// X-User-ID header, in that order.
func (app *Application) RequestUserID(r *http.Request) string {
	id := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if id == "" {
		id = strings.TrimSpace(r.Header.Get("X-User-ID"))
	}
	if id == "" || len(id) > maxUserIDLength {
		return DefaultUserID
	}
	return id
}
