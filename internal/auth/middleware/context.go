package auth

import (
	"net/http"
	"strings"
)

// BearerToken extracts the token from "Authorization: Bearer <t>", or "".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
