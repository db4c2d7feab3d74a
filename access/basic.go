package access

import (
	"encoding/base64"
	"net/http"
	"strings"
)

const basicScheme = "Basic "

// basicCredentials extracts the username and password of the Basic Authorization header of r. The scheme
// is matched case-insensitively; the decoded value must be exactly two colon-separated parts, so passwords
// containing a colon are rejected rather than split.
func basicCredentials(r *http.Request) (username, password string, ok bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < len(basicScheme) || !strings.EqualFold(auth[:len(basicScheme)], basicScheme) {
		return "", "", false
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(auth[len(basicScheme):]))
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(string(b), ":")
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
