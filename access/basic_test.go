package access

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasicCredentials(t *testing.T) {
	tcs := []struct {
		name     string
		header   string
		username string
		password string
		ok       bool
	}{
		{name: "Good", header: basic("alice:secret"), username: "alice", password: "secret", ok: true},
		{name: "UpperScheme", header: "BASIC YWxpY2U6c2VjcmV0", username: "alice", password: "secret", ok: true},
		{name: "EmptyPassword", header: basic("alice:"), username: "alice", ok: true},
		{name: "ExtraColon", header: basic("alice:se:cret")},
		{name: "NoColon", header: basic("alice")},
		{name: "NoHeader"},
		{name: "SchemeOnly", header: "Basic"},
		{name: "OtherScheme", header: "Bearer YWxpY2U6c2VjcmV0"},
		{name: "BadBase64", header: "Basic !!!"},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if c.header != "" {
				r.Header.Set("Authorization", c.header)
			}
			username, password, ok := basicCredentials(r)
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.username, username)
			assert.Equal(t, c.password, password)
		})
	}
}

func TestPolicyEvaluateColonInPassword(t *testing.T) {
	hash, err := HashPassword("se:cret", testArgon2Params)
	assert.NoError(t, err)
	calls := 0
	p := &Policy{
		FallbackToRealIP: true,
		Accounts:         Accounts{"alice": hash},
		Rules:            NetRules{Allow: []Range{}},
		Verify: func(hash, password string) (bool, error) {
			calls++
			return VerifyPassword(hash, password)
		},
	}
	r := httptest.NewRequest(http.MethodGet, "/files/abcde/test.txt", nil)
	r.Header.Set("Authorization", basic("alice:se:cret"))

	d := p.Evaluate(r)
	assert.Equal(t, Unauthorized, d.Outcome)
	assert.True(t, d.Challenge)
	assert.Equal(t, 0, calls, "malformed credentials should never reach verification")
}
