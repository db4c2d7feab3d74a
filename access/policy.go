package access

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"dogbox.io/dogbox/common/logging"
	cst "dogbox.io/dogbox/constants"
	pe "dogbox.io/dogbox/errors"
)

// Accounts maps usernames to password hashes
type Accounts map[string]string

// Outcome is the result kind of a policy evaluation
type Outcome int

const (
	Authorized Outcome = iota
	Unauthorized
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	default:
		return "failed"
	}
}

// Decision is the verdict of a Policy on one request
type Decision struct {
	Outcome Outcome
	// Challenge is set on Unauthorized decisions which the client may resolve by sending Basic credentials
	Challenge bool
	// Reason is for logs only
	Reason string
	// Err is set on every decision but Authorized ones
	Err *pe.Err
}

// StatusCode returns the http response status code of the decision
func (d Decision) StatusCode() int {
	if d.Err != nil {
		return d.Err.StatusCode()
	}
	if d.Outcome == Authorized {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func deny(challenge bool, reason string) Decision {
	return Decision{Outcome: Unauthorized, Challenge: challenge, Reason: reason, Err: pe.NewUnauthorized(reason)}
}

// Policy guards one action (download or upload). Policies of a deployment share Accounts and the client
// address settings but carry their own NetRules.
type Policy struct {
	Name string
	// IPHeader names the request header holding the client address, e.g. X-Real-IP. Empty means none.
	IPHeader string
	// FallbackToRealIP uses the transport peer address when IPHeader is empty or missing from the request
	FallbackToRealIP bool
	Accounts         Accounts
	Rules            NetRules
	// Verify defaults to VerifyPassword
	Verify Verifier
}

// ClientAddr returns the address the policy judges the request by
func (p *Policy) ClientAddr(r *http.Request) (string, bool) {
	if p.IPHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(p.IPHeader)); v != "" {
			return v, true
		}
	}
	if !p.FallbackToRealIP {
		return "", false
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	return host, host != ""
}

// Evaluate decides whether r may perform the action guarded by p. It has no side effects.
func (p *Policy) Evaluate(r *http.Request) Decision {
	addr, ok := p.ClientAddr(r)
	if !ok {
		return deny(false, "client address undetermined")
	}
	if p.Rules.Allowed(addr) {
		return Decision{Outcome: Authorized, Reason: "network allowed"}
	}
	username, password, ok := basicCredentials(r)
	if !ok {
		return deny(true, "missing or malformed credentials")
	}
	verify := p.Verify
	if verify == nil {
		verify = VerifyPassword
	}
	hash, known := p.Accounts[username]
	if !known {
		burnVerification(verify, password)
		return deny(true, "unknown user")
	}
	match, err := verify(hash, password)
	if err != nil {
		return Decision{
			Outcome: Failed,
			Reason:  "password verification failed",
			Err:     pe.NewServiceFailure(fmt.Sprintf("error verifying password of user %s", username)).WithCause(err),
		}
	}
	if !match {
		return deny(true, "wrong password")
	}
	return Decision{Outcome: Authorized, Reason: "credentials accepted"}
}

// Guard is a middleware running h only for requests p authorizes
func (p *Policy) Guard(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		d := p.Evaluate(r)
		clog := logging.FromContext(r.Context()).WithFields(log.Fields{
			"policy":  p.Name,
			"outcome": d.Outcome.String(),
			"reason":  d.Reason,
		})
		switch d.Outcome {
		case Authorized:
			clog.Debug("request authorized")
			h(w, r, ps)
			return
		case Unauthorized:
			clog.Info("request unauthorized")
			if d.Challenge {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, cst.AuthRealm))
			}
		default:
			clog.WithError(d.Err).Error("error evaluating access policy")
		}
		code := d.StatusCode()
		http.Error(w, http.StatusText(code), code)
	}
}
