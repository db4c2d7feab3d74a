package middleware

import (
	"net/http"
	"time"

	hr "github.com/julienschmidt/httprouter"
	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"

	"dogbox.io/dogbox/common/logging"
	cst "dogbox.io/dogbox/constants"
)

type Middleware func(hr.Handle) hr.Handle

// Chain composites given handler and middlewares. The last middleware is the outermost one.
func Chain(h hr.Handle, ms ...Middleware) hr.Handle {
	for _, m := range ms {
		h = m(h)
	}
	return h
}

// PanicRecoverer recovers from panic of underlying handlers
func PanicRecoverer() Middleware {
	return func(h hr.Handle) hr.Handle {
		return func(w http.ResponseWriter, r *http.Request, p hr.Params) {
			defer func() {
				if rec := recover(); rec != nil {
					logging.FromContext(r.Context()).WithField("panicReason", rec).Error("got panic from underlying handler")
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			h(w, r, p)
		}
	}
}

// RequestTagger tags every request with a fresh request id, echoed in the response headers and carried by
// the request context's log entry
func RequestTagger() Middleware {
	return func(h hr.Handle) hr.Handle {
		return func(w http.ResponseWriter, r *http.Request, p hr.Params) {
			rid := ksuid.New().String()
			w.Header().Set(cst.HeaderRequestID, rid)
			e := log.WithField(cst.LogFieldRequestID, rid)
			h(w, r.WithContext(logging.NewContext(r.Context(), e)), p)
		}
	}
}

// statusRecorder captures status code and size of a response
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

// AccessLogger logs one line per request
func AccessLogger() Middleware {
	return func(h hr.Handle) hr.Handle {
		return func(w http.ResponseWriter, r *http.Request, p hr.Params) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			h(rec, r, p)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			logging.FromContext(r.Context()).WithFields(log.Fields{
				"httpMethod": r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"bytes":      rec.bytes,
				"durationMs": time.Since(start).Milliseconds(),
				"remoteAddr": r.RemoteAddr,
			}).Info("request served")
		}
	}
}

// Standard is the middleware stack every route gets
func Standard(h hr.Handle) hr.Handle {
	return Chain(h, PanicRecoverer(), AccessLogger(), RequestTagger())
}
