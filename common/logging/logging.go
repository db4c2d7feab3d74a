package logging

import (
	"context"
	"io"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"

	cst "dogbox.io/dogbox/constants"
)

// ServiceFormatter is a Formatter that:
// 1. logs the unix time in milliseconds;
// 2. logs specified service/service component name;
type ServiceFormatter struct {
	svcName string
	log.Formatter
}

// I've noticed passing a mutated *log.Entry value to downstream formatter results in logs with panic level
// and empty message, but never sure about why it happens
func (f *ServiceFormatter) Format(e *log.Entry) ([]byte, error) {
	e.Data["epochTimeMillis"] = e.Time.UnixNano() / int64(time.Millisecond)
	e.Data["service"] = f.svcName
	return f.Formatter.Format(e)
}

// SetupLog setups service-specific logging on the standard logger.
func SetupLog(name string, verbose bool) {
	SetupLogTo(os.Stdout, name, verbose)
}

// SetupLogTo is SetupLog writing to w
func SetupLogTo(w io.Writer, name string, verbose bool) {
	log.SetOutput(w)
	// use unix timestamp instead of zonal one
	log.SetFormatter(&ServiceFormatter{
		svcName:   name,
		Formatter: &log.JSONFormatter{DisableTimestamp: true},
	})
	log.SetLevel(log.InfoLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// WithFuncName returns a *logrus.Entry marked with the name of function calling WithFuncName
func WithFuncName() *log.Entry {
	return log.WithField(cst.LogFieldFuncName, callerName(2))
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying entry e
func NewContext(ctx context.Context, e *log.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, e)
}

// FromContext returns the entry carried by ctx, marked with the name of function calling FromContext. It
// falls back to the standard logger if ctx carries no entry.
func FromContext(ctx context.Context) *log.Entry {
	e, ok := ctx.Value(ctxKey{}).(*log.Entry)
	if !ok {
		e = log.NewEntry(log.StandardLogger())
	}
	return e.WithField(cst.LogFieldFuncName, callerName(2))
}

func callerName(skip int) string {
	// get the pc of the function that calls the exported helper
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	frs := runtime.CallersFrames([]uintptr{pc})
	fr, _ := frs.Next()
	return fr.Function
}
