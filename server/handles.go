package server

import (
	"bufio"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"dogbox.io/dogbox/common/logging"
	cst "dogbox.io/dogbox/constants"
	pe "dogbox.io/dogbox/errors"
	st "dogbox.io/dogbox/stores"
)

// HandleTaskGetIndexPage renders the landing page with the service's base URL and retention time
func (s *Server) HandleTaskGetIndexPage() httprouter.Handle {
	type View struct {
		BaseURL          string
		RetentionSeconds int64
	}
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		clog := logging.FromContext(r.Context())
		if s.Index == nil {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		v := View{
			BaseURL:          baseURL(r).String(),
			RetentionSeconds: int64(s.Retention / time.Second),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := s.Index.Execute(w, v); err != nil {
			clog.WithError(err).WithField("templateName", s.Index.Name()).Error("error executing html template")
		}
	}
}

// HandleTaskUpload stores the request body as a file named after the last segment of the request path and
// replies with the URL to retrieve it
func (s *Server) HandleTaskUpload() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		clog := logging.FromContext(r.Context())
		filename, perr := st.SanitizeFilename(ps.ByName("filepath"))
		if perr != nil {
			clog.WithError(perr).WithField("path", r.URL.Path).Info("rejected upload")
			replyErr(w, perr)
			return
		}
		flog := clog.WithField("filename", filename)
		c, perr := s.FS.Allocate()
		if perr != nil {
			flog.WithError(perr).Error(perr.Trace())
			replyErr(w, perr)
			return
		}
		flog = flog.WithField("container", c.ID)
		up, perr := s.FS.Save(r.Context(), c, filename, r.Body)
		if perr != nil {
			if perr.StatusCode() < http.StatusInternalServerError {
				flog.WithError(perr).Warn("failed to upload file")
			} else {
				flog.WithError(perr).Error(perr.Trace())
			}
			replyErr(w, perr)
			return
		}
		u := baseURL(r)
		u.Path = path.Join(cst.FilesURLPrefix, up.ContainerID, up.Filename)
		flog.WithField("bytes", up.Size).Info("uploaded file")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(u.String() + "\n")); err != nil {
			flog.WithError(err).Warn("error sending upload URL to requester")
		}
	}
}

// HandleTaskDownload sends a stored file as an attachment. Caching headers are left out on purpose since
// the file disappears once it expires.
func (s *Server) HandleTaskDownload() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id, filename := ps.ByName("container"), ps.ByName("filename")
		flog := logging.FromContext(r.Context()).WithFields(log.Fields{"container": id, "filename": filename})
		rc, up, perr := s.FS.Get(id, filename)
		if perr != nil {
			flog.WithError(perr).Info("file not served")
			replyErr(w, perr)
			return
		}
		defer rc.Close()
		headers := w.Header()
		headers.Set("Content-Type", "application/octet-stream")
		headers.Set("Content-Disposition", ContentDisposition(up.Filename))
		headers.Set("Content-Length", strconv.FormatInt(up.Size, 10))
		headers.Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if n, err := bufio.NewReader(rc).WriteTo(w); err != nil {
			// the status line is out already; all that is left is to cut the response short
			flog.WithError(err).WithField("bytesWritten", n).Warn("error sending file to requester")
		} else {
			flog.WithField("bytesWritten", n).Info("file sent to requester")
		}
	}
}

// HandleHealth reports liveness
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// replyErr replies with the status of err and no details
func replyErr(w http.ResponseWriter, err *pe.Err) {
	code := err.StatusCode()
	http.Error(w, http.StatusText(code), code)
}

// baseURL returns the root URL of the service as seen by the requester
func baseURL(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return &url.URL{Scheme: scheme, Host: r.Host, Path: "/"}
}

// ContentDisposition returns an attachment disposition carrying filename in the extended notation of
// RFC 5987, which survives any character set
func ContentDisposition(filename string) string {
	const hex = "0123456789ABCDEF"
	b := &strings.Builder{}
	b.WriteString("attachment; filename*=UTF-8''")
	for i := 0; i < len(filename); i++ {
		c := filename[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
