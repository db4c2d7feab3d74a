// Package server vends the HTTP front of dogbox: uploads, downloads and the landing page.
package server

import (
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/julienschmidt/httprouter"

	"dogbox.io/dogbox/access"
	"dogbox.io/dogbox/config"
	pe "dogbox.io/dogbox/errors"
	st "dogbox.io/dogbox/stores"
)

const indexTemplateName = "index.html"

// Server routes requests to handlers. Downloads and uploads share the files prefix and differ by method
// only, each guarded by its own access policy.
type Server struct {
	FS        st.FileStore
	Download  *access.Policy
	Upload    *access.Policy
	Retention time.Duration
	StaticDir string
	Index     *template.Template
	Router    *httprouter.Router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// LoadIndexTemplate parses the landing page template found in dir
func LoadIndexTemplate(dir string) (*template.Template, *pe.Err) {
	p := filepath.Join(dir, indexTemplateName)
	tmpl, err := template.ParseFiles(p)
	if err != nil {
		return nil, pe.NewConfig("html template not loaded: " + p).WithCause(err)
	}
	return tmpl, nil
}

// New assembles a Server with routes set up
func New(cfg *config.Config, fs st.FileStore, index *template.Template) *Server {
	s := &Server{
		FS:        fs,
		Download:  cfg.Download,
		Upload:    cfg.Upload,
		Retention: cfg.Retention,
		StaticDir: cfg.StaticDir,
		Index:     index,
	}
	s.SetupRoutes()
	return s
}

// HTTPServer wraps s into an *http.Server listening on addr. Only header reads are time-bounded since
// bodies of uploads may take arbitrarily long.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 16,
	}
}
