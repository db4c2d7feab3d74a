package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	mw "dogbox.io/dogbox/common/middleware"
	cst "dogbox.io/dogbox/constants"
)

// SetupRoutes builds the routing table. Policies run inside the standard middleware and before any
// storage access.
func (s *Server) SetupRoutes() {
	r := httprouter.New()
	r.GET("/", mw.Standard(s.HandleTaskGetIndexPage()))
	r.GET("/healthz", s.HandleHealth)
	download := mw.Standard(s.Download.Guard(s.HandleTaskDownload()))
	r.GET(cst.FilesURLPrefix+"/:container/:filename", download)
	r.HEAD(cst.FilesURLPrefix+"/:container/:filename", download)
	r.PUT(cst.FilesURLPrefix+"/*filepath", mw.Standard(s.Upload.Guard(s.HandleTaskUpload())))
	// static assets
	if s.StaticDir != "" {
		r.Handler(
			http.MethodGet,
			"/static/*filepath",
			http.StripPrefix("/static/", http.FileServer(http.Dir(s.StaticDir))),
		)
	}
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})
	s.Router = r
}
