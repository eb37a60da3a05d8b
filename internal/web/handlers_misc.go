package web

import (
	"net/http"

	"blogbeacon/internal/session"
	"blogbeacon/pkg/domain"
)

// handleUpload forwards a file to the upstream generic upload endpoint and
// relays the stored file path back as JSON, for in-editor image inserts.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, _ session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid upload"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return
	}
	defer file.Close()
	if !s.isExtensionAllowed(header.Filename) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "file type is not allowed"})
		return
	}
	res, err := s.blogs.Upload(r.Context(), header.Filename, file)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upload failed"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type newsView struct {
	Articles []domain.Article
	Query    string
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	articles, err := s.news.Latest(r.Context(), s.newsQuery)
	if err != nil {
		s.renderError(w, r, http.StatusBadGateway, "The news feed is unavailable, try again later")
		return
	}
	s.render(w, r, http.StatusOK, "news.html", viewData{
		Title:   "News",
		Flash:   takeFlash(w, r),
		Session: s.session(r),
		Data:    newsView{Articles: articles, Query: s.newsQuery},
	})
}
