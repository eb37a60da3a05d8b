package web

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"blogbeacon/internal/blogclient"
	"blogbeacon/internal/commentclient"
	"blogbeacon/internal/session"
	"blogbeacon/pkg/domain"
)

// blogCategories is the fixed tab set on the listing page. "All" disables
// the filter.
var blogCategories = []string{"All", "tech", "lifestyle", "sports", "weather", "education"}

const blogsPerPage = 6

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.renderNotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	blogs, err := s.blogs.AllBlogs(r.Context())
	if err != nil {
		s.renderBlogError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "home.html", viewData{
		Title:   "BlogBeacon",
		Flash:   takeFlash(w, r),
		Session: s.session(r),
		Data:    blogclient.Recent(blogs, 3),
	})
}

type blogListView struct {
	Blogs      []domain.Blog
	Categories []string
	Active     string
	Page       int
	TotalPages int
	PrevPage   int
	NextPage   int
}

func (s *Server) handleAllBlogs(w http.ResponseWriter, r *http.Request, sess session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	blogs, err := s.blogs.AllBlogs(r.Context())
	if err != nil {
		s.renderBlogError(w, r, err)
		return
	}

	// Filtering, sorting, and paging happen here, after the full fetch;
	// the upstream list endpoint takes no parameters.
	active := strings.TrimSpace(r.URL.Query().Get("category"))
	if active == "" {
		active = "All"
	}
	filtered := blogs[:0:0]
	for _, b := range blogs {
		if active == "All" || strings.EqualFold(b.Category, active) {
			filtered = append(filtered, b)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	totalPages := (len(filtered) + blogsPerPage - 1) / blogsPerPage
	if totalPages == 0 {
		totalPages = 1
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * blogsPerPage
	end := start + blogsPerPage
	if end > len(filtered) {
		end = len(filtered)
	}

	s.render(w, r, http.StatusOK, "blogs.html", viewData{
		Title:   "All blogs",
		Flash:   takeFlash(w, r),
		Session: sess,
		Data: blogListView{
			Blogs:      filtered[start:end],
			Categories: blogCategories,
			Active:     active,
			Page:       page,
			TotalPages: totalPages,
			PrevPage:   page - 1,
			NextPage:   page + 1,
		},
	})
}

type blogDetailView struct {
	Blog      domain.Blog
	Comments  []domain.Comment
	CanModify bool
}

func (s *Server) handleBlogDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/get-blog/")
	if id, found := strings.CutSuffix(rest, "/comments"); found {
		s.handleAddComment(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := rest
	if id == "" || strings.Contains(id, "/") {
		s.renderNotFound(w, r)
		return
	}
	blog, err := s.blogs.GetBlog(r.Context(), id)
	if err != nil {
		s.renderBlogError(w, r, err)
		return
	}
	comments, err := s.comments.ForBlog(r.Context(), id)
	if err != nil && !errors.Is(err, commentclient.ErrNotFound) {
		s.renderCommentError(w, r, err)
		return
	}
	sess := s.session(r)
	s.render(w, r, http.StatusOK, "blog_detail.html", viewData{
		Title:   blog.Title,
		Flash:   takeFlash(w, r),
		Session: sess,
		Data: blogDetailView{
			Blog:      blog,
			Comments:  comments,
			CanModify: canModify(sess, blog.User.ID),
		},
	})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request, blogID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	sess := s.session(r)
	if !sess.LoggedIn() {
		setFlash(w, "error", "Please log in to comment")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid form submission")
		return
	}
	content := strings.TrimSpace(r.PostFormValue("content"))
	if content == "" {
		// Rejected before any upstream call.
		setFlash(w, "error", "Comment cannot be empty")
		http.Redirect(w, r, "/get-blog/"+blogID, http.StatusSeeOther)
		return
	}
	if _, err := s.comments.Add(r.Context(), content, sess.UserID, blogID); err != nil {
		s.renderCommentError(w, r, err)
		return
	}
	setFlash(w, "success", "Comment added")
	http.Redirect(w, r, "/get-blog/"+blogID, http.StatusSeeOther)
}

func (s *Server) handleDeleteBlog(w http.ResponseWriter, r *http.Request, sess session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/delete-blog/")
	if id == "" || strings.Contains(id, "/") {
		s.renderNotFound(w, r)
		return
	}
	blog, err := s.blogs.GetBlog(r.Context(), id)
	if err != nil {
		s.renderBlogError(w, r, err)
		return
	}
	if !canModify(sess, blog.User.ID) {
		s.renderError(w, r, http.StatusForbidden, "You can only delete your own blogs")
		return
	}
	if err := s.blogs.DeleteBlog(r.Context(), id); err != nil {
		s.renderBlogError(w, r, err)
		return
	}
	setFlash(w, "success", "Blog deleted")
	http.Redirect(w, r, "/all-blogs", http.StatusSeeOther)
}

type blogForm struct {
	ID          string
	Title       string
	Description string
	Category    string
	Categories  []string
	Error       string
}

func (s *Server) handleCreateBlog(w http.ResponseWriter, r *http.Request, sess session.Session) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, r, http.StatusOK, "blog_create.html", viewData{
			Title:   "Create blog",
			Flash:   takeFlash(w, r),
			Session: sess,
			Data:    blogForm{Categories: blogCategories[1:]},
		})
	case http.MethodPost:
		s.handleCreateBlogSubmit(w, r, sess)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateBlogSubmit(w http.ResponseWriter, r *http.Request, sess session.Session) {
	form, ok := s.parseBlogForm(w, r, sess, "blog_create.html", "Create blog", "")
	if !ok {
		return
	}
	payload := blogclient.BlogForm{
		Title:       form.Title,
		Description: form.Description,
		Category:    form.Category,
		UserID:      sess.UserID,
	}
	file, header, hasImage, err := s.formImage(r, "image")
	if err != nil {
		form.Error = err.Error()
		s.render(w, r, http.StatusUnprocessableEntity, "blog_create.html", viewData{
			Title: "Create blog", Session: sess, Data: form,
		})
		return
	}
	if hasImage {
		defer file.Close()
		payload.Image = file
		payload.ImageName = header.Filename
	}

	if err := s.blogs.CreateBlog(r.Context(), payload); err != nil {
		s.renderBlogError(w, r, err)
		return
	}
	setFlash(w, "success", "Blog published")
	http.Redirect(w, r, "/user-blogs", http.StatusSeeOther)
}

func (s *Server) handleEditBlog(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id := strings.TrimPrefix(r.URL.Path, "/blog-details/")
	if id == "" || strings.Contains(id, "/") {
		s.renderNotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		// The form is seeded by a fresh fetch rather than whatever a list
		// page had cached.
		blog, err := s.blogs.GetBlog(r.Context(), id)
		if err != nil {
			s.renderBlogError(w, r, err)
			return
		}
		if !canModify(sess, blog.User.ID) {
			s.renderError(w, r, http.StatusForbidden, "You can only edit your own blogs")
			return
		}
		s.render(w, r, http.StatusOK, "blog_edit.html", viewData{
			Title:   "Edit blog",
			Flash:   takeFlash(w, r),
			Session: sess,
			Data: blogForm{
				ID:          blog.ID,
				Title:       blog.Title,
				Description: blog.Description,
				Category:    blog.Category,
				Categories:  blogCategories[1:],
			},
		})
	case http.MethodPost:
		s.handleEditBlogSubmit(w, r, sess, id)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleEditBlogSubmit(w http.ResponseWriter, r *http.Request, sess session.Session, id string) {
	// Ownership is re-checked on the submit itself; the guard on the GET form
	// does not cover a POST sent directly.
	blog, err := s.blogs.GetBlog(r.Context(), id)
	if err != nil {
		s.renderBlogError(w, r, err)
		return
	}
	if !canModify(sess, blog.User.ID) {
		s.renderError(w, r, http.StatusForbidden, "You can only edit your own blogs")
		return
	}
	form, ok := s.parseBlogForm(w, r, sess, "blog_edit.html", "Edit blog", id)
	if !ok {
		return
	}
	payload := blogclient.BlogForm{
		Title:       form.Title,
		Description: form.Description,
		Category:    form.Category,
		UserID:      sess.UserID,
	}
	file, header, hasImage, err := s.formImage(r, "image")
	if err != nil {
		form.Error = err.Error()
		s.render(w, r, http.StatusUnprocessableEntity, "blog_edit.html", viewData{
			Title: "Edit blog", Session: sess, Data: form,
		})
		return
	}
	if hasImage {
		defer file.Close()
		payload.Image = file
		payload.ImageName = header.Filename
	}

	if err := s.blogs.UpdateBlog(r.Context(), id, payload); err != nil {
		s.renderBlogError(w, r, err)
		return
	}
	setFlash(w, "success", "Blog updated")
	http.Redirect(w, r, "/user-blogs", http.StatusSeeOther)
}

// parseBlogForm validates the shared create/edit fields. On a validation
// failure it re-renders the form with the entered values intact and reports
// ok=false; no upstream call has been made at that point.
func (s *Server) parseBlogForm(w http.ResponseWriter, r *http.Request, sess session.Session, page, title, id string) (blogForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid form submission")
		return blogForm{}, false
	}
	form := blogForm{
		ID:          id,
		Title:       strings.TrimSpace(r.PostFormValue("title")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Category:    strings.TrimSpace(r.PostFormValue("category")),
		Categories:  blogCategories[1:],
	}
	if form.Title == "" || form.Description == "" || form.Category == "" {
		form.Error = "Title, description, and category are required"
		s.render(w, r, http.StatusUnprocessableEntity, page, viewData{
			Title: title, Session: sess, Data: form,
		})
		return blogForm{}, false
	}
	return form, true
}

func (s *Server) handleUserBlogs(w http.ResponseWriter, r *http.Request, sess session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	blogs, err := s.blogs.UserBlogs(r.Context(), sess.UserID)
	if err != nil {
		s.renderBlogError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "user_blogs.html", viewData{
		Title:   "My blogs",
		Flash:   takeFlash(w, r),
		Session: sess,
		Data:    blogs,
	})
}

// renderBlogError maps a blog API failure to its terminal page.
func (s *Server) renderBlogError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, blogclient.ErrNotFound) {
		s.renderNotFound(w, r)
		return
	}
	var apiErr *blogclient.APIError
	if errors.As(err, &apiErr) {
		s.renderError(w, r, http.StatusBadGateway, apiErr.Message)
		return
	}
	s.renderError(w, r, http.StatusBadGateway, "The blog service is unavailable, try again later")
}

func (s *Server) renderCommentError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, commentclient.ErrNotFound) {
		s.renderNotFound(w, r)
		return
	}
	var apiErr *commentclient.APIError
	if errors.As(err, &apiErr) {
		s.renderError(w, r, http.StatusBadGateway, apiErr.Message)
		return
	}
	s.renderError(w, r, http.StatusBadGateway, "The blog service is unavailable, try again later")
}
