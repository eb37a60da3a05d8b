package web

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"blogbeacon/internal/session"
	"blogbeacon/internal/userclient"
	"blogbeacon/internal/util"
)

type loginForm struct {
	Email string
	Error string
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.session(r).LoggedIn() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		s.render(w, r, http.StatusOK, "login.html", viewData{
			Title: "Log in",
			Flash: takeFlash(w, r),
			Data:  loginForm{},
		})
	case http.MethodPost:
		s.handleLoginSubmit(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.allowLoginRate(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid form submission")
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		s.render(w, r, http.StatusUnprocessableEntity, "login.html", viewData{
			Title: "Log in",
			Data:  loginForm{Email: email, Error: "Email and password are required"},
		})
		return
	}

	res, err := s.users.Login(r.Context(), email, password)
	if err != nil {
		if s.metrics != nil {
			s.metrics.LoginAttempts.WithLabelValues("fail").Inc()
		}
		var apiErr *userclient.APIError
		if errors.As(err, &apiErr) {
			s.render(w, r, http.StatusUnauthorized, "login.html", viewData{
				Title: "Log in",
				Data:  loginForm{Email: email, Error: apiErr.Message},
			})
			return
		}
		s.renderError(w, r, http.StatusBadGateway, "The blog service is unavailable, try again later")
		return
	}
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues("success").Inc()
	}

	sid, err := s.sessions.Save(r.Context(), session.Session{Token: res.Token, UserID: res.User.ID})
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("session save failed", "error", err)
		s.renderError(w, r, http.StatusInternalServerError, "Could not start your session, try again")
		return
	}
	session.SetCookie(w, sid, s.sessionTTL, s.cookie)
	setFlash(w, "success", "Logged in successfully")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if sid, ok := session.FromRequest(r, s.cookie); ok {
		if err := s.sessions.Delete(r.Context(), sid); err != nil {
			util.LoggerFromContext(r.Context()).Warn("session delete failed", "error", err)
		}
	}
	session.ClearCookie(w, s.cookie)
	setFlash(w, "success", "Logged out")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type registerForm struct {
	Username string
	Email    string
	Error    string
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.session(r).LoggedIn() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		s.render(w, r, http.StatusOK, "register.html", viewData{
			Title: "Register",
			Flash: takeFlash(w, r),
			Data:  registerForm{},
		})
	case http.MethodPost:
		s.handleRegisterSubmit(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleRegisterSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid form submission")
		return
	}
	form := registerForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
	}
	password := r.PostFormValue("password")
	if form.Username == "" || form.Email == "" || password == "" {
		form.Error = "Username, email, and password are required"
		s.render(w, r, http.StatusUnprocessableEntity, "register.html", viewData{Title: "Register", Data: form})
		return
	}

	payload := userclient.RegisterForm{
		Username: form.Username,
		Email:    form.Email,
		Password: password,
	}
	file, header, ok, err := s.formImage(r, "image")
	if err != nil {
		form.Error = err.Error()
		s.render(w, r, http.StatusUnprocessableEntity, "register.html", viewData{Title: "Register", Data: form})
		return
	}
	if ok {
		defer file.Close()
		payload.Image = file
		payload.ImageName = header.Filename
	}

	if err := s.users.Register(r.Context(), payload); err != nil {
		var apiErr *userclient.APIError
		if errors.As(err, &apiErr) {
			form.Error = apiErr.Message
			s.render(w, r, http.StatusUnprocessableEntity, "register.html", viewData{Title: "Register", Data: form})
			return
		}
		s.renderError(w, r, http.StatusBadGateway, "The blog service is unavailable, try again later")
		return
	}
	setFlash(w, "success", "Account created, you can log in now")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sess := s.session(r)
	if !sess.LoggedIn() {
		setFlash(w, "error", "Please log in first")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	profile, err := s.users.CurrentUser(r.Context(), sess.UserID)
	if err != nil {
		// The stored token or user id no longer resolves to an account;
		// drop the session and start over.
		if sid, ok := session.FromRequest(r, s.cookie); ok {
			_ = s.sessions.Delete(r.Context(), sid)
		}
		session.ClearCookie(w, s.cookie)
		setFlash(w, "error", "Your session expired, please log in again")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "profile.html", viewData{
		Title:   profile.Username,
		Flash:   takeFlash(w, r),
		Session: sess,
		Data:    profile,
	})
}

type updateUserForm struct {
	Username string
	Email    string
	Error    string
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if !sess.LoggedIn() {
		setFlash(w, "error", "Please log in first")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	switch r.Method {
	case http.MethodGet:
		profile, err := s.users.CurrentUser(r.Context(), sess.UserID)
		if err != nil {
			s.renderUserError(w, r, err)
			return
		}
		s.render(w, r, http.StatusOK, "user_edit.html", viewData{
			Title:   "Update profile",
			Flash:   takeFlash(w, r),
			Session: sess,
			Data:    updateUserForm{Username: profile.Username, Email: profile.Email},
		})
	case http.MethodPost:
		s.handleUpdateUserSubmit(w, r, sess)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpdateUserSubmit(w http.ResponseWriter, r *http.Request, sess session.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid form submission")
		return
	}
	form := updateUserForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
	}
	if form.Username == "" || form.Email == "" {
		form.Error = "Username and email are required"
		s.render(w, r, http.StatusUnprocessableEntity, "user_edit.html", viewData{
			Title: "Update profile", Session: sess, Data: form,
		})
		return
	}

	payload := userclient.UpdateForm{Username: form.Username, Email: form.Email}
	file, header, ok, err := s.formImage(r, "image")
	if err != nil {
		form.Error = err.Error()
		s.render(w, r, http.StatusUnprocessableEntity, "user_edit.html", viewData{
			Title: "Update profile", Session: sess, Data: form,
		})
		return
	}
	if ok {
		defer file.Close()
		payload.Image = file
		payload.ImageName = header.Filename
	}

	if err := s.users.UpdateUser(r.Context(), sess.UserID, payload); err != nil {
		s.renderUserError(w, r, err)
		return
	}
	setFlash(w, "success", "Profile updated")
	http.Redirect(w, r, "/user-blogs", http.StatusSeeOther)
}

func (s *Server) handleAllUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.users.AllUsers(r.Context())
	if err != nil {
		s.renderUserError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "users.html", viewData{
		Title:   "Writers",
		Flash:   takeFlash(w, r),
		Session: s.session(r),
		Data:    users,
	})
}

// formImage pulls an optional image part from a parsed multipart form.
// A missing part is not an error; a disallowed extension is.
func (s *Server) formImage(r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, errors.New("could not read the uploaded image")
	}
	if !s.isExtensionAllowed(header.Filename) {
		file.Close()
		return nil, nil, false, errors.New("image type is not allowed")
	}
	return file, header, true, nil
}

// renderUserError maps a user API failure to its terminal page.
func (s *Server) renderUserError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, userclient.ErrNotFound) {
		s.renderNotFound(w, r)
		return
	}
	var apiErr *userclient.APIError
	if errors.As(err, &apiErr) {
		s.renderError(w, r, http.StatusBadGateway, apiErr.Message)
		return
	}
	s.renderError(w, r, http.StatusBadGateway, "The blog service is unavailable, try again later")
}
