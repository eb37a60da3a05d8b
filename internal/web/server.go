package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blogbeacon/internal/blogclient"
	"blogbeacon/internal/commentclient"
	"blogbeacon/internal/metrics"
	"blogbeacon/internal/newsclient"
	"blogbeacon/internal/ratelimit"
	"blogbeacon/internal/session"
	"blogbeacon/internal/userclient"
	"blogbeacon/internal/util"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Users    *userclient.Client
	Blogs    *blogclient.Client
	Comments *commentclient.Client
	News     *newsclient.Client

	Sessions   session.Store
	Cookie     session.CookieOptions
	SessionTTL time.Duration

	NewsQuery string

	RedisAddr               string
	RedisPassword           string
	LoginRateLimitPerMinute int

	MaxUploadBytes         int64
	AllowedImageExtensions []string

	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	TrustedProxies *util.TrustedProxies
}

// Server renders the site and proxies every mutation to the blog API.
type Server struct {
	users    *userclient.Client
	blogs    *blogclient.Client
	comments *commentclient.Client
	news     *newsclient.Client

	sessions   session.Store
	cookie     session.CookieOptions
	sessionTTL time.Duration

	newsQuery string

	mux               *http.ServeMux
	templates         map[string]*template.Template
	loginLimiter      *ratelimit.FixedWindowLimiter
	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
	metrics           *metrics.Metrics
	registry          *prometheus.Registry
	trustedProxies    *util.TrustedProxies
}

// New constructs the server with routes configured. The login rate limiter
// is only installed when a Redis address is configured and the limit is
// positive; a limit of zero disables it.
func New(cfg Config) (*Server, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	var loginLimiter *ratelimit.FixedWindowLimiter
	if strings.TrimSpace(cfg.RedisAddr) != "" && cfg.LoginRateLimitPerMinute > 0 {
		loginLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "blogbeacon:ratelimit:login",
			cfg.LoginRateLimitPerMinute, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init login limiter: %w", err)
		}
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &Server{
		users:             cfg.Users,
		blogs:             cfg.Blogs,
		comments:          cfg.Comments,
		news:              cfg.News,
		sessions:          cfg.Sessions,
		cookie:            cfg.Cookie,
		sessionTTL:        ttl,
		newsQuery:         cfg.NewsQuery,
		mux:               http.NewServeMux(),
		templates:         templates,
		loginLimiter:      loginLimiter,
		maxUploadBytes:    normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedExtensions: normalizeExtensions(cfg.AllowedImageExtensions),
		metrics:           cfg.Metrics,
		registry:          cfg.Registry,
		trustedProxies:    cfg.TrustedProxies,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the ambient middleware.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = s.withMetrics(h)
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	return util.WithSecurityHeaders(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleHome)
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// account
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/logout", s.handleLogout)
	s.mux.HandleFunc("/register", s.handleRegister)
	s.mux.HandleFunc("/profile", s.handleProfile)
	s.mux.HandleFunc("/update-user", s.handleUpdateUser)
	s.mux.HandleFunc("/all-users", s.handleAllUsers)

	// blogs & comments
	s.mux.Handle("/all-blogs", s.withSession(s.handleAllBlogs))
	s.mux.HandleFunc("/get-blog/", s.handleBlogDetail)
	s.mux.Handle("/delete-blog/", s.withSession(s.handleDeleteBlog))
	s.mux.Handle("/blog-details/", s.withSession(s.handleEditBlog))
	s.mux.Handle("/create-blog", s.withSession(s.handleCreateBlog))
	s.mux.Handle("/user-blogs", s.withSession(s.handleUserBlogs))

	// misc
	s.mux.Handle("/upload", s.withSession(s.handleUpload))
	s.mux.HandleFunc("/news", s.handleNews)
	if s.registry != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// session resolves the browser's session, if any. A missing cookie, an
// unknown sid, or a store failure all read as the anonymous session.
func (s *Server) session(r *http.Request) session.Session {
	sid, ok := session.FromRequest(r, s.cookie)
	if !ok {
		return session.Session{}
	}
	sess, found, err := s.sessions.Get(r.Context(), sid)
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("session lookup failed", "error", err)
		return session.Session{}
	}
	if !found {
		return session.Session{}
	}
	return sess
}

type sessionHandler func(http.ResponseWriter, *http.Request, session.Session)

// withSession requires a logged-in session and redirects anonymous visitors
// to the login page with a notice.
func (s *Server) withSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := s.session(r)
		if !sess.LoggedIn() {
			setFlash(w, "error", "Please log in first")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r, sess)
	})
}

// renderError is the terminal failure state for a page: every fetch or
// mutation error ends here (or at renderNotFound), never in a hung page.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	util.LoggerFromContext(r.Context()).Warn("page error",
		"path", r.URL.Path, "status", status, "message", message)
	s.render(w, r, status, "error.html", viewData{
		Title:   "Something went wrong",
		Session: s.session(r),
		Data:    message,
	})
}

func (s *Server) renderNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "not_found.html", viewData{
		Title:   "Not found",
		Session: s.session(r),
	})
}

// allowLoginRate applies the per-IP login limiter. With no limiter
// configured every attempt passes.
func (s *Server) allowLoginRate(w http.ResponseWriter, r *http.Request) bool {
	if s.loginLimiter == nil {
		return true
	}
	if s.loginLimiter.Allow(util.ClientIP(r, s.trustedProxies)) {
		return true
	}
	retry := int(s.loginLimiter.RetryAfter().Seconds()) + 1
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	s.renderError(w, r, http.StatusTooManyRequests, "Too many login attempts, try again shortly")
	return false
}

// withMetrics records a request duration histogram per method, route
// pattern, and status.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RequestDuration.
			WithLabelValues(r.Method, routeLabel(r.URL.Path), strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

var staticRoutes = map[string]struct{}{
	"/": {}, "/healthz": {}, "/metrics": {},
	"/login": {}, "/logout": {}, "/register": {},
	"/profile": {}, "/update-user": {}, "/all-users": {},
	"/all-blogs": {}, "/create-blog": {}, "/user-blogs": {},
	"/upload": {}, "/news": {},
}

// routeLabel collapses entity ids so metric label cardinality stays bounded.
func routeLabel(path string) string {
	if _, ok := staticRoutes[path]; ok {
		return path
	}
	switch {
	case strings.HasPrefix(path, "/get-blog/"):
		if strings.HasSuffix(path, "/comments") {
			return "/get-blog/{id}/comments"
		}
		return "/get-blog/{id}"
	case strings.HasPrefix(path, "/delete-blog/"):
		return "/delete-blog/{id}"
	case strings.HasPrefix(path, "/blog-details/"):
		return "/blog-details/{id}"
	}
	return "other"
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 10 * 1024 * 1024
	}
	return value
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

func (s *Server) isExtensionAllowed(filename string) bool {
	if len(s.allowedExtensions) == 0 {
		return true
	}
	_, ok := s.allowedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}
