package web

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"blogbeacon/internal/blogclient"
	"blogbeacon/internal/commentclient"
	"blogbeacon/internal/newsclient"
	"blogbeacon/internal/session"
	"blogbeacon/internal/userclient"
)

// fakeAPI is an in-memory stand-in for the upstream blog API. Requests is
// incremented for every call so tests can assert that client-side validation
// short-circuits before the network.
type fakeAPI struct {
	*httptest.Server
	Requests atomic.Int64
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/user/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"token":"tok-1","user":{"_id":"u1","username":"alice"}}`))
	})
	mux.HandleFunc("/api/v1/blog/all-blogs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"blogs":[
			{"_id":"b1","title":"oldest post","description":"a","category":"tech","createdAt":"2026-08-01T00:00:00Z","user":{"_id":"u1","username":"alice"}},
			{"_id":"b2","title":"newest post","description":"b","category":"sports","createdAt":"2026-08-20T00:00:00Z","user":{"_id":"u2","username":"bob"}},
			{"_id":"b3","title":"middle post","description":"c","category":"tech","createdAt":"2026-08-10T00:00:00Z","user":{"_id":"u1","username":"alice"}},
			{"_id":"b4","title":"early post","description":"d","category":"tech","createdAt":"2026-08-05T00:00:00Z","user":{"_id":"u1","username":"alice"}}
		]}`))
	})
	mux.HandleFunc("/api/v1/blog/get-blog/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/blog/get-blog/")
		if id == "missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":true,"blog":{"_id":%q,"title":"a post","description":"body","category":"tech","user":{"_id":"u1","username":"alice"}}}`, id)
	})
	mux.HandleFunc("/api/v1/comments/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"success":true,"comment":{"_id":"c1","content":"ok"}}`))
			return
		}
		w.Write([]byte(`{"success":true,"comments":[]}`))
	})
	mux.HandleFunc("/api/v1/blog/create-blog", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("/api/v1/blog/update-blog/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("/api/v1/blog/delete-blog/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("/api/v1/blog/user-blog/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"userBlog":{"blogs":[]}}`))
	})

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Server.Close)
	return f
}

type testApp struct {
	server *Server
	store  session.Store
}

func newTestApp(t *testing.T, apiURL, redisAddr string) *testApp {
	return newTestAppLimit(t, apiURL, redisAddr, 2)
}

func newTestAppLimit(t *testing.T, apiURL, redisAddr string, loginLimit int) *testApp {
	t.Helper()
	store := session.NewJWTStore("test-secret", time.Hour)
	srv, err := New(Config{
		Users:                   userclient.NewClient(apiURL),
		Blogs:                   blogclient.NewClient(apiURL),
		Comments:                commentclient.NewClient(apiURL),
		News:                    newsclient.NewClient(apiURL+"/news", "k"),
		Sessions:                store,
		Cookie:                  session.CookieOptions{Name: "bb_session"},
		SessionTTL:              time.Hour,
		NewsQuery:               "pizza",
		RedisAddr:               redisAddr,
		LoginRateLimitPerMinute: loginLimit,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testApp{server: srv, store: store}
}

// loginCookie mints a session cookie for the given user without going
// through the login form.
func (a *testApp) loginCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	sid, err := a.store.Save(context.Background(), session.Session{Token: "tok-1", UserID: userID})
	if err != nil {
		t.Fatalf("save session: %v", err)
	}
	return &http.Cookie{Name: "bb_session", Value: sid}
}

func TestHomeShowsThreeMostRecentPosts(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api.URL, "")

	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, title := range []string{"newest post", "middle post", "early post"} {
		if !strings.Contains(body, title) {
			t.Errorf("home is missing %q", title)
		}
	}
	if strings.Contains(body, "oldest post") {
		t.Error("home should only show the three most recent posts")
	}
	if idx1, idx2 := strings.Index(body, "newest post"), strings.Index(body, "middle post"); idx1 > idx2 {
		t.Error("posts should be ordered newest first")
	}
}

func TestAllBlogsRequiresLogin(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api.URL, "")

	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/all-blogs", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want redirect", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("redirect to %q, want /login", loc)
	}
}

func TestAllBlogsCategoryFilterAndPaging(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api.URL, "")
	cookie := app.loginCookie(t, "u1")

	req := httptest.NewRequest(http.MethodGet, "/all-blogs?category=tech", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "newest post") {
		t.Error("sports post should be filtered out of the tech tab")
	}
	for _, title := range []string{"oldest post", "middle post", "early post"} {
		if !strings.Contains(body, title) {
			t.Errorf("tech tab is missing %q", title)
		}
	}
}

func TestCreateBlogEmptyTitleMakesNoUpstreamCall(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api.URL, "")
	cookie := app.loginCookie(t, "u1")

	form := url.Values{}
	form.Set("title", "")
	form.Set("description", "some body text")
	form.Set("category", "tech")
	body, contentType := multipartForm(t, form)

	before := api.Requests.Load()
	req := httptest.NewRequest(http.MethodPost, "/create-blog", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := api.Requests.Load(); got != before {
		t.Fatalf("upstream saw %d extra requests, want 0", got-before)
	}
	page := rec.Body.String()
	if !strings.Contains(page, "required") {
		t.Error("expected a validation message")
	}
	if !strings.Contains(page, "some body text") {
		t.Error("entered values should survive the re-render")
	}
}

func TestBlogDetailOwnershipAffordances(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api.URL, "")

	get := func(cookie *http.Cookie) string {
		req := httptest.NewRequest(http.MethodGet, "/get-blog/b1", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		app.server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		return rec.Body.String()
	}

	ownerPage := get(app.loginCookie(t, "u1"))
	if !strings.Contains(ownerPage, "/delete-blog/b1") || !strings.Contains(ownerPage, "/blog-details/b1") {
		t.Error("owner should see delete and edit affordances")
	}

	otherPage := get(app.loginCookie(t, "u2"))
	if strings.Contains(otherPage, "/delete-blog/b1") || strings.Contains(otherPage, "/blog-details/b1") {
		t.Error("non-owner must not see delete or edit affordances")
	}

	anonPage := get(nil)
	if strings.Contains(anonPage, "/delete-blog/b1") {
		t.Error("anonymous visitor must not see the delete affordance")
	}
}

func TestDeleteBlogForbiddenForNonOwner(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api.URL, "")

	req := httptest.NewRequest(http.MethodPost, "/delete-blog/b1", nil)
	req.AddCookie(app.loginCookie(t, "u2"))
	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestBlogNotFoundRendersNotFoundPage(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api.URL, "")

	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get-blog/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Not found") {
		t.Error("expected the not-found page")
	}
}

func TestUpstreamFailureRendersTerminalErrorPage(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer broken.Close()
	app := newTestApp(t, broken.URL, "")

	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Something went wrong") {
		t.Error("expected the terminal error page")
	}
}

func TestLoginSetsSessionCookieAndLogoutClearsIt(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api.URL, "")

	form := url.Values{}
	form.Set("email", "a@b.c")
	form.Set("password", "pw")
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d", rec.Code)
	}
	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "bb_session" && c.Value != "" {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("login did not set a session cookie")
	}
	sess, ok, err := app.store.Get(context.Background(), sessionCookie.Value)
	if err != nil || !ok {
		t.Fatalf("session not resolvable: ok=%v err=%v", ok, err)
	}
	if sess.Token != "tok-1" || sess.UserID != "u1" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	out := httptest.NewRequest(http.MethodPost, "/logout", nil)
	out.AddCookie(sessionCookie)
	rec = httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, out)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("logout status = %d", rec.Code)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "bb_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("logout did not clear the session cookie")
	}
}

func TestLoginRateLimited(t *testing.T) {
	api := newFakeAPI(t)
	mr := miniredis.RunT(t)
	app := newTestApp(t, api.URL, mr.Addr())

	attempt := func() *httptest.ResponseRecorder {
		form := url.Values{}
		form.Set("email", "a@b.c")
		form.Set("password", "pw")
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "203.0.113.9:4711"
		rec := httptest.NewRecorder()
		app.server.Router().ServeHTTP(rec, req)
		return rec
	}

	attempt()
	attempt()
	rec := attempt()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}
}

func TestLoginRateLimitZeroDisablesLimiter(t *testing.T) {
	api := newFakeAPI(t)
	mr := miniredis.RunT(t)
	app := newTestAppLimit(t, api.URL, mr.Addr(), 0)

	for i := 0; i < 5; i++ {
		form := url.Values{}
		form.Set("email", "a@b.c")
		form.Set("password", "pw")
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "203.0.113.9:4711"
		rec := httptest.NewRecorder()
		app.server.Router().ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("attempt %d was rate limited with limit 0", i+1)
		}
	}
}

func TestEditBlogForbiddenForNonOwner(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api.URL, "")

	form := url.Values{}
	form.Set("title", "hijacked title")
	form.Set("description", "hijacked body")
	form.Set("category", "tech")
	body, contentType := multipartForm(t, form)

	req := httptest.NewRequest(http.MethodPost, "/blog-details/b1", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(app.loginCookie(t, "u2"))
	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestEditBlogOwnerCanUpdate(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api.URL, "")

	form := url.Values{}
	form.Set("title", "revised title")
	form.Set("description", "revised body")
	form.Set("category", "tech")
	body, contentType := multipartForm(t, form)

	req := httptest.NewRequest(http.MethodPost, "/blog-details/b1", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(app.loginCookie(t, "u1"))
	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want redirect", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/user-blogs" {
		t.Fatalf("redirect to %q, want /user-blogs", loc)
	}
}

func TestProfileFetchFailureClearsSession(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer broken.Close()
	app := newTestApp(t, broken.URL, "")

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.AddCookie(app.loginCookie(t, "u1"))
	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want redirect", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("redirect to %q, want /login", loc)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "bb_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("session cookie was not cleared")
	}
}

func TestEmptyCommentRejectedWithoutUpstreamCall(t *testing.T) {
	api := newFakeAPI(t)
	app := newTestApp(t, api.URL, "")
	cookie := app.loginCookie(t, "u1")

	form := url.Values{}
	form.Set("content", "   ")
	before := api.Requests.Load()
	req := httptest.NewRequest(http.MethodPost, "/get-blog/b1/comments", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	app.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want redirect", rec.Code)
	}
	if got := api.Requests.Load(); got != before {
		t.Fatalf("upstream saw %d extra requests, want 0", got-before)
	}
}

func multipartForm(t *testing.T, values url.Values) (io.Reader, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for key := range values {
		if err := w.WriteField(key, values.Get(key)); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}
