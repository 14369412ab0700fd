package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/granito/portfolio/internal/content"
	"github.com/granito/portfolio/internal/db"
	"github.com/granito/portfolio/internal/service"
	"github.com/granito/portfolio/internal/storage/jsonfile"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEnv struct {
	api      *API
	engine   *gin.Engine
	visitors *service.VisitorTracker
	contacts *service.ContactService
	clock    *fixedClock
	dataDir  string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupHandlerTest(t *testing.T, opts Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dataDir := t.TempDir()
	clock := &fixedClock{now: time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC)}
	logger := discardLogger()

	visitors := service.NewVisitorTracker(jsonfile.New[db.VisitorEvent](filepath.Join(dataDir, "visitors.json")), 100, logger).WithClock(clock.Now)
	contacts := service.NewContactService(jsonfile.New[db.ContactMessage](filepath.Join(dataDir, "contacts.json")), logger).WithClock(clock.Now)
	auth, err := service.NewAdminAuth("admin", "s3cret", "")
	if err != nil {
		t.Fatalf("failed to create admin auth: %v", err)
	}
	site, err := content.Load("")
	if err != nil {
		t.Fatalf("failed to load content: %v", err)
	}

	if opts.TrackedPaths == nil {
		opts.TrackedPaths = []string{"/", "/about", "/blog/:id"}
	}
	api := NewAPI(visitors, contacts, auth, site, logger, opts)
	api.now = clock.Now

	return &testEnv{
		api:      api,
		engine:   newTestEngine(api),
		visitors: visitors,
		contacts: contacts,
		clock:    clock,
		dataDir:  dataDir,
	}
}

func newTestEngine(api *API) *gin.Engine {
	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))

	public := r.Group("")
	public.Use(api.TrackVisits())
	public.GET("/", api.ShowHome)
	public.GET("/about", api.ShowAbout)
	public.GET("/projects", api.ShowProjects)
	public.GET("/blog/:id", api.ShowPost)
	public.POST("/contact", api.SubmitContact)

	r.GET("/api/stats", api.GetStats)
	r.GET("/api/stats/daily", api.GetDailyStats)
	r.GET("/api/stats/hourly", api.GetHourlyStats)
	r.GET("/api/stats/pages", api.GetPageStats)
	r.GET("/healthz", api.HealthCheck)

	r.POST("/admin/login", api.Login)
	r.GET("/admin/logout", api.Logout)
	admin := r.Group("/admin/api")
	admin.Use(AuthRequired())
	admin.GET("/dashboard", api.ShowDashboard)
	admin.GET("/contacts", api.ListContacts)
	admin.DELETE("/contacts/:index", api.DeleteContact)
	admin.PUT("/contacts/:index/status", api.UpdateContactStatus)
	admin.POST("/visitors/cleanup", api.CleanupVisitors)
	admin.GET("/visitors/export", api.ExportVisitors)
	return r
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.engine.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T) []*http.Cookie {
	t.Helper()
	form := url.Values{"username": {"admin"}, "password": {"s3cret"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := e.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected login to succeed, got %d: %s", rr.Code, rr.Body.String())
	}
	cookies := rr.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("expected session cookie after login")
	}
	return cookies
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestTrackVisitsRecordsTrackedRoutes(t *testing.T) {
	env := setupHandlerTest(t, Options{TrustProxyHeaders: true})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	req.Header.Set("Referer", "https://example.com/")
	if rr := env.do(req); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	env.do(httptest.NewRequest(http.MethodGet, "/projects", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/blog/1", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/blog/9999", nil))

	events, err := env.visitors.Events(t.Context())
	if err != nil {
		t.Fatalf("failed to read events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 tracked events, got %d: %+v", len(events), events)
	}

	first := events[0]
	if first.IP != "203.0.113.7" || first.Page != "/" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if first.UserAgent != "Mozilla/5.0 test" || first.Referrer != "https://example.com/" {
		t.Fatalf("unexpected request context: %+v", first)
	}
	if first.Day != "2026-05-20" {
		t.Fatalf("expected day 2026-05-20, got %q", first.Day)
	}
	if events[1].Page != "/blog/1" {
		t.Fatalf("expected concrete blog path, got %q", events[1].Page)
	}
}

func TestTrackVisitsIgnoresProxyHeadersUnlessTrusted(t *testing.T) {
	env := setupHandlerTest(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/about", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	env.do(req)

	events, err := env.visitors.Events(t.Context())
	if err != nil {
		t.Fatalf("failed to read events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].IP != "192.0.2.1" {
		t.Fatalf("expected remote address, got %q", events[0].IP)
	}
	if events[0].UserAgent != UnknownValue {
		t.Fatalf("expected unknown user agent, got %q", events[0].UserAgent)
	}
}

func TestShowHomeIncludesVisitorCounts(t *testing.T) {
	env := setupHandlerTest(t, Options{})

	env.do(httptest.NewRequest(http.MethodGet, "/about", nil))
	rr := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	body := decodeBody(t, rr)
	// 首页计数在本次访问记录之前计算
	if body["visitor_count"] != float64(1) || body["today_count"] != float64(1) {
		t.Fatalf("unexpected counts: %v / %v", body["visitor_count"], body["today_count"])
	}
}

func TestSubmitContactJSON(t *testing.T) {
	env := setupHandlerTest(t, Options{})

	payload := `{"name":"Ada","email":"ada@example.com","message":"Hello **there**"}`
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := env.do(req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	messages, err := env.contacts.List(t.Context())
	if err != nil {
		t.Fatalf("failed to list contacts: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(messages))
	}
	if messages[0].Subject != "General Inquiry" {
		t.Fatalf("expected default subject, got %q", messages[0].Subject)
	}
	if messages[0].IP != "192.0.2.1" {
		t.Fatalf("expected client ip recorded, got %q", messages[0].IP)
	}
}

func TestSubmitContactForm(t *testing.T) {
	env := setupHandlerTest(t, Options{})

	form := url.Values{
		"name":    {"Grace"},
		"email":   {"grace@example.com"},
		"subject": {"Hiring"},
		"message": {"Let's talk"},
	}
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := env.do(req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSubmitContactValidation(t *testing.T) {
	env := setupHandlerTest(t, Options{})

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing name", body: `{"email":"a@example.com","message":"hi"}`, field: "name"},
		{name: "bad email", body: `{"name":"A","email":"not-an-email","message":"hi"}`, field: "email"},
		{name: "empty message", body: `{"name":"A","email":"a@example.com","message":"   "}`, field: "message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := env.do(req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			if body := decodeBody(t, rr); body["field"] != tt.field {
				t.Fatalf("expected field %q, got %v", tt.field, body["field"])
			}
		})
	}

	messages, _ := env.contacts.List(t.Context())
	if len(messages) != 0 {
		t.Fatalf("expected no stored contacts, got %d", len(messages))
	}
}

func TestSubmitContactStorageFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	// 目录无法作为日志文件读取
	contacts := service.NewContactService(jsonfile.New[db.ContactMessage](dir), discardLogger())
	visitors := service.NewVisitorTracker(jsonfile.New[db.VisitorEvent](filepath.Join(dir, "visitors.json")), 10, discardLogger())
	api := NewAPI(visitors, contacts, &service.AdminAuth{}, nil, discardLogger(), Options{})
	engine := newTestEngine(api)

	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{"name":"A","email":"a@example.com","message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestAdminRoutesRequireLogin(t *testing.T) {
	env := setupHandlerTest(t, Options{})

	rr := env.do(httptest.NewRequest(http.MethodGet, "/admin/api/dashboard", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	form := url.Values{"username": {"admin"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rr := env.do(req); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rr.Code)
	}

	cookies := env.login(t)
	rr = env.do(withCookies(httptest.NewRequest(http.MethodGet, "/admin/api/dashboard", nil), cookies))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after login, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["username"] != "admin" {
		t.Fatalf("expected username in dashboard, got %v", body["username"])
	}
}

func TestLoginDisabledWithoutCredentials(t *testing.T) {
	env := setupHandlerTest(t, Options{})
	env.api.auth = &service.AdminAuth{}

	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"username":"admin","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	if rr := env.do(req); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestContactAdminOperations(t *testing.T) {
	env := setupHandlerTest(t, Options{})
	for _, name := range []string{"First", "Second", "Third"} {
		if _, err := env.contacts.Submit(t.Context(), service.ContactInput{Name: name, Email: "x@example.com", Message: "hi " + name}); err != nil {
			t.Fatalf("failed to submit contact: %v", err)
		}
	}
	cookies := env.login(t)

	rr := env.do(withCookies(httptest.NewRequest(http.MethodGet, "/admin/api/contacts", nil), cookies))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["total"] != float64(3) {
		t.Fatalf("expected 3 contacts, got %v", body["total"])
	}

	rr = env.do(withCookies(httptest.NewRequest(http.MethodDelete, "/admin/api/contacts/0", nil), cookies))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected delete 200, got %d", rr.Code)
	}
	messages, _ := env.contacts.List(t.Context())
	if len(messages) != 2 || messages[0].Name != "Second" {
		t.Fatalf("expected remaining contacts to shift, got %+v", messages)
	}

	rr = env.do(withCookies(httptest.NewRequest(http.MethodDelete, "/admin/api/contacts/5", nil), cookies))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for out of range, got %d", rr.Code)
	}
	rr = env.do(withCookies(httptest.NewRequest(http.MethodDelete, "/admin/api/contacts/abc", nil), cookies))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad index, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/admin/api/contacts/1/status", strings.NewReader(`{"status":"Replied"}`))
	req.Header.Set("Content-Type", "application/json")
	if rr := env.do(withCookies(req, cookies)); rr.Code != http.StatusOK {
		t.Fatalf("expected status update 200, got %d", rr.Code)
	}
	messages, _ = env.contacts.List(t.Context())
	if messages[1].Status != db.ContactStatusReplied {
		t.Fatalf("expected replied status, got %q", messages[1].Status)
	}

	req = httptest.NewRequest(http.MethodPut, "/admin/api/contacts/1/status", strings.NewReader(`{"status":"bogus"}`))
	req.Header.Set("Content-Type", "application/json")
	if rr := env.do(withCookies(req, cookies)); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status, got %d", rr.Code)
	}
}

func TestStatsEndpoints(t *testing.T) {
	env := setupHandlerTest(t, Options{})
	env.clock.Set(time.Date(2026, 5, 18, 14, 0, 0, 0, time.UTC))
	env.do(httptest.NewRequest(http.MethodGet, "/about", nil))
	env.clock.Set(time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC))
	env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/", nil))

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	var stats service.VisitorStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Total != 3 || stats.Today != 2 || stats.ThisWeek != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Pages["/"] != 2 || stats.Pages["/about"] != 1 {
		t.Fatalf("unexpected page counts: %+v", stats.Pages)
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/api/stats/daily?days=7", nil))
	var daily struct {
		Days   int            `json:"days"`
		Series map[string]int `json:"series"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &daily); err != nil {
		t.Fatalf("failed to decode daily: %v", err)
	}
	if daily.Days != 7 || daily.Series["2026-05-18"] != 1 || daily.Series["2026-05-20"] != 2 {
		t.Fatalf("unexpected daily series: %+v", daily)
	}
	if _, ok := daily.Series["2026-05-19"]; ok {
		t.Fatalf("expected sparse series, got %+v", daily.Series)
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/api/stats/hourly", nil))
	var hourly struct {
		Hours []service.HourlyCount `json:"hours"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &hourly); err != nil {
		t.Fatalf("failed to decode hourly: %v", err)
	}
	if len(hourly.Hours) != 24 || hourly.Hours[9].Count != 2 || hourly.Hours[14].Count != 1 {
		t.Fatalf("unexpected hourly distribution: %+v", hourly.Hours)
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/api/stats/pages?limit=1", nil))
	var pages struct {
		Pages []service.PageCount `json:"pages"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &pages); err != nil {
		t.Fatalf("failed to decode pages: %v", err)
	}
	if len(pages.Pages) != 1 || pages.Pages[0].Page != "/" {
		t.Fatalf("unexpected top pages: %+v", pages.Pages)
	}
}

func TestCleanupAndExportVisitors(t *testing.T) {
	env := setupHandlerTest(t, Options{})
	cookies := env.login(t)

	rr := env.do(withCookies(httptest.NewRequest(http.MethodGet, "/admin/api/visitors/export", nil), cookies))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty export, got %d", rr.Code)
	}

	env.clock.Set(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	env.clock.Set(time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC))
	env.do(httptest.NewRequest(http.MethodGet, "/about", nil))

	req := httptest.NewRequest(http.MethodPost, "/admin/api/visitors/cleanup", bytes.NewBufferString(`{"days":30}`))
	req.Header.Set("Content-Type", "application/json")
	rr = env.do(withCookies(req, cookies))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected cleanup 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["removed"] != float64(1) {
		t.Fatalf("expected 1 removed, got %v", body["removed"])
	}

	rr = env.do(withCookies(httptest.NewRequest(http.MethodGet, "/admin/api/visitors/export", nil), cookies))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected export 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "visitors-20260520.csv") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 2 || lines[0] != "ip,user_agent,page,timestamp,day" {
		t.Fatalf("unexpected csv output: %q", rr.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	env := setupHandlerTest(t, Options{})
	if rr := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	env.api.opts.Ping = func() error { return errors.New("down") }
	if rr := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestTrackVisitsSurvivesStorageFailure(t *testing.T) {
	env := setupHandlerTest(t, Options{})
	// 把日志文件替换成目录，写入必然失败
	if err := os.MkdirAll(filepath.Join(env.dataDir, "visitors.json"), 0o755); err != nil {
		t.Fatalf("failed to create blocking dir: %v", err)
	}

	rr := env.do(httptest.NewRequest(http.MethodGet, "/about", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected page to render despite tracking failure, got %d", rr.Code)
	}
}

func TestCleanupVisitorsDaysParameter(t *testing.T) {
	env := setupHandlerTest(t, Options{RetentionDays: 90})
	cookies := env.login(t)

	env.clock.Set(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	env.clock.Set(time.Date(2026, 5, 19, 8, 0, 0, 0, time.UTC))
	env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	env.clock.Set(time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC))
	env.do(httptest.NewRequest(http.MethodGet, "/about", nil))

	cleanup := func(body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(http.MethodPost, "/admin/api/visitors/cleanup", nil)
		} else {
			req = httptest.NewRequest(http.MethodPost, "/admin/api/visitors/cleanup", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}
		return env.do(withCookies(req, cookies))
	}

	// 未指定天数时使用默认保留期，三月的访问仍在 90 天内
	rr := cleanup("")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["removed"] != float64(0) || body["retention_days"] != float64(90) {
		t.Fatalf("unexpected default cleanup result: %v", body)
	}

	if rr := cleanup(`{"days":-1}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative days, got %d", rr.Code)
	}

	rr = cleanup(`{"days":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["removed"] != float64(2) || body["retention_days"] != float64(0) {
		t.Fatalf("expected explicit zero to keep only today, got %v", body)
	}

	events, err := env.visitors.Events(t.Context())
	if err != nil {
		t.Fatalf("failed to read events: %v", err)
	}
	if len(events) != 1 || events[0].Day != "2026-05-20" {
		t.Fatalf("expected only today's event to remain, got %+v", events)
	}
}
