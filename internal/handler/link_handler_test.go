package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/davidesantangelo/yll/internal/handler"
	"github.com/davidesantangelo/yll/internal/middleware"
	"github.com/davidesantangelo/yll/internal/model"
	"github.com/davidesantangelo/yll/internal/repository"
	route "github.com/davidesantangelo/yll/internal/routes"
	"github.com/davidesantangelo/yll/internal/service"
	"github.com/davidesantangelo/yll/internal/validate"
)

const baseURL = "https://yll.test"

type memoryLinkRepository struct {
	mu    sync.Mutex
	links map[string]*model.Link
}

func newMemoryLinkRepository() *memoryLinkRepository {
	return &memoryLinkRepository{links: make(map[string]*model.Link)}
}

func (r *memoryLinkRepository) Create(ctx context.Context, link *model.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[link.Code]; ok {
		return repository.ErrCodeTaken
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	stored := *link
	r.links[link.Code] = &stored
	return nil
}

func (r *memoryLinkRepository) FindByCode(ctx context.Context, code string) (*model.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[code]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	found := *link
	return &found, nil
}

func (r *memoryLinkRepository) IncrementClicks(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[code]
	if !ok {
		return repository.ErrLinkNotFound
	}
	link.Clicks++
	return nil
}

func (r *memoryLinkRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.links[code]
	return ok, nil
}

type countingProber struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProber) Check(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil
}

func (p *countingProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fixedWindowCounter fakes the Redis counter with a constant response
type fixedWindowCounter struct {
	count int64
}

func (c fixedWindowCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return c.count, nil
}

type env struct {
	router *gin.Engine
	repo   *memoryLinkRepository
	prober *countingProber
}

func setupEnv(t *testing.T, counter middleware.WindowCounter) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	repo := newMemoryLinkRepository()
	prober := &countingProber{}
	svc := service.NewLinkService(repo, validate.NewValidator(prober))
	h := handler.NewLinkHandler(svc, baseURL)
	limiter := middleware.NewRateLimiter(counter, 10, 3*time.Minute)

	return &env{
		router: route.SetupRouter(h, limiter),
		repo:   repo,
		prober: prober,
	}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func postLink(t *testing.T, e *env, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/links", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func seedLink(t *testing.T, e *env, link *model.Link) {
	t.Helper()
	assert.NoError(t, e.repo.Create(context.Background(), link))
}

func TestCreateLink_Created(t *testing.T) {
	e := setupEnv(t, fixedWindowCounter{count: 1})

	w := postLink(t, e, `{"url": "HTTPS://Example.com/Page"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var rep model.Representation
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "https://example.com/Page", rep.OriginalURL)
	assert.Len(t, rep.Code, 8)
	assert.Equal(t, baseURL+"/"+rep.Code, rep.ShortURL)
	assert.Zero(t, rep.Clicks)
	assert.Nil(t, rep.ExpiresAt)
	assert.Equal(t, 1, e.prober.count())
}

func TestCreateLink_MalformedJSON(t *testing.T) {
	e := setupEnv(t, fixedWindowCounter{count: 1})

	w := postLink(t, e, `{"url": `)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_JSON")
}

func TestCreateLink_ValidationErrors(t *testing.T) {
	e := setupEnv(t, fixedWindowCounter{count: 1})

	w := postLink(t, e, `{"url": "http://example.com", "expires_at": "2020-01-01T00:00:00Z"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Errors []string `json:"errors"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{
		"url must use HTTPS protocol",
		"expires_at must be in the future",
	}, body.Errors)
	assert.Zero(t, e.prober.count())
}

func TestCreateLink_MissingURL(t *testing.T) {
	e := setupEnv(t, fixedWindowCounter{count: 1})

	w := postLink(t, e, `{}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "url is required")
}

func TestCreateLink_RateLimited(t *testing.T) {
	// Counter already over budget: request is rejected before any
	// validation work happens
	e := setupEnv(t, fixedWindowCounter{count: 11})

	w := postLink(t, e, `{"url": "https://example.com"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Zero(t, e.prober.count())
}

func TestGetLink_Found(t *testing.T) {
	e := setupEnv(t, fixedWindowCounter{count: 1})
	seedLink(t, e, &model.Link{Code: "abcd1234", URL: "https://example.com", Clicks: 3})

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/links/abcd1234", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var rep model.Representation
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "abcd1234", rep.Code)
	assert.Equal(t, int64(3), rep.Clicks)
}

func TestGetLink_NotFound(t *testing.T) {
	e := setupEnv(t, fixedWindowCounter{count: 1})

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/links/missing1", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error": "Link not found"}`, w.Body.String())
}

func TestRedirect_Success(t *testing.T) {
	e := setupEnv(t, fixedWindowCounter{count: 1})
	seedLink(t, e, &model.Link{Code: "abcd1234", URL: "https://example.com/target"})

	w := e.do(httptest.NewRequest(http.MethodGet, "/abcd1234", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/target", w.Header().Get("Location"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	stored, _ := e.repo.FindByCode(context.Background(), "abcd1234")
	assert.Equal(t, int64(1), stored.Clicks)
}

func TestRedirect_UnknownCode(t *testing.T) {
	e := setupEnv(t, fixedWindowCounter{count: 1})

	w := e.do(httptest.NewRequest(http.MethodGet, "/missing1", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error": "Link not found"}`, w.Body.String())
}

func TestRedirect_Expired(t *testing.T) {
	e := setupEnv(t, fixedWindowCounter{count: 1})
	past := time.Now().Add(-time.Hour)
	seedLink(t, e, &model.Link{Code: "abcd1234", URL: "https://example.com", ExpiresAt: &past})

	w := e.do(httptest.NewRequest(http.MethodGet, "/abcd1234", nil))

	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "expired")

	stored, _ := e.repo.FindByCode(context.Background(), "abcd1234")
	assert.Zero(t, stored.Clicks)
}

func TestRedirect_ProtectedChallenge(t *testing.T) {
	e := setupEnv(t, fixedWindowCounter{count: 1})
	digest, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	seedLink(t, e, &model.Link{Code: "abcd1234", URL: "https://example.com", PasswordDigest: string(digest)})

	// No credentials
	w := e.do(httptest.NewRequest(http.MethodGet, "/abcd1234", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Basic realm="Links"`, w.Header().Get("WWW-Authenticate"))

	// Wrong credentials
	req := httptest.NewRequest(http.MethodGet, "/abcd1234", nil)
	req.SetBasicAuth("abcd1234", "wrong")
	w = e.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	stored, _ := e.repo.FindByCode(context.Background(), "abcd1234")
	assert.Zero(t, stored.Clicks)

	// Matching credentials: username is the code, password matches
	req = httptest.NewRequest(http.MethodGet, "/abcd1234", nil)
	req.SetBasicAuth("abcd1234", "hunter2")
	w = e.do(req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Location"))

	stored, _ = e.repo.FindByCode(context.Background(), "abcd1234")
	assert.Equal(t, int64(1), stored.Clicks)
}

func TestHealthz(t *testing.T) {
	e := setupEnv(t, fixedWindowCounter{count: 1})

	w := e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
