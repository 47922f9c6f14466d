package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/davidesantangelo/yll/internal/repository"
	"github.com/davidesantangelo/yll/internal/service"
)

const basicAuthRealm = `Basic realm="Links"`

// gonePage is served for expired links, mirroring a static 410 page
const gonePage = `<!DOCTYPE html>
<html>
<head><title>Link expired (410)</title></head>
<body>
<h1>This link has expired.</h1>
<p>The short link you followed is no longer available.</p>
</body>
</html>
`

// CreateLinkRequest carries the submitted fields. Presence and format
// checks belong to the validation pipeline, not to binding tags, so
// field errors come back accumulated instead of one at a time.
type CreateLinkRequest struct {
	URL       string     `json:"url"`
	Password  *string    `json:"password"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type LinkHandler struct {
	service *service.LinkService
	baseURL string
	logger  *zap.Logger
}

func NewLinkHandler(svc *service.LinkService, baseURL string) *LinkHandler {
	return &LinkHandler{
		service: svc,
		baseURL: baseURL,
		logger:  zap.L().With(zap.String("component", "LinkHandler")),
	}
}

// CreateLink handles POST /api/v1/links
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  "INVALID_JSON",
		})
		return
	}

	link, err := h.service.CreateLink(c.Request.Context(), service.CreateLinkRequest{
		URL:       req.URL,
		Password:  req.Password,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link.Representation(h.baseURL))
}

// GetLink handles GET /api/v1/links/:code
func (h *LinkHandler) GetLink(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Code parameter is required",
			Code:  "MISSING_CODE",
		})
		return
	}

	link, err := h.service.GetLink(c.Request.Context(), code)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, link.Representation(h.baseURL))
}

// Redirect handles GET /:code
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	var creds *service.Credentials
	if username, password, ok := c.Request.BasicAuth(); ok {
		creds = &service.Credentials{Username: username, Password: password}
	}

	resolution, err := h.service.Resolve(c.Request.Context(), code, creds)
	if err != nil {
		h.handleError(c, err)
		return
	}

	switch resolution.Outcome {
	case service.OutcomeRedirect:
		c.Redirect(http.StatusFound, resolution.URL)
	case service.OutcomeExpired:
		c.Data(http.StatusGone, "text/html; charset=utf-8", []byte(gonePage))
	case service.OutcomeAuthRequired, service.OutcomeAuthFailed:
		c.Header("WWW-Authenticate", basicAuthRealm)
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "Authentication required",
			Code:  "AUTH_REQUIRED",
		})
	case service.OutcomeNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
	}
}

func (h *LinkHandler) handleError(c *gin.Context, err error) {
	var validationErr *service.ValidationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"errors": validationErr.Fields.Messages(),
		})
	case errors.Is(err, repository.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
	case errors.Is(err, service.ErrCodeGenerationMax):
		h.logger.Error("Code generation max attempts reached", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Service temporarily unavailable",
			Code:  "CODE_GENERATION_FAILED",
		})
	case errors.Is(err, repository.ErrDatabaseError):
		h.logger.Error("Database error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Database error",
			Code:  "DB_ERROR",
		})
	default:
		h.logger.Error("Unexpected error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
