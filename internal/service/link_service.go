package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/davidesantangelo/yll/internal/code"
	"github.com/davidesantangelo/yll/internal/metrics"
	"github.com/davidesantangelo/yll/internal/model"
	"github.com/davidesantangelo/yll/internal/repository"
	"github.com/davidesantangelo/yll/internal/validate"
)

// Attempts to re-create after losing a uniqueness race to a concurrent
// insert. Each attempt already retries generation internally.
const maxCreateAttempts = 3

var ErrCodeGenerationMax = errors.New("failed to allocate a unique code")

// ValidationError carries accumulated field-level errors out of create
type ValidationError struct {
	Fields validate.FieldErrors
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields.Messages(), "; ")
}

// CreateLinkRequest holds the raw submitted fields. A non-nil Password
// marks the link protected, even when the string is empty.
type CreateLinkRequest struct {
	URL       string
	Password  *string
	ExpiresAt *time.Time
}

// Outcome is the terminal state of a redirect resolution
type Outcome int

const (
	OutcomeRedirect Outcome = iota
	OutcomeNotFound
	OutcomeExpired
	OutcomeAuthRequired
	OutcomeAuthFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRedirect:
		return "redirect"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	case OutcomeAuthRequired:
		return "auth_required"
	case OutcomeAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Resolution is the decided response for a redirect request. URL is set
// only for OutcomeRedirect.
type Resolution struct {
	Outcome Outcome
	URL     string
}

// Credentials are the optional HTTP Basic credentials on a redirect
// request
type Credentials struct {
	Username string
	Password string
}

// LinkService implements the link lifecycle: creation and redirect
// resolution
type LinkService struct {
	repo      repository.LinkRepository
	validator *validate.Validator
	logger    *zap.Logger
	now       func() time.Time
}

func NewLinkService(repo repository.LinkRepository, validator *validate.Validator) *LinkService {
	return &LinkService{
		repo:      repo,
		validator: validator,
		logger:    zap.L().With(zap.String("component", "LinkService")),
		now:       time.Now,
	}
}

// CreateLink validates and normalizes the submitted fields, hashes the
// credential when one is present, allocates a unique code and persists
// the link. Code collisions with concurrent creates are retried and
// never surface to the caller.
func (s *LinkService) CreateLink(ctx context.Context, req CreateLinkRequest) (*model.Link, error) {
	result, fieldErrs := s.validator.Validate(ctx, validate.Input{
		URL:       req.URL,
		ExpiresAt: req.ExpiresAt,
	})
	if fieldErrs.Any() {
		s.logger.Warn("Link validation failed", zap.Strings("errors", fieldErrs.Messages()))
		return nil, &ValidationError{Fields: fieldErrs}
	}

	digest := ""
	if req.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash credential: %w", err)
		}
		digest = string(hashed)
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		candidate, err := code.Generate(ctx, code.Alphabet, code.Length, s.repo.CodeExists)
		if err != nil {
			if errors.Is(err, code.ErrGenerationMax) {
				return nil, ErrCodeGenerationMax
			}
			return nil, err
		}

		link := &model.Link{
			Code:           candidate,
			URL:            result.URL,
			PasswordDigest: digest,
			ExpiresAt:      result.ExpiresAt,
		}

		err = s.repo.Create(ctx, link)
		if errors.Is(err, repository.ErrCodeTaken) {
			// Lost the race to a concurrent create, regenerate
			s.logger.Warn("Code taken by concurrent create, retrying",
				zap.String("code", candidate),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("Link created",
			zap.String("code", link.Code),
			zap.String("url", link.URL),
			zap.Bool("protected", link.Protected()))
		metrics.LinksCreatedTotal.Inc()
		return link, nil
	}

	return nil, ErrCodeGenerationMax
}

// GetLink fetches a link by code for the API lookup
func (s *LinkService) GetLink(ctx context.Context, linkCode string) (*model.Link, error) {
	return s.repo.FindByCode(ctx, linkCode)
}

// Resolve decides the redirect outcome for a code and optional Basic
// credentials. Clicks are incremented only on the final successful
// transition, exactly once per redirect.
func (s *LinkService) Resolve(ctx context.Context, linkCode string, creds *Credentials) (Resolution, error) {
	link, err := s.repo.FindByCode(ctx, linkCode)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return s.conclude(Resolution{Outcome: OutcomeNotFound}), nil
		}
		return Resolution{}, err
	}

	if link.Expired(s.now()) {
		return s.conclude(Resolution{Outcome: OutcomeExpired}), nil
	}

	if link.Protected() {
		if creds == nil {
			return s.conclude(Resolution{Outcome: OutcomeAuthRequired}), nil
		}
		if !s.authenticate(link, creds) {
			s.logger.Warn("Redirect authentication failed", zap.String("code", linkCode))
			return s.conclude(Resolution{Outcome: OutcomeAuthFailed}), nil
		}
	}

	if err := s.repo.IncrementClicks(ctx, link.Code); err != nil {
		return Resolution{}, err
	}

	return s.conclude(Resolution{Outcome: OutcomeRedirect, URL: link.URL}), nil
}

// authenticate checks Basic credentials: username must be the code
// itself, password must match the stored hash
func (s *LinkService) authenticate(link *model.Link, creds *Credentials) bool {
	if creds.Username != link.Code {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(link.PasswordDigest), []byte(creds.Password)) == nil
}

func (s *LinkService) conclude(res Resolution) Resolution {
	metrics.RedirectsTotal.WithLabelValues(res.Outcome.String()).Inc()
	return res
}
