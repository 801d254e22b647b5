package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgAuth "github.com/angelmondragon/smm-storefront/pkg/auth"
	"github.com/angelmondragon/smm-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service exchanges operator credentials for an admin bearer token.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
}

type ServiceParams struct {
	Admin  config.AdminConfig
	JWT    config.JWTConfig
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	admin config.AdminConfig
	jwt   config.JWTConfig
	logg  *logger.Logger
	now   func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Admin.TokenTTL <= 0 {
		return nil, errors.New("admin token ttl must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		admin: params.Admin,
		jwt:   params.JWT,
		logg:  params.Logger,
		now:   now,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if strings.TrimSpace(s.admin.PasswordHash) == "" || strings.TrimSpace(s.admin.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "admin login is not configured")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	// Verify even on an email mismatch so both failures cost the same.
	ok, err := security.VerifyPassword(req.Password, s.admin.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "admin password hash is malformed")
	}
	if !ok || email != strings.ToLower(strings.TrimSpace(s.admin.Email)) {
		s.logg.Warn(s.logg.WithField(ctx, "email", email), "admin login rejected")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	issuedAt := s.now().UTC()
	token, err := pkgAuth.MintAccessToken(s.jwt, issuedAt, s.admin.TokenTTL, email, pkgAuth.RoleAdmin)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint admin token")
	}
	s.logg.Info(s.logg.WithActor(ctx, email), "admin login succeeded")
	return &LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   issuedAt.Add(s.admin.TokenTTL),
	}, nil
}
