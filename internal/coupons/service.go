package coupons

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

var hundred = decimal.NewFromInt(100)

// CreateInput is the admin payload for a new coupon.
type CreateInput struct {
	Code         string
	DiscountType enums.DiscountType
	Value        decimal.Decimal
	MinOrder     *decimal.Decimal
	MaxDiscount  *decimal.Decimal
	UsageLimit   *int
	StartsAt     *time.Time
	ExpiresAt    *time.Time
	Active       *bool
}

// DefaultIndexMaxAge bounds how long a bloom snapshot may answer "unknown
// code" on its own. Codes inserted outside the service become visible once
// the snapshot ages out.
const DefaultIndexMaxAge = time.Minute

type ServiceParams struct {
	Repo        Repository
	Index       *Index
	Generations Generations
	MaxAge      time.Duration
	Logger      *logger.Logger
	Now         func() time.Time
}

type Service struct {
	repo     Repository
	index    *Index
	gens     Generations
	maxAge   time.Duration
	logg     *logger.Logger
	now      func() time.Time
	reloadMu sync.Mutex
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon repository required")
	}
	index := params.Index
	if index == nil {
		index = NewIndex()
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultIndexMaxAge
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   params.Repo,
		index:  index,
		gens:   params.Generations,
		maxAge: maxAge,
		logg:   params.Logger,
		now:    now,
	}, nil
}

// WarmIndex rebuilds the bloom index from every known code.
func (s *Service) WarmIndex(ctx context.Context) error {
	var generation int64
	if s.gens != nil {
		gen, err := s.gens.Current(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read coupon generation")
		}
		generation = gen
	}
	return s.rebuild(ctx, generation)
}

// rebuild must read the generation before listing codes: a code created in
// between then bumps past the recorded generation and forces another rebuild.
func (s *Service) rebuild(ctx context.Context, generation int64) error {
	codes, err := s.repo.ListCodes(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupon codes")
	}
	s.index.Replace(codes, generation, s.now())
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"coupon_codes":      len(codes),
			"coupon_generation": generation,
		}), "coupon index warmed")
	}
	return nil
}

// indexCurrent reports whether a bloom miss can be trusted. The snapshot is
// rebuilt when another replica has issued a coupon since it was taken or when
// it has aged past maxAge. Without a shared generation a miss is never
// trusted.
func (s *Service) indexCurrent(ctx context.Context) (bool, error) {
	if s.gens == nil {
		return false, nil
	}
	generation, err := s.gens.Current(ctx)
	if err != nil {
		return false, err
	}
	if s.index.Current(generation, s.now(), s.maxAge) {
		return true, nil
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if s.index.Current(generation, s.now(), s.maxAge) {
		return true, nil
	}
	if err := s.rebuild(ctx, generation); err != nil {
		return false, err
	}
	return true, nil
}

// Lookup returns the coupon for code, or nil when the code is empty or
// unknown. Validity is not checked here.
func (s *Service) Lookup(ctx context.Context, code string) (*models.Coupon, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	if !s.index.MayContain(code) {
		current, err := s.indexCurrent(ctx)
		switch {
		case err != nil:
			if s.logg != nil {
				s.logg.Error(ctx, "coupon index refresh failed; reading database", err)
			}
		case current && !s.index.MayContain(code):
			return nil, nil
		}
	}
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	s.index.Add(coupon.Code)
	return coupon, nil
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Coupon, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	coupon := &models.Coupon{
		Code:         strings.ToUpper(strings.TrimSpace(input.Code)),
		DiscountType: input.DiscountType,
		Value:        input.Value.Round(2),
		UsageLimit:   input.UsageLimit,
		StartsAt:     input.StartsAt,
		ExpiresAt:    input.ExpiresAt,
		Active:       true,
	}
	if input.MinOrder != nil {
		coupon.MinOrder = decimal.NewNullDecimal(input.MinOrder.Round(2))
	}
	if input.MaxDiscount != nil {
		coupon.MaxDiscount = decimal.NewNullDecimal(input.MaxDiscount.Round(2))
	}
	if input.Active != nil {
		coupon.Active = *input.Active
	}

	if err := s.repo.Create(ctx, coupon); err != nil {
		if pkgerrors.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	s.index.Add(coupon.Code)
	if s.gens != nil {
		if _, err := s.gens.Bump(ctx); err != nil && s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "coupon_code", coupon.Code), "coupon generation bump failed; other replicas see the code after the index ages out", err)
		}
	}
	return coupon, nil
}

func validateCreate(input CreateInput) error {
	if !codePattern.MatchString(strings.TrimSpace(input.Code)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon code must be 3-32 letters, digits, '-' or '_'")
	}
	if !input.DiscountType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount_type must be percentage or fixed")
	}
	if !input.Value.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "value must be positive")
	}
	if input.DiscountType == enums.DiscountTypePercentage && input.Value.GreaterThan(hundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage value cannot exceed 100")
	}
	if input.MinOrder != nil && input.MinOrder.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "min_order cannot be negative")
	}
	if input.MaxDiscount != nil && !input.MaxDiscount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "max_discount must be positive")
	}
	if input.UsageLimit != nil && *input.UsageLimit < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "usage_limit must be at least 1")
	}
	if input.StartsAt != nil && input.ExpiresAt != nil && !input.ExpiresAt.After(*input.StartsAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "expires_at must be after starts_at")
	}
	return nil
}
