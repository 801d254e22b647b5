package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/internal/catalog"
	"github.com/angelmondragon/smm-storefront/internal/checkout/helpers"
	"github.com/angelmondragon/smm-storefront/internal/coupons"
	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/pricing"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/payloads"
	"github.com/angelmondragon/smm-storefront/pkg/settings"
	"github.com/angelmondragon/smm-storefront/pkg/types"
)

// maxNumberAttempts bounds how often a checkout is retried after an order
// number collision.
const maxNumberAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type couponLookup interface {
	Lookup(ctx context.Context, code string) (*models.Coupon, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type numberFunc func(prefix string, now time.Time) (string, error)

// Input is the checkout request. There is deliberately no price field; the
// amount is always computed here.
type Input struct {
	PackageID   uint64
	Quantity    int
	TargetLink  string
	TargetLinks types.TargetLinks
	CouponCode  string
	GuestEmail  string
	UserID      *uint64
}

// QuoteInput prices a checkout without persisting anything.
type QuoteInput struct {
	PackageID  uint64
	Quantity   int
	CouponCode string
}

// Placement is the outcome of a checkout: every created sibling, first
// sibling first, plus the quote they were priced from.
type Placement struct {
	Orders []models.Order
	Quote  pricing.Quote
}

// First returns sibling 0.
func (p *Placement) First() *models.Order {
	if p == nil || len(p.Orders) == 0 {
		return nil
	}
	return &p.Orders[0]
}

type Service interface {
	CreateOrder(ctx context.Context, input Input) (*models.Order, error)
	Place(ctx context.Context, input Input) (*Placement, error)
	Quote(ctx context.Context, input QuoteInput) (pricing.Quote, error)
}

type ServiceParams struct {
	Tx            txRunner
	Catalog       catalog.Repository
	Orders        orders.Repository
	CouponRepo    coupons.Repository
	Coupons       couponLookup
	Outbox        outboxPublisher
	Settings      settings.Store
	DefaultPrefix string
	Logger        *logger.Logger
}

type service struct {
	tx            txRunner
	catalog       catalog.Repository
	orders        orders.Repository
	couponRepo    coupons.Repository
	coupons       couponLookup
	outbox        outboxPublisher
	settings      settings.Store
	defaultPrefix string
	logg          *logger.Logger
	now           func() time.Time
	nextNumber    numberFunc
}

// NewService builds the order builder.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.CouponRepo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon lookup required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	prefix := strings.TrimSpace(params.DefaultPrefix)
	if prefix == "" {
		prefix = helpers.DefaultOrderPrefix
	}
	return &service{
		tx:            params.Tx,
		catalog:       params.Catalog,
		orders:        params.Orders,
		couponRepo:    params.CouponRepo,
		coupons:       params.Coupons,
		outbox:        params.Outbox,
		settings:      params.Settings,
		defaultPrefix: prefix,
		logg:          params.Logger,
		now:           time.Now,
		nextNumber:    helpers.NewOrderNumber,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input Input) (*models.Order, error) {
	placement, err := s.Place(ctx, input)
	if err != nil {
		return nil, err
	}
	return placement.First(), nil
}

func (s *service) Quote(ctx context.Context, input QuoteInput) (pricing.Quote, error) {
	pkg, err := s.loadPackage(ctx, input.PackageID)
	if err != nil {
		return pricing.Quote{}, err
	}
	if err := helpers.ValidateQuantity(pkg, input.Quantity); err != nil {
		return pricing.Quote{}, err
	}
	coupon, err := s.coupons.Lookup(ctx, input.CouponCode)
	if err != nil {
		return pricing.Quote{}, err
	}
	return pricing.Calculate(*pkg, input.Quantity, coupon, s.now()), nil
}

// Place validates the request, prices it and persists one order per target
// link in a single transaction. Siblings share the order number and a
// group id; only sibling 0 references the coupon.
func (s *service) Place(ctx context.Context, input Input) (*Placement, error) {
	guestEmail, err := validateBuyer(input)
	if err != nil {
		return nil, err
	}
	pkg, err := s.loadPackage(ctx, input.PackageID)
	if err != nil {
		return nil, err
	}
	if err := helpers.ValidateQuantity(pkg, input.Quantity); err != nil {
		return nil, err
	}
	links, err := helpers.NormalizeTargetLinks(pkg.Service.MetricType, input.Quantity, input.TargetLink, input.TargetLinks)
	if err != nil {
		return nil, err
	}
	coupon, err := s.coupons.Lookup(ctx, input.CouponCode)
	if err != nil {
		return nil, err
	}
	prefix := settings.GetOr(ctx, s.settings, settings.KeyOrderPrefix, s.defaultPrefix)

	draft := orderDraft{
		pkg:        pkg,
		quantity:   input.Quantity,
		links:      links,
		coupon:     coupon,
		guestEmail: guestEmail,
		userID:     input.UserID,
		prefix:     prefix,
	}

	var placement *Placement
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		placement, err = s.persist(ctx, draft)
		if err == nil {
			break
		}
		if !pkgerrors.IsUniqueViolation(err, "") || attempt == maxNumberAttempts {
			return nil, mapPersistError(err)
		}
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "order number collision, retrying")
	}

	first := placement.First()
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, first.ID), map[string]any{
		"order_number": first.OrderNumber,
		"siblings":     len(placement.Orders),
		"total":        placement.Quote.Total.StringFixed(2),
		"coupon":       placement.Quote.CouponCode(),
	})
	s.logg.Info(logCtx, "order created")
	return placement, nil
}

type orderDraft struct {
	pkg        *models.Package
	quantity   int
	links      types.TargetLinks
	coupon     *models.Coupon
	guestEmail *string
	userID     *uint64
	prefix     string
}

func (s *service) persist(ctx context.Context, draft orderDraft) (*Placement, error) {
	now := s.now()
	number, err := s.nextNumber(draft.prefix, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}

	placement := &Placement{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		couponRepo := s.couponRepo.WithTx(tx)

		quote := pricing.Calculate(*draft.pkg, draft.quantity, draft.coupon, now)
		if quote.Coupon != nil {
			if err := couponRepo.IncrementUsage(ctx, quote.Coupon.ID); err != nil {
				if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					return err
				}
				// The last use went to a concurrent checkout; price without it.
				quote = pricing.Calculate(*draft.pkg, draft.quantity, nil, now)
			}
		}

		var groupID *uuid.UUID
		if len(draft.links) > 1 {
			id := uuid.New()
			groupID = &id
		}

		created := make([]models.Order, 0, len(draft.links))
		for i, link := range draft.links {
			order := models.Order{
				OrderNumber:   number,
				SiblingIndex:  i,
				GroupID:       groupID,
				PackageID:     draft.pkg.ID,
				UserID:        draft.userID,
				GuestEmail:    draft.guestEmail,
				Amount:        quote.Total,
				Discount:      quote.Discount,
				TargetLink:    link.URL,
				TargetLinks:   draft.links,
				Quantity:      link.Quantity,
				Status:        enums.OrderStatusPending,
				PaymentStatus: enums.PaymentStatusPending,
			}
			if groupID != nil {
				order.Amount = helpers.ProportionalShare(quote.Total, link.Quantity, draft.quantity)
				order.Discount = helpers.ProportionalShare(quote.Discount, link.Quantity, draft.quantity)
			}
			if i == 0 && quote.Coupon != nil {
				couponID := quote.Coupon.ID
				order.CouponID = &couponID
			}
			if err := ordersRepo.Create(ctx, &order); err != nil {
				return err
			}
			created = append(created, order)
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   fmt.Sprintf("%d", created[0].ID),
			Data: payloads.OrderCreatedEvent{
				OrderNumber: number,
				GroupID:     groupID,
				OrderIDs:    orders.IDs(created),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		placement.Orders = created
		placement.Quote = quote
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placement, nil
}

func (s *service) loadPackage(ctx context.Context, id uint64) (*models.Package, error) {
	if id == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "package_id is required")
	}
	pkg, err := s.catalog.FindPackage(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load package")
	}
	if !pkg.Active || pkg.Service == nil || !pkg.Service.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "package is not available")
	}
	return pkg, nil
}

// validateBuyer enforces that exactly one of guest_email and user_id is set.
func validateBuyer(input Input) (*string, error) {
	email := strings.TrimSpace(input.GuestEmail)
	switch {
	case email == "" && input.UserID == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest_email or user_id is required")
	case email != "" && input.UserID != nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provide either guest_email or user_id, not both")
	case input.UserID != nil:
		if *input.UserID == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id must be positive")
		}
		return nil, nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest_email is not a valid address")
	}
	return &email, nil
}

func mapPersistError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if pkgerrors.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "could not allocate an order number")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
}
