package testdb

import (
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
)

// SeedPackage inserts an active service of metric plus one active package
// priced price for quantity units. mutate runs before the package insert.
func SeedPackage(t testing.TB, conn *gorm.DB, metric enums.MetricType, price string, quantity int, mutate func(*models.Package)) *models.Package {
	t.Helper()
	svc := &models.Service{
		Name:       "Test " + string(metric),
		Platform:   "youtube",
		MetricType: metric,
		Active:     true,
	}
	if err := conn.Create(svc).Error; err != nil {
		t.Fatalf("seed service: %v", err)
	}
	pkg := &models.Package{
		ServiceID:   svc.ID,
		Name:        "Test package",
		Quantity:    quantity,
		Price:       decimal.RequireFromString(price),
		MinQuantity: 1,
		MaxQuantity: quantity * 10,
		Active:      true,
	}
	if mutate != nil {
		mutate(pkg)
	}
	if err := conn.Omit("Service").Create(pkg).Error; err != nil {
		t.Fatalf("seed package: %v", err)
	}
	pkg.Service = svc
	return pkg
}

// SeedProvider inserts a provider and links pkg to it under serviceID.
func SeedProvider(t testing.TB, conn *gorm.DB, pkg *models.Package, kind enums.ProviderKind, baseURL, serviceID string) *models.Provider {
	t.Helper()
	provider := &models.Provider{
		Name:    "Test provider",
		Kind:    kind,
		BaseURL: baseURL,
		APIKey:  "test-key",
		Active:  true,
	}
	if err := conn.Create(provider).Error; err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	if pkg != nil {
		updates := map[string]any{"provider_id": provider.ID, "provider_service_id": serviceID}
		if err := conn.Model(&models.Package{}).Where("id = ?", pkg.ID).Updates(updates).Error; err != nil {
			t.Fatalf("link package: %v", err)
		}
		pkg.ProviderID = &provider.ID
		pkg.ProviderServiceID = &serviceID
	}
	return provider
}

// SeedOrder inserts a pending guest order for pkg. mutate runs before insert.
func SeedOrder(t testing.TB, conn *gorm.DB, pkg *models.Package, number string, mutate func(*models.Order)) *models.Order {
	t.Helper()
	email := "buyer@example.com"
	order := &models.Order{
		OrderNumber:   number,
		PackageID:     pkg.ID,
		GuestEmail:    &email,
		Amount:        pkg.Price,
		Discount:      decimal.Zero,
		TargetLink:    "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Quantity:      pkg.Quantity,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
	}
	if mutate != nil {
		mutate(order)
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// SeedPayment inserts a payment row for order.
func SeedPayment(t testing.TB, conn *gorm.DB, order *models.Order, provider enums.PaymentProvider, intentID string, status enums.PaymentStatus) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		OrderID:  order.ID,
		Provider: provider,
		Amount:   order.Amount,
		Currency: "usd",
		Status:   status,
	}
	if intentID != "" {
		payment.ProviderIntentID = &intentID
	}
	if err := conn.Create(payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}
