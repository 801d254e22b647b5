package enums

import "fmt"

// PaymentProvider names the card backend that owns a payment row.
type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
	PaymentProviderSquare PaymentProvider = "square"
	PaymentProviderDemo   PaymentProvider = "demo"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderStripe,
	PaymentProviderSquare,
	PaymentProviderDemo,
}

func (p PaymentProvider) String() string {
	return string(p)
}

func (p PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

func ParsePaymentProvider(value string) (PaymentProvider, error) {
	for _, candidate := range validPaymentProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
