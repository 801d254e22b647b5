package enums

import "fmt"

// ProviderKind selects the wire protocol adapter for a fulfillment provider.
type ProviderKind string

const (
	ProviderKindPerfectPanel ProviderKind = "perfectpanel"
	ProviderKindJSONAPI      ProviderKind = "jsonapi"
)

var validProviderKinds = []ProviderKind{
	ProviderKindPerfectPanel,
	ProviderKindJSONAPI,
}

func (k ProviderKind) IsValid() bool {
	for _, candidate := range validProviderKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func ParseProviderKind(value string) (ProviderKind, error) {
	for _, candidate := range validProviderKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider kind %q", value)
}
