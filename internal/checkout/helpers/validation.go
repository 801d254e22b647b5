package helpers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/types"
)

// MaxTargetLinks bounds how many siblings one checkout may create.
const MaxTargetLinks = 20

const (
	linkKindProfile = "channel or profile"
	linkKindPost    = "video or post"
)

var profilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.|m\.)?youtube\.com/(channel/[A-Za-z0-9_-]+|c/[^/?#]+|user/[^/?#]+|@[^/?#]+)/?([?#].*)?$`),
	regexp.MustCompile(`^https?://(www\.)?instagram\.com/[A-Za-z0-9_.]+/?([?#].*)?$`),
	regexp.MustCompile(`^https?://(www\.)?tiktok\.com/@[A-Za-z0-9_.]+/?([?#].*)?$`),
	regexp.MustCompile(`^https?://(www\.)?(twitter|x)\.com/[A-Za-z0-9_]{1,15}/?([?#].*)?$`),
	regexp.MustCompile(`^https?://(www\.|m\.)?facebook\.com/[A-Za-z0-9.]+/?([?#].*)?$`),
}

var postPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.|m\.)?youtube\.com/(watch\?(.*&)?v=[A-Za-z0-9_-]{6,}|shorts/[A-Za-z0-9_-]{6,}|live/[A-Za-z0-9_-]{6,}).*$`),
	regexp.MustCompile(`^https?://youtu\.be/[A-Za-z0-9_-]{6,}.*$`),
	regexp.MustCompile(`^https?://(www\.)?instagram\.com/(p|reel|tv)/[A-Za-z0-9_-]+/?([?#].*)?$`),
	regexp.MustCompile(`^https?://(www\.)?tiktok\.com/@[A-Za-z0-9_.]+/video/[0-9]+.*$`),
	regexp.MustCompile(`^https?://(vm|vt)\.tiktok\.com/[A-Za-z0-9]+/?$`),
	regexp.MustCompile(`^https?://(www\.)?(twitter|x)\.com/[A-Za-z0-9_]{1,15}/status/[0-9]+.*$`),
	regexp.MustCompile(`^https?://(www\.|m\.)?facebook\.com/(.+/(posts|videos)/[A-Za-z0-9._-]+|watch/?\?v=[0-9]+|reel/[0-9]+).*$`),
}

// linkRules maps each metric type to the URL shape it is delivered to.
// Metric types missing from the table fall back to the post patterns.
var linkRules = map[enums.MetricType]string{
	enums.MetricSubscribers: linkKindProfile,
	enums.MetricFollowers:   linkKindProfile,
	enums.MetricViews:       linkKindPost,
	enums.MetricWatchTime:   linkKindPost,
	enums.MetricComments:    linkKindPost,
	enums.MetricLikes:       linkKindPost,
	enums.MetricShares:      linkKindPost,
}

// ValidateTargetLink checks that link matches the shape metric needs.
func ValidateTargetLink(metric enums.MetricType, link string) error {
	link = strings.TrimSpace(link)
	if link == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "target link is required")
	}
	kind, ok := linkRules[metric]
	if !ok {
		kind = linkKindPost
	}
	patterns := postPatterns
	if kind == linkKindProfile {
		patterns = profilePatterns
	}
	for _, pattern := range patterns {
		if pattern.MatchString(link) {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("target link must be a %s URL for %s", kind, metric)).
		WithDetails(map[string]any{"target_link": link})
}

// ValidateQuantity enforces the package bounds. The message carries both
// bounds so the client can correct the request.
func ValidateQuantity(pkg *models.Package, quantity int) error {
	if quantity < pkg.MinQuantity || quantity > pkg.MaxQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("quantity must be between %d and %d", pkg.MinQuantity, pkg.MaxQuantity)).
			WithDetails(map[string]any{"min_quantity": pkg.MinQuantity, "max_quantity": pkg.MaxQuantity})
	}
	return nil
}

// NormalizeTargetLinks turns the checkout's link fields into the list of
// siblings to create. A single target_link yields one entry carrying the
// full quantity; target_links quantities must add up to quantity.
func NormalizeTargetLinks(metric enums.MetricType, quantity int, single string, multi types.TargetLinks) (types.TargetLinks, error) {
	single = strings.TrimSpace(single)
	switch {
	case len(multi) == 0 && single == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target_link or target_links is required")
	case len(multi) == 0:
		if err := ValidateTargetLink(metric, single); err != nil {
			return nil, err
		}
		return types.TargetLinks{{URL: single, Quantity: quantity}}, nil
	case len(multi) > MaxTargetLinks:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d target links are allowed", MaxTargetLinks))
	}

	out := make(types.TargetLinks, 0, len(multi))
	for i, link := range multi {
		if link.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("target_links[%d].quantity must be positive", i))
		}
		url := strings.TrimSpace(link.URL)
		if err := ValidateTargetLink(metric, url); err != nil {
			return nil, err
		}
		out = append(out, types.TargetLink{URL: url, Quantity: link.Quantity})
	}
	if sum := out.TotalQuantity(); sum != quantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("target_links quantities add up to %d, expected %d", sum, quantity))
	}
	return out, nil
}
