package helpers

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/types"
)

func TestValidateTargetLinkProfiles(t *testing.T) {
	t.Parallel()
	valid := []string{
		"https://www.youtube.com/@somecreator",
		"https://youtube.com/channel/UC1234567890abcdef",
		"https://www.instagram.com/some.account/",
		"https://www.tiktok.com/@dancer_01",
		"https://x.com/jack",
		"https://twitter.com/jack?lang=en",
	}
	for _, link := range valid {
		assert.NoError(t, ValidateTargetLink(enums.MetricSubscribers, link), link)
		assert.NoError(t, ValidateTargetLink(enums.MetricFollowers, link), link)
	}

	err := ValidateTargetLink(enums.MetricSubscribers, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestValidateTargetLinkPosts(t *testing.T) {
	t.Parallel()
	valid := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/abcdefghijk",
		"https://www.instagram.com/p/Cx1234abc/",
		"https://www.instagram.com/reel/Cx1234abc",
		"https://www.tiktok.com/@dancer_01/video/7234567890123456789",
		"https://x.com/jack/status/20",
		"https://www.facebook.com/somepage/posts/12345",
	}
	for _, metric := range []enums.MetricType{enums.MetricViews, enums.MetricWatchTime, enums.MetricComments, enums.MetricLikes, enums.MetricShares} {
		for _, link := range valid {
			assert.NoError(t, ValidateTargetLink(metric, link), "%s %s", metric, link)
		}
	}

	for _, link := range []string{"", "not a url", "https://www.youtube.com/@somecreator", "ftp://youtu.be/dQw4w9WgXcQ"} {
		assert.Error(t, ValidateTargetLink(enums.MetricViews, link), link)
	}
}

func TestValidateTargetLinkUnknownMetricUsesPostPatterns(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateTargetLink(enums.MetricType("saves"), "https://youtu.be/dQw4w9WgXcQ"))
	assert.Error(t, ValidateTargetLink(enums.MetricType("saves"), "https://www.tiktok.com/@dancer_01"))
}

func TestValidateQuantity(t *testing.T) {
	t.Parallel()
	pkg := &models.Package{MinQuantity: 100, MaxQuantity: 5000}
	assert.NoError(t, ValidateQuantity(pkg, 100))
	assert.NoError(t, ValidateQuantity(pkg, 5000))

	err := ValidateQuantity(pkg, 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "100")
	assert.Contains(t, err.Error(), "5000")
	assert.Error(t, ValidateQuantity(pkg, 5001))
}

func TestNormalizeTargetLinks(t *testing.T) {
	t.Parallel()
	video := "https://youtu.be/dQw4w9WgXcQ"
	other := "https://youtu.be/9bZkp7q19f0"

	links, err := NormalizeTargetLinks(enums.MetricViews, 1000, " "+video+" ", nil)
	require.NoError(t, err)
	assert.Equal(t, types.TargetLinks{{URL: video, Quantity: 1000}}, links)

	links, err = NormalizeTargetLinks(enums.MetricViews, 1000, "", types.TargetLinks{{URL: video, Quantity: 700}, {URL: other, Quantity: 300}})
	require.NoError(t, err)
	assert.Len(t, links, 2)

	_, err = NormalizeTargetLinks(enums.MetricViews, 1000, "", types.TargetLinks{{URL: video, Quantity: 700}, {URL: other, Quantity: 200}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = NormalizeTargetLinks(enums.MetricViews, 1000, "", types.TargetLinks{{URL: video, Quantity: 1000}, {URL: other, Quantity: 0}})
	assert.Error(t, err)

	_, err = NormalizeTargetLinks(enums.MetricViews, 1000, "", nil)
	assert.Error(t, err)
}

func TestNewOrderNumberFormat(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	number, err := NewOrderNumber("smm", now)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^SMM-260301-[A-Z0-9]{6}$`), number)

	number, err = NewOrderNumber("", now)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^SMM-`), number)
}

func TestNewOrderNumberConcurrentUniqueness(t *testing.T) {
	t.Parallel()
	const total = 10000
	now := time.Now()

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, total)
		wg   sync.WaitGroup
	)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := NewOrderNumber("SMM", now)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[number] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, total)
}

func TestProportionalShare(t *testing.T) {
	t.Parallel()
	total := decimal.NewFromInt(100)
	assert.Equal(t, "70.00", ProportionalShare(total, 700, 1000).StringFixed(2))
	assert.Equal(t, "30.00", ProportionalShare(total, 300, 1000).StringFixed(2))
	assert.Equal(t, "33.33", ProportionalShare(total, 1, 3).StringFixed(2))
	assert.True(t, ProportionalShare(total, 1, 0).IsZero())
}
