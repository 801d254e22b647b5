package enums

// MetricType is what a service sells; it decides which link shape is accepted.
type MetricType string

const (
	MetricSubscribers MetricType = "subscribers"
	MetricFollowers   MetricType = "followers"
	MetricViews       MetricType = "views"
	MetricWatchTime   MetricType = "watch_time"
	MetricComments    MetricType = "comments"
	MetricLikes       MetricType = "likes"
	MetricShares      MetricType = "shares"
)

func (m MetricType) String() string {
	return string(m)
}
