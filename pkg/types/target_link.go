package types

// TargetLink is one destination URL of a checkout and the quantity routed to it.
type TargetLink struct {
	URL      string `json:"url"`
	Quantity int    `json:"quantity"`
}

// TargetLinks is persisted as JSON on every sibling of an order group.
type TargetLinks []TargetLink

// TotalQuantity sums the per-link quantities.
func (l TargetLinks) TotalQuantity() int {
	total := 0
	for _, link := range l {
		total += link.Quantity
	}
	return total
}

// URLs returns the link URLs in order.
func (l TargetLinks) URLs() []string {
	out := make([]string, 0, len(l))
	for _, link := range l {
		out = append(out, link.URL)
	}
	return out
}
