package helpers

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

const (
	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberSuffix   = 6
	DefaultOrderPrefix  = "SMM"

	// maxRemembered bounds the per-day memory of issued numbers.
	maxRemembered   = 1 << 20
	maxDrawAttempts = 16
)

var alphabetSize = big.NewInt(int64(len(orderNumberAlphabet)))

// OrderNumberGenerator issues PREFIX-YYMMDD-XXXXXX numbers with a crypto/rand
// suffix. It remembers what it issued for the current day and redraws on a
// repeat, so a single process never hands out the same number twice. Across
// processes the unique index on orders is the backstop.
type OrderNumberGenerator struct {
	mu     sync.Mutex
	day    string
	issued map[string]struct{}
}

func NewOrderNumberGenerator() *OrderNumberGenerator {
	return &OrderNumberGenerator{issued: make(map[string]struct{})}
}

var defaultGenerator = NewOrderNumberGenerator()

// NewOrderNumber draws from the process-wide generator.
func NewOrderNumber(prefix string, now time.Time) (string, error) {
	return defaultGenerator.Next(prefix, now)
}

func (g *OrderNumberGenerator) Next(prefix string, now time.Time) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultOrderPrefix
	}
	day := now.UTC().Format("060102")

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.day != day || len(g.issued) >= maxRemembered {
		g.day = day
		g.issued = make(map[string]struct{})
	}
	for attempt := 0; attempt < maxDrawAttempts; attempt++ {
		suffix, err := randomSuffix()
		if err != nil {
			return "", err
		}
		number := fmt.Sprintf("%s-%s-%s", prefix, day, suffix)
		if _, dup := g.issued[number]; dup {
			continue
		}
		g.issued[number] = struct{}{}
		return number, nil
	}
	return "", fmt.Errorf("generate order number: no free suffix after %d draws", maxDrawAttempts)
}

func randomSuffix() (string, error) {
	suffix := make([]byte, orderNumberSuffix)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate order number: %w", err)
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return string(suffix), nil
}
