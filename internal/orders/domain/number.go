package domain

import (
	"fmt"
	"math/rand"
	"time"
)

// NumberGenerator produces the human-readable identifiers of an order
type NumberGenerator interface {
	OrderNumber(now time.Time) string
	TrackingNumber(now time.Time) string
}

// RandomNumberGenerator uses a timestamp and a bounded random suffix.
// Uniqueness is backed by the ledger's unique index, not by this generator.
type RandomNumberGenerator struct{}

// OrderNumber returns BV-yyyyMMddHHmmss-NNN
func (RandomNumberGenerator) OrderNumber(now time.Time) string {
	return fmt.Sprintf("BV-%s-%03d", now.UTC().Format("20060102150405"), rand.Intn(1000))
}

// TrackingNumber returns TRK-yyyyMMdd-NNNNN
func (RandomNumberGenerator) TrackingNumber(now time.Time) string {
	return fmt.Sprintf("TRK-%s-%05d", now.UTC().Format("20060102"), rand.Intn(100000))
}
