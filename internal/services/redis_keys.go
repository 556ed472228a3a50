package services

import "time"

const (
	KeyUserSession     = "user:%s:session:%s"
	KeyBalance         = "readmodel:%s:balance"
	KeyInventory       = "readmodel:%s:inventory"
	KeyLootBoxes       = "readmodel:%s:lootboxes"
	KeyOpening         = "opening:%s"
	KeyUserOpenings    = "user:%s:openings"
	KeyRateLimit       = "ratelimit:%s:%s"
	MaxOpeningHistory  = 100
	DefaultHistorySize = 50

	TTLUserSession = 24 * time.Hour
	TTLReadModel   = 30 * time.Second
	TTLOpening     = 30 * 24 * time.Hour // 30 days

	DefaultRateLimitOpens     = 30 // Max 30 opens per minute
	DefaultRateLimitPurchases = 20 // Max 20 purchases per minute
)
