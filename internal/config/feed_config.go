package config

import (
	"math"
	"time"
)

const (
	// Pagination
	DefaultPageSize = 25
	MinPageSize     = 2
	DefaultIDCap    = int64(math.MaxInt32)

	// Presentation
	GroupingWindow = 5 * time.Minute
	TimeOnlyWindow = 24 * time.Hour
	WeekdayWindow  = 7 * 24 * time.Hour

	// Serial queue
	QueueTaskTimeout = 15 * time.Second
	QueueMaxAttempts = 3
	QueueBaseBackoff = 500 * time.Millisecond
	QueueMaxBackoff  = 5 * time.Second

	// Cooldowns for persisted client flags
	ProfileViewCooldown = time.Hour
	LastActiveCooldown  = 5 * time.Minute

	// Gateway
	CommandRatePerSecond = 5
	CommandBurst         = 20
	ClientSendBuffer     = 256
)

var OutboxStatuses = map[string]bool{
	"failed":    true,
	"resent":    true,
	"discarded": true,
}
