package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config is read once from the environment at startup.
type Config struct {
	Port  string
	DBDSN string

	NoShowGrace        time.Duration
	NoShowScanInterval time.Duration
	NoShowBatchSize    int

	CheckInEarly    time.Duration
	CheckInLate     time.Duration
	MaxShiftMinutes int
	MinConfidence   float64

	DefaultPlatformFeeRate  decimal.Decimal
	DefaultTaxRate          decimal.Decimal
	DefaultAgencyCommission decimal.Decimal

	RateLimitPerSecond float64
	RateLimitBurst     int

	NATSURL       string
	NATSStream    string
	RelayInterval time.Duration
	RelayBatch    int
}

func Load() Config {
	return Config{
		Port:  readString("PORT", "8080"),
		DBDSN: readString("DB_DSN", "postgres://localhost:5432/shiftwork"),

		NoShowGrace:        readDurationSeconds("NO_SHOW_GRACE_SECONDS", 900),
		NoShowScanInterval: readDurationSeconds("NO_SHOW_SCAN_INTERVAL_SECONDS", 60),
		NoShowBatchSize:    readInt("NO_SHOW_BATCH_SIZE", 50),

		CheckInEarly:    time.Duration(readInt("CHECKIN_EARLY_MINUTES", 30)) * time.Minute,
		CheckInLate:     time.Duration(readInt("CHECKIN_LATE_MINUTES", 120)) * time.Minute,
		MaxShiftMinutes: readInt("MAX_SHIFT_MINUTES", 960),
		MinConfidence:   readFloat("VERIFICATION_MIN_CONFIDENCE", 0.5),

		DefaultPlatformFeeRate:  readRate("DEFAULT_PLATFORM_FEE_RATE", "0.20"),
		DefaultTaxRate:          readRate("DEFAULT_TAX_RATE", "0"),
		DefaultAgencyCommission: readRate("DEFAULT_AGENCY_COMMISSION_RATE", "0.10"),

		RateLimitPerSecond: readFloat("RATE_LIMIT_PER_SECOND", 50),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 100),

		NATSURL:       readString("NATS_URL", ""),
		NATSStream:    readString("NATS_STREAM", "SHIFTWORK"),
		RelayInterval: readDurationSeconds("RELAY_INTERVAL_SECONDS", 2),
		RelayBatch:    readInt("RELAY_BATCH_SIZE", 100),
	}
}

func readString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(readInt(key, fallbackSeconds)) * time.Second
}

func readRate(key, fallback string) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		raw = fallback
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		value, _ = decimal.NewFromString(fallback)
	}
	return value
}
