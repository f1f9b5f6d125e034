package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr      string
	JWTSecret string
	JWTTTLMin int

	// storage
	DBDriver    string // "sqlite" or "postgres"
	SQLiteDSN   string
	PostgresDSN string
	RedisAddr   string // optional presence mirror; empty disables it

	// hub tunables
	RingTimeout   time.Duration
	MaxMsgBytes   int
	SendQueueSize int

	// otp / sms
	OTPDigits   int
	OTPTTLSec   int
	TwilioSID   string
	TwilioToken string
	TwilioFrom  string

	// default region for phone normalization, e.g. "IN", "US"
	PhoneRegion string
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return def
}

func getint(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func MustLoad() Config {
	cfg := Config{
		Addr:          getenv("HTTP_ADDR", ":8080"),
		JWTSecret:     getenv("JWT_SECRET", ""),
		JWTTTLMin:     getint("JWT_TTL_MIN", 1440),
		DBDriver:      getenv("DB_DRIVER", "sqlite"),
		SQLiteDSN:     getenv("SQLITE_DSN", "file:chat.db?_pragma=foreign_keys(ON)"),
		PostgresDSN:   getenv("PG_DSN", ""),
		RedisAddr:     getenv("REDIS_ADDR", ""),
		RingTimeout:   time.Duration(getint("RING_TIMEOUT_SEC", 40)) * time.Second,
		MaxMsgBytes:   getint("MAX_MESSAGE_BYTES", 4096),
		SendQueueSize: getint("SEND_QUEUE_SIZE", 256),
		OTPDigits:     getint("OTP_DIGITS", 6),
		OTPTTLSec:     getint("OTP_TTL_SEC", 300),
		TwilioSID:     getenv("TWILIO_SID", ""),
		TwilioToken:   getenv("TWILIO_TOKEN", ""),
		TwilioFrom:    getenv("TWILIO_FROM", ""),
		PhoneRegion:   getenv("PHONE_REGION", "IN"),
	}
	if cfg.JWTSecret == "" {
		panic("JWT_SECRET is required")
	}
	return cfg
}
