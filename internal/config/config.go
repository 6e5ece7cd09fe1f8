package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"frontdesk-service/internal/domain/consultant"
	"frontdesk-service/internal/pkg/jwt"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type AppConfig struct {
	// Server
	HTTPAddr       string
	Env            string
	AllowedOrigins []string

	// Backing store
	StoreDriver  string
	DatabaseURL  string
	DBMaxConns   int32
	StoreTimeout time.Duration
	// SeedConsultants are upserted at startup.
	SeedConsultants []consultant.Consultant

	// Redis, optional. Empty address keeps assignment claims in-process.
	RedisAddrs   []string
	RedisPass    string
	RedisCluster bool
	ClaimTTL     time.Duration

	// Pending-write log
	PendingLogPath string

	// Intake
	PhoneCountryCode string

	// Sync
	SyncBaseDelay   time.Duration
	SyncMaxDelay    time.Duration
	SyncMaxAttempts int
	SyncInterval    time.Duration

	// Connectivity
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	StableProbes  int

	// Assignment
	MaxConcurrentVisits int
	AutoAssign          bool

	// Scoring
	ScoringURL     string
	ScoringTimeout time.Duration

	JWT jwt.Config
}

// Load loads environment variables into AppConfig. Invalid numbers fall back
// to their defaults.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
		Env:            getEnv("APP_ENV", "production"),
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", nil),

		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DBMaxConns:      int32(readInt("DB_MAX_CONNS", 10)),
		StoreTimeout:    readMillis("STORE_TIMEOUT_MS", 5000),
		SeedConsultants: parseConsultants(getEnv("SEED_CONSULTANTS", "")),

		RedisAddrs:   getEnvSlice("REDIS_ADDR", nil),
		RedisPass:    getEnv("REDIS_PASS", ""),
		RedisCluster: readBool("REDIS_CLUSTER", false),
		ClaimTTL:     readMillis("CLAIM_TTL_MS", 10000),

		PendingLogPath: getEnv("PENDING_LOG_PATH", "./data/pending.db"),

		PhoneCountryCode: getEnv("PHONE_COUNTRY_CODE", "254"),

		SyncBaseDelay:   readMillis("SYNC_RETRY_BASE_DELAY_MS", 2000),
		SyncMaxDelay:    readMillis("SYNC_RETRY_MAX_DELAY_MS", 300000),
		SyncMaxAttempts: readInt("SYNC_RETRY_MAX_ATTEMPTS", 5),
		SyncInterval:    readMillis("SYNC_INTERVAL_MS", 60000),

		ProbeInterval: readMillis("CONNECTIVITY_PROBE_INTERVAL_MS", 5000),
		ProbeTimeout:  readMillis("CONNECTIVITY_PROBE_TIMEOUT_MS", 2000),
		StableProbes:  readInt("CONNECTIVITY_STABLE_PROBES", 2),

		MaxConcurrentVisits: readInt("MAX_CONCURRENT_VISITS_PER_CONSULTANT", 3),
		AutoAssign:          readBool("AUTO_ASSIGN", false),

		ScoringURL:     getEnv("SCORING_URL", ""),
		ScoringTimeout: readMillis("SCORING_TIMEOUT_MS", 15000),

		JWT: jwt.Config{
			PubPath:  getEnv("JWT_PUBLIC_KEY_PATH", "/app/secrets/jwt_public.pem"),
			Issuer:   getEnv("JWT_ISSUER", ""),
			Audience: getEnv("JWT_AUDIENCE", "frontdesk"),
		},
	}
}

func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func readMillis(key string, fallback int) time.Duration {
	return time.Duration(readInt(key, fallback)) * time.Millisecond
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

// parseConsultants reads "id:Name,id:Name". Entries without a name use the id.
func parseConsultants(raw string) []consultant.Consultant {
	var out []consultant.Consultant
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, name, found := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !found || strings.TrimSpace(name) == "" {
			name = id
		}
		out = append(out, consultant.Consultant{ID: id, Name: strings.TrimSpace(name), IsActive: true})
	}
	return out
}
