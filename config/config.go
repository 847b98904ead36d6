package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string
	HTTPAddr      string

	// Stream consumer identity
	ConsumerGroup string
	ConsumerName  string

	// Instruments to chart (comma-separated, e.g. "NSE:RELIANCE,NSE:SBIN")
	Symbols string

	// Dynamic timeframes (comma-separated seconds, e.g. "60,300,900")
	EnabledTFs string

	// Indicators computed per series (comma-separated kind names)
	Indicators string

	// Moving-average window override (comma-separated, e.g. "5,10,20,60,250")
	MAWindows string

	// Max bars kept in memory per series (0 = unbounded)
	MaxBars int
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file, using environment: %v", err)
	}

	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),

		ConsumerGroup: getEnv("CONSUMER_GROUP", "chartd"),
		ConsumerName:  getEnv("CONSUMER_NAME", defaultConsumerName()),

		Symbols: getEnv("SYMBOLS", "NSE:RELIANCE,NSE:SBIN"),

		// Default TFs: 1m, 5m, 15m
		EnabledTFs: getEnv("ENABLED_TFS", "60,300,900"),

		Indicators: getEnv("INDICATORS", "ma,expma,boll,macd,rsi,kdj,cci,wr,dmi,obv,sar,td"),

		MAWindows: getEnv("MA_WINDOWS", ""),

		MaxBars: getEnvInt("MAX_BARS", 10800),
	}
}

// ParseTFs parses the EnabledTFs string into a slice of timeframe durations in seconds.
func (c *Config) ParseTFs() []int {
	return parseInts(c.EnabledTFs, "TF")
}

// ParseSymbols splits the Symbols string into trimmed instrument IDs.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ParseMAWindows parses the MAWindows override. Returns nil when unset.
func (c *Config) ParseMAWindows() []int {
	if strings.TrimSpace(c.MAWindows) == "" {
		return nil
	}
	return parseInts(c.MAWindows, "MA window")
}

func parseInts(s, what string) []int {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid %s value: %q", what, p)
			continue
		}
		out = append(out, n)
	}
	return out
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "chartd-1"
	}
	return "chartd-" + host
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
