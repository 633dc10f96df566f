// Package config gathers the server settings from command line flags. Every
// flag defaults to an environment variable, and a .env file in the working
// directory is loaded into the environment first.
package config

import (
	"errors"
	"flag"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/freewilll/splitledger/cache"
	"github.com/freewilll/splitledger/currency"
	"github.com/freewilll/splitledger/database"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds everything main needs to wire the server
type Config struct {
	CreateSchema bool

	DB    database.Config
	Cache cache.Config

	ServerPort int
	JWTKey     string
	JWTTTL     time.Duration
	LogLevel   string

	RatesURL  string
	RatesBase string
	RatesTTL  time.Duration
}

// Load parses args (without the program name) on top of the environment
func Load(args []string) (Config, error) {
	// A missing .env is normal
	_ = godotenv.Load()

	var c Config
	fs := flag.NewFlagSet("splitledger", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// General flags
	fs.BoolVar(&c.CreateSchema, "create-schema", envBool("CREATE_SCHEMA", false), "create schema")
	fs.IntVar(&c.ServerPort, "server-port", envInt("SERVER_PORT", 8080), "web server port")
	fs.StringVar(&c.LogLevel, "log-level", env("LOG_LEVEL", "info"), "log level")

	// Postgresql flags
	fs.StringVar(&c.DB.Host, "db-host", env("DB_HOST", "localhost"), "database host")
	fs.IntVar(&c.DB.Port, "db-port", envInt("DB_PORT", 5432), "database port")
	fs.StringVar(&c.DB.User, "db-user", env("DB_USER", "postgres"), "database user")
	fs.StringVar(&c.DB.Password, "db-password", env("DB_PASSWORD", ""), "database password")
	fs.StringVar(&c.DB.Name, "db-name", env("DB_NAME", "postgres"), "database name")
	fs.StringVar(&c.DB.SSLMode, "db-sslmode", env("DB_SSLMODE", "disable"), "database sslmode")

	// Redis flags
	fs.StringVar(&c.Cache.Addr, "cache-addr", env("REDIS_ADDR", "localhost:6379"), "redis cache address")
	fs.StringVar(&c.Cache.Password, "cache-password", env("REDIS_PASSWORD", ""), "redis cache password")
	fs.IntVar(&c.Cache.Db, "cache-db", envInt("REDIS_DB", 0), "redis cache db")
	fs.DurationVar(&c.Cache.TTL, "cache-ttl", envDuration("REDIS_TTL", cache.DefaultTTL), "summary cache ttl")

	// Auth flags
	fs.StringVar(&c.JWTKey, "jwt-key", env("JWT_KEY", ""), "jwt signing key")
	fs.DurationVar(&c.JWTTTL, "jwt-ttl", envDuration("JWT_TTL", 30*time.Minute), "jwt token lifetime")

	// Exchange rate flags
	fs.StringVar(&c.RatesURL, "rates-url", env("RATES_URL", currency.DefaultRatesURL), "exchange rate endpoint")
	fs.StringVar(&c.RatesBase, "rates-base", env("RATES_BASE", "USD"), "exchange rate base currency")
	fs.DurationVar(&c.RatesTTL, "rates-ttl", envDuration("RATES_TTL", time.Hour), "exchange rate cache ttl")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if c.JWTKey == "" && !c.CreateSchema {
		return Config{}, errors.New("jwt key is required: set -jwt-key or JWT_KEY")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return Config{}, err
	}
	return c, nil
}

// NewLogger returns a JSON logger writing to stdout at level
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	if l, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(l)
	}
	return log
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
