package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"debtster_portal/internal/config/connections/mongo"
	"debtster_portal/internal/config/connections/postgres"
	"debtster_portal/internal/config/connections/s3"

	"github.com/joho/godotenv"
)

type SessionSettings struct {
	CookieName   string
	MaxAge       time.Duration
	CacheTTL     time.Duration
	CacheSize    int
	SecureCookie bool
}

type PayPalSettings struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Currency     string
}

type GoogleSettings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (g GoogleSettings) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type VerifySettings struct {
	MaxFailures int
	Window      time.Duration
	Rate        float64
	Burst       int
}

// Settings is everything read from the environment, before any connection is opened.
type Settings struct {
	Port           string
	Postgres       postgres.ConnectionInfo
	Mongo          mongo.ConnectionInfo
	S3             s3.ConnectionInfo
	Session        SessionSettings
	PayPal         PayPalSettings
	Google         GoogleSettings
	Verify         VerifySettings
	ReconcileAfter time.Duration
	// TrustedProxies are the peers whose X-Forwarded-For is believed. Empty
	// means the client address is always the TCP peer.
	TrustedProxies []netip.Prefix
}

type Config struct {
	Settings
	S3       *s3.S3
	Mongo    *mongo.Mongo
	Postgres *postgres.Postgres
}

func LoadSettings() Settings {
	_ = godotenv.Load()

	return Settings{
		Port: getenv("SERVER_PORT", "8070"),
		Postgres: postgres.ConnectionInfo{
			Host:     getenv("PG_HOST", "127.0.0.1"),
			Port:     getenv("PG_PORT", "5432"),
			User:     getenv("PG_USER", "root"),
			Password: getenv("PG_PASSWORD", "hello-world"),
			DB:       getenv("PG_DB", "debtster_portal"),
			SSLMode:  getenv("PG_SSLMODE", "disable"),
			MaxConns: int32(getenvInt("PG_MAX_CONNS", 10)),
		},
		Mongo: mongo.ConnectionInfo{
			Scheme:     getenv("MONGO_SCHEME", "mongodb"),
			User:       getenv("MONGO_USER", "root"),
			Password:   getenv("MONGO_PASSWORD", "secret"),
			Host:       getenv("MONGO_HOST", "127.0.0.1"),
			Port:       getenv("MONGO_PORT", "27017"),
			DB:         getenv("MONGO_DB", "portal_audit"),
			AuthSource: getenv("MONGO_AUTH_SOURCE", "admin"),
		},
		S3: s3.ConnectionInfo{
			Endpoint:  getenv("AWS_ENDPOINT", "http://localhost:9000"),
			AccessKey: getenv("AWS_ACCESS_KEY_ID", "minioadmin"),
			SecretKey: getenv("AWS_SECRET_ACCESS_KEY", "minioadmin"),
			Region:    getenv("AWS_DEFAULT_REGION", "us-east-1"),
			Bucket:    getenv("AWS_BUCKET", "receipts"),
			UseSSL:    getenvBool("AWS_USE_SSL", false),
		},
		Session: SessionSettings{
			CookieName:   getenv("SESSION_COOKIE", "portal_session"),
			MaxAge:       getenvDuration("SESSION_MAX_AGE", 24*time.Hour),
			CacheTTL:     getenvDuration("SESSION_CACHE_TTL", 5*time.Minute),
			CacheSize:    getenvInt("SESSION_CACHE_SIZE", 500),
			SecureCookie: getenvBool("SESSION_SECURE_COOKIE", false),
		},
		PayPal: PayPalSettings{
			BaseURL:      getenv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			ClientID:     getenv("PAYPAL_CLIENT_ID", ""),
			ClientSecret: getenv("PAYPAL_CLIENT_SECRET", ""),
			Currency:     getenv("PAYMENT_CURRENCY", "USD"),
		},
		Google: GoogleSettings{
			ClientID:     getenv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getenv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getenv("GOOGLE_REDIRECT_URL", "http://localhost:8070/auth/google/callback"),
		},
		Verify: VerifySettings{
			MaxFailures: getenvInt("VERIFY_MAX_FAILURES", 5),
			Window:      getenvDuration("VERIFY_WINDOW", 15*time.Minute),
			Rate:        getenvFloat("VERIFY_RATE", 0.5),
			Burst:       getenvInt("VERIFY_BURST", 3),
		},
		ReconcileAfter: getenvDuration("RECONCILE_AFTER", 10*time.Minute),
		TrustedProxies: getenvPrefixes("TRUSTED_PROXIES"),
	}
}

func Init(ctx context.Context) *Config {
	st := LoadSettings()

	s3c, err := s3.NewConnection(st.S3)
	if err != nil {
		log.Fatal("S3 connect error:", err)
	}

	mg, err := mongo.NewConnection(ctx, st.Mongo)
	if err != nil {
		log.Fatal("Mongo connect error:", err)
	}

	pg, err := postgres.NewConnection(ctx, st.Postgres)
	if err != nil {
		log.Fatal("Postgres connect error:", err)
	}

	return &Config{
		Settings: st,
		S3:       s3c,
		Mongo:    mg,
		Postgres: pg,
	}
}

func (c *Config) CheckConnections(ctx context.Context) error {
	var errs []error

	if c.Postgres == nil || c.Postgres.Pool == nil {
		errs = append(errs, errors.New("postgres not initialized"))
	} else if err := c.Postgres.Pool.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("postgres ping failed: %w", err))
	}

	if c.Mongo == nil || c.Mongo.Client == nil {
		errs = append(errs, errors.New("mongo not initialized"))
	} else if err := c.Mongo.Client.Ping(ctx, nil); err != nil {
		errs = append(errs, fmt.Errorf("mongo ping failed: %w", err))
	}

	if c.S3 == nil || c.S3.Client == nil {
		errs = append(errs, errors.New("s3 not initialized"))
	} else if err := c.S3.EnsureBucket(ctx, c.Settings.S3.Region); err != nil {
		errs = append(errs, fmt.Errorf("s3 bucket check failed: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}

	return errors.Join(errs...)
}

func (c *Config) Close(ctx context.Context) {
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.Mongo != nil {
		if err := c.Mongo.Close(ctx); err != nil {
			log.Printf("[CONFIG][WARN] mongo disconnect: %v", err)
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[CONFIG][WARN] %s=%q is not an integer, using %d", k, v, def)
		return def
	}
	return n
}

func getenvFloat(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[CONFIG][WARN] %s=%q is not a number, using %v", k, v, def)
		return def
	}
	return f
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v == "true" || v == "1"
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[CONFIG][WARN] %s=%q is not a duration, using %s", k, v, def)
		return def
	}
	return d
}

// getenvPrefixes reads a comma separated list of CIDRs or bare addresses.
func getenvPrefixes(k string) []netip.Prefix {
	var out []netip.Prefix
	for _, part := range strings.Split(os.Getenv(k), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				log.Printf("[CONFIG][WARN] %s: skipping %q: %v", k, part, err)
				continue
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(part)
		if err != nil {
			log.Printf("[CONFIG][WARN] %s: skipping %q: %v", k, part, err)
			continue
		}
		out = append(out, p.Masked())
	}
	return out
}
