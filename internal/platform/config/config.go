package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	DataFile      string
	AdminToken    string
	SweepInterval time.Duration
	WatchFile     bool
	LogLevel      string
	LogFormat     string
}

const (
	defaultAddr          = ":8080"
	defaultDataFile      = "data/banguard.yaml"
	defaultSweepInterval = time.Minute
)

// FromEnv builds a Server config from BANGUARD_* environment variables.
// Unparseable values fall back to the defaults.
func FromEnv() Server {
	return Server{
		Addr:          stringEnv("BANGUARD_ADDR", defaultAddr),
		DataFile:      stringEnv("BANGUARD_DATA_FILE", defaultDataFile),
		AdminToken:    os.Getenv("BANGUARD_ADMIN_TOKEN"),
		SweepInterval: durationEnv("BANGUARD_SWEEP_INTERVAL", defaultSweepInterval),
		WatchFile:     boolEnv("BANGUARD_WATCH_FILE", true),
		LogLevel:      stringEnv("BANGUARD_LOG_LEVEL", "info"),
		LogFormat:     stringEnv("BANGUARD_LOG_FORMAT", "text"),
	}
}

// BindFlags registers command-line overrides seeded with the current values.
func (s *Server) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.Addr, "addr", s.Addr, "HTTP listen address")
	fs.StringVar(&s.DataFile, "data-file", s.DataFile, "path to the ban data file")
	fs.StringVar(&s.AdminToken, "admin-token", s.AdminToken, "token required on /admin routes")
	fs.DurationVar(&s.SweepInterval, "sweep-interval", s.SweepInterval, "how often expired temporary bans are swept")
	fs.BoolVar(&s.WatchFile, "watch", s.WatchFile, "reload the data file when it changes on disk")
	fs.StringVar(&s.LogLevel, "log-level", s.LogLevel, "debug, info, warn or error")
	fs.StringVar(&s.LogFormat, "log-format", s.LogFormat, "text or json")
}

// Validate rejects configurations the server cannot start with.
func (s Server) Validate() error {
	if strings.TrimSpace(s.DataFile) == "" {
		return errors.New("data file is required")
	}
	if s.AdminToken == "" {
		return errors.New("admin token is required")
	}
	if s.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	return nil
}

func stringEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func boolEnv(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}
