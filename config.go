package main

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Campaign defaults. These are the production contest contract; env vars
// exist so staging can run a different window without a rebuild.
const (
	defaultMinimumAmount  = 5000
	defaultCampaignStart  = "2025-10-08"
	defaultMaxUploadBytes = 5 << 20
	defaultOCRLanguage    = "spa"
	defaultListenAddr     = ":8081"
	defaultCampaignDir    = "concurso"
	defaultScanRate       = 2.0
	defaultBranchTimeout  = 5 * time.Second
)

// Config gathers everything the server reads from the environment.
type Config struct {
	ListenAddr     string
	DBDSN          string
	UploadBase     string
	CampaignDir    string
	JWTSecret      []byte
	MinimumAmount  int64
	CampaignStart  time.Time
	MaxUploadBytes int64
	AllowedMIME    map[string]bool
	OCRLanguage    string
	ScanRate       float64
	BranchTimeout  time.Duration
}

func loadConfig() Config {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-insecure-secret-change" // development fallback
	}
	start, err := time.Parse("2006-01-02", envOr("CAMPAIGN_START", defaultCampaignStart))
	if err != nil {
		log.Fatalf("invalid CAMPAIGN_START: %v", err)
	}
	return Config{
		ListenAddr:     envOr("LISTEN_ADDR", defaultListenAddr),
		DBDSN:          os.Getenv("DB_DSN"),
		UploadBase:     envOr("UPLOAD_BASE", "uploads"),
		CampaignDir:    envOr("CAMPAIGN_DIR", defaultCampaignDir),
		JWTSecret:      []byte(secret),
		MinimumAmount:  envInt64("MIN_AMOUNT", defaultMinimumAmount),
		CampaignStart:  start,
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
		AllowedMIME:    map[string]bool{"image/jpeg": true, "image/png": true},
		OCRLanguage:    envOr("OCR_LANG", defaultOCRLanguage),
		ScanRate:       envFloat("BRANCH_SCAN_RATE", defaultScanRate),
		BranchTimeout:  envDuration("BRANCH_TIMEOUT", defaultBranchTimeout),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("config: ignoring invalid %s=%q", key, v)
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("config: ignoring invalid %s=%q", key, v)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("config: ignoring invalid %s=%q", key, v)
	}
	return def
}

// loadDotEnv loads key=value pairs from a local .env file into the environment
// without overwriting variables that are already set. Lines starting with # are ignored.
func loadDotEnv() {
	path := ".env"
	if _, err := os.Stat(path); err != nil {
		return // no .env file
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.TrimSpace(line[eq+1:])
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}
}
