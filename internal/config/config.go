package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EngineLocal   = "local"
	EngineDocling = "docling"
)

type Config struct {
	// Server
	Port string

	// Secrets
	InternalSharedSecret string
	DoclingAPIKey        string

	// Limits
	MaxUploadBytes int64

	// Concurrency
	MaxConcurrentRequests int64

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// Conversion timeout, zero means the engine runs to completion
	ConvertTimeout time.Duration

	// rate limiting (per IP)
	RateLimitEnabled bool
	RateLimitEvery   time.Duration
	RateLimitBurst   int

	// housekeeping
	CleanupInterval time.Duration

	// health
	HealthDegradeRatio float64

	// http
	MaxHeaderBytes int
	CORSOrigins    []string // "*" allows any origin

	// logging
	LogLevel  string
	LogFormat string

	// Engine selection
	Engine            string
	DoclingURL        string
	DoclingTimeout    time.Duration
	DoclingPDFBackend string

	// Presets
	Preset      string
	PresetsFile string

	// Local engine
	OCRDPI            int
	OCRMinWords       int
	OCRMinConfidence  float64
	MarkdownPageBreak string
}

// Load reads the process environment, after merging an optional .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port: envStr("PORT", "8080"),

		InternalSharedSecret: envStr("INTERNAL_SHARED_SECRET", ""),
		DoclingAPIKey:        envStr("DOCLING_API_KEY", ""),

		MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", int(200<<20))),

		MaxConcurrentRequests: int64(envInt("MAX_CONCURRENT_REQUESTS", 10)),

		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       envDur("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 15*time.Minute),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),

		ConvertTimeout: envDurOrZero("CONVERT_TIMEOUT"),

		RateLimitEnabled: envBool("RATE_LIMIT_ENABLED", false),
		RateLimitEvery:   envDur("RATE_LIMIT_EVERY", 600*time.Millisecond),
		RateLimitBurst:   envInt("RATE_LIMIT_BURST", 20),

		CleanupInterval: envDur("CLEANUP_INTERVAL", 5*time.Minute),

		HealthDegradeRatio: envFloat("HEALTH_DEGRADE_RATIO", 0.9),

		MaxHeaderBytes: envInt("MAX_HEADER_BYTES", 1<<20),
		CORSOrigins:    envList("CORS_ALLOWED_ORIGINS", "*"),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "json"),

		Engine:            strings.ToLower(envStr("ENGINE", EngineLocal)),
		DoclingURL:        strings.TrimRight(envStr("DOCLING_URL", ""), "/"),
		DoclingTimeout:    envDur("DOCLING_TIMEOUT", 10*time.Minute),
		DoclingPDFBackend: envStr("DOCLING_PDF_BACKEND", "pypdfium2"),

		Preset:      strings.ToLower(envStr("CONVERTER_PRESET", PresetAuto)),
		PresetsFile: envStr("CONVERTER_PRESETS_FILE", ""),

		OCRDPI:            envInt("OCR_DPI", 216),
		OCRMinWords:       envInt("OCR_MIN_WORDS", 10),
		OCRMinConfidence:  envFloat("OCR_MIN_CONFIDENCE", 0.4),
		MarkdownPageBreak: os.Getenv("MARKDOWN_PAGE_BREAK"),
	}
}

func (c Config) Validate() error {
	if s := strings.TrimSpace(c.InternalSharedSecret); s != "" && len(s) < 32 {
		return fmt.Errorf("INTERNAL_SHARED_SECRET must be at least 32 characters")
	}
	switch c.Engine {
	case EngineLocal:
	case EngineDocling:
		if c.DoclingURL == "" {
			return fmt.Errorf("DOCLING_URL required when ENGINE=%s", EngineDocling)
		}
		if !strings.HasPrefix(c.DoclingURL, "http://") && !strings.HasPrefix(c.DoclingURL, "https://") {
			return fmt.Errorf("DOCLING_URL must be http/https")
		}
	default:
		return fmt.Errorf("unknown ENGINE %q (want %s or %s)", c.Engine, EngineLocal, EngineDocling)
	}
	return nil
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// envList splits a comma-separated value, dropping blanks.
func envList(key, fallback string) []string {
	var out []string
	for _, v := range strings.Split(envStr(key, fallback), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envDurOrZero(key string) time.Duration {
	return envDur(key, 0)
}
