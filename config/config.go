package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Browser provisioning
	ChromeBin         string // explicit executable path, overrides probing
	ChromeArchivePath string // bundled browser tar.gz for constrained hosts
	ScratchDir        string // writable dir for archive extraction
	Headless          bool
	BlockMedia        bool // abort image/media requests while scraping

	// Navigation
	NavTimeoutSec  int // whole-page navigation budget
	BodyTimeoutSec int // wait-for-body budget after navigation
	SettleDelayMs  int // fixed pause for client-side hydration

	// Extraction caps
	MaxAmenities      int
	MaxImages         int
	MaxDescriptionPar int

	// Import
	ImageBatchSize int
	MaxRetries     int

	// Image storage
	ImageDir     string // local directory stored images are written to
	ImageBaseURL string // public URL prefix for stored images
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "rental"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "rental123"),
		PostgresDB:       getEnv("POSTGRES_DB", "rental_cms"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		ChromeBin:         getEnv("CHROME_BIN", ""),
		ChromeArchivePath: getEnv("CHROME_ARCHIVE_PATH", ""),
		ScratchDir:        getEnv("SCRATCH_DIR", os.TempDir()),
		Headless:          getEnvBool("HEADLESS", true),
		BlockMedia:        getEnvBool("BLOCK_MEDIA", true),

		NavTimeoutSec:  getEnvInt("NAV_TIMEOUT_SEC", 60),
		BodyTimeoutSec: getEnvInt("BODY_TIMEOUT_SEC", 30),
		SettleDelayMs:  getEnvInt("SETTLE_DELAY_MS", 2000),

		MaxAmenities:      getEnvInt("MAX_AMENITIES", 30),
		MaxImages:         getEnvInt("MAX_IMAGES", 50),
		MaxDescriptionPar: getEnvInt("MAX_DESCRIPTION_PARAGRAPHS", 5),

		ImageBatchSize: getEnvInt("IMAGE_BATCH_SIZE", 10),
		MaxRetries:     getEnvInt("MAX_RETRIES", 2),

		ImageDir:     getEnv("IMAGE_DIR", "./public/images"),
		ImageBaseURL: getEnv("IMAGE_BASE_URL", "/images"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// ConstrainedHost reports whether we are running on a serverless-style host
// where no system browser exists and only ScratchDir is writable.
func (c *Config) ConstrainedHost() bool {
	if c.ChromeArchivePath != "" {
		return true
	}
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" || os.Getenv("VERCEL") != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
