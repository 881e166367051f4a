package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mediavault/utils"
)

type Config struct {
	Port string `mapstructure:"port" validate:"required,numeric"`
	Env  string `mapstructure:"env" validate:"required,oneof=development production test"`

	StoreBackend string `mapstructure:"store_backend" validate:"required,oneof=mongo memory"`
	MongoURI     string `mapstructure:"mongo_uri" validate:"required_if=StoreBackend mongo"`
	DatabaseName string `mapstructure:"database_name" validate:"required"`

	StorageRoot         string        `mapstructure:"storage_root" validate:"required"`
	DefaultFolderPublic bool          `mapstructure:"default_folder_public"`
	BulkChunkSize       int           `mapstructure:"bulk_chunk_size" validate:"gte=1,lte=500"`
	SyncInterval        time.Duration `mapstructure:"sync_interval" validate:"gte=0"`

	JWTSecret     string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	JWTIssuer     string        `mapstructure:"jwt_issuer" validate:"required"`
	JWTExpiration time.Duration `mapstructure:"jwt_expiration" validate:"gt=0"`

	EventBroker   string `mapstructure:"event_broker" validate:"required,oneof=local redis http"`
	RedisURL      string `mapstructure:"redis_url" validate:"required_if=EventBroker redis"`
	RedisChannel  string `mapstructure:"redis_channel" validate:"required"`
	NotifyURL     string `mapstructure:"notify_url" validate:"required_if=EventBroker http"`
	InternalToken string `mapstructure:"internal_token"`

	LogLevel       string   `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	B2ApplicationKeyID string `mapstructure:"b2_application_key_id"`
	B2ApplicationKey   string `mapstructure:"b2_application_key" validate:"required_with=B2ApplicationKeyID"`
	B2BucketName       string `mapstructure:"b2_bucket_name" validate:"required_with=B2ApplicationKeyID"`
}

var validate = validator.New()

var defaults = map[string]any{
	"port":                  "8080",
	"env":                   "development",
	"store_backend":         "mongo",
	"mongo_uri":             "mongodb://localhost:27017",
	"database_name":         "mediavault",
	"storage_root":          "./media",
	"default_folder_public": true,
	"bulk_chunk_size":       30,
	"sync_interval":         "0s",
	"jwt_secret":            "",
	"jwt_issuer":            "mediavault",
	"jwt_expiration":        "24h",
	"event_broker":          "local",
	"redis_url":             "",
	"redis_channel":         "mediavault:events",
	"notify_url":            "",
	"internal_token":        "",
	"log_level":             "info",
	"allowed_origins":       "http://localhost:3000,http://localhost:5173",
	"b2_application_key_id": "",
	"b2_application_key":    "",
	"b2_bucket_name":        "",
}

// aliases lists extra environment names accepted for a key.
var aliases = map[string][]string{
	"mongo_uri":             {"MONGO_URI", "MONGODB_URI"},
	"b2_application_key_id": {"B2_APPLICATION_KEY_ID", "B2_KEY_ID", "BACKBLAZE_KEY_ID"},
	"b2_application_key":    {"B2_APPLICATION_KEY", "B2_APP_KEY", "BACKBLAZE_APP_KEY"},
	"b2_bucket_name":        {"B2_BUCKET_NAME", "B2_BUCKET", "BACKBLAZE_BUCKET"},
}

// LoadConfig layers defaults, an optional YAML file and the environment.
// configPath may be empty.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.AllowedOrigins = parseStringSlice(cfg.AllowedOrigins)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MirrorEnabled reports whether B2 credentials are configured.
func (c *Config) MirrorEnabled() bool {
	return c.B2ApplicationKeyID != ""
}

func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("config %s: validation failed on '%s' tag", strings.ToLower(e.Field()), e.Tag())
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// LoadEnvFile loads the first .env file found near the working directory.
// Missing files are not an error; the process environment is used as is.
func LoadEnvFile() {
	pwd, err := os.Getwd()
	if err != nil {
		utils.LogWarning("Could not get working directory: %v", err)
		return
	}

	envPaths := []string{
		".env",
		"../.env",
		filepath.Join(pwd, ".env"),
		filepath.Join(filepath.Dir(pwd), ".env"),
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		absPath, _ := filepath.Abs(envPath)
		if err := godotenv.Load(envPath); err != nil {
			utils.LogWarning("Failed to load .env from %s: %v", absPath, err)
			continue
		}
		utils.LogInfo("Loaded environment variables from: %s", absPath)
		return
	}

	utils.LogDebug("No .env file found, using system environment variables")
}

// LogConfig prints the effective configuration with secrets masked.
func LogConfig(cfg *Config) {
	utils.LogInfo("Configuration loaded:")
	utils.LogInfo("  Port: %s", cfg.Port)
	utils.LogInfo("  Environment: %s", cfg.Env)
	utils.LogInfo("  Store backend: %s", cfg.StoreBackend)
	utils.LogInfo("  Database: %s", cfg.DatabaseName)
	utils.LogInfo("  MongoDB URI: %s", maskConnectionString(cfg.MongoURI))
	utils.LogInfo("  Storage root: %s", cfg.StorageRoot)
	utils.LogInfo("  Default folder public: %t", cfg.DefaultFolderPublic)
	utils.LogInfo("  Bulk chunk size: %d", cfg.BulkChunkSize)
	utils.LogInfo("  Sync interval: %v", cfg.SyncInterval)
	utils.LogInfo("  JWT Secret: %s", maskSecret(cfg.JWTSecret))
	utils.LogInfo("  JWT Expiration: %v", cfg.JWTExpiration)
	utils.LogInfo("  Event broker: %s", cfg.EventBroker)
	utils.LogInfo("  Redis URL: %s", maskConnectionString(cfg.RedisURL))
	utils.LogInfo("  Internal token: %s", maskSecret(cfg.InternalToken))
	utils.LogInfo("  B2 Key ID: %s", maskSecret(cfg.B2ApplicationKeyID))
	utils.LogInfo("  B2 Bucket: %s", cfg.B2BucketName)
	utils.LogInfo("  Allowed Origins: %v", cfg.AllowedOrigins)
}

func maskSecret(secret string) string {
	if secret == "" {
		return "[NOT SET]"
	}
	if len(secret) <= 8 {
		return "[HIDDEN]"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

func maskConnectionString(uri string) string {
	if uri == "" {
		return "[NOT SET]"
	}
	if strings.Contains(uri, "@") {
		parts := strings.Split(uri, "@")
		if len(parts) >= 2 {
			return "[CREDENTIALS_HIDDEN]@" + parts[len(parts)-1]
		}
	}
	return uri
}

func parseStringSlice(values []string) []string {
	var result []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
