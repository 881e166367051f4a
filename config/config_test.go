package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "mongo", cfg.StoreBackend)
	assert.Equal(t, "mediavault", cfg.DatabaseName)
	assert.True(t, cfg.DefaultFolderPublic)
	assert.Equal(t, 30, cfg.BulkChunkSize)
	assert.Equal(t, time.Duration(0), cfg.SyncInterval)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, "local", cfg.EventBroker)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.AllowedOrigins)
	assert.False(t, cfg.MirrorEnabled())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("DEFAULT_FOLDER_PUBLIC", "false")
	t.Setenv("BULK_CHUNK_SIZE", "10")
	t.Setenv("SYNC_INTERVAL", "5m")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.False(t, cfg.DefaultFolderPublic)
	assert.Equal(t, 10, cfg.BulkChunkSize)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadConfig_Aliases(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("MONGODB_URI", "mongodb://db.internal:27017")
	t.Setenv("B2_KEY_ID", "key-id")
	t.Setenv("B2_APP_KEY", "app-key")
	t.Setenv("B2_BUCKET", "bucket")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db.internal:27017", cfg.MongoURI)
	assert.True(t, cfg.MirrorEnabled())
	assert.Equal(t, "bucket", cfg.B2BucketName)
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	path := filepath.Join(t.TempDir(), "mediavault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9090\"\nstorage_root: /srv/media\nevent_broker: http\nnotify_url: http://peer:8080/internal/notify\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/srv/media", cfg.StorageRoot)
	assert.Equal(t, "http", cfg.EventBroker)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing secret", map[string]string{}, "jwtsecret"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "jwtsecret"},
		{"redis without url", map[string]string{"JWT_SECRET": testSecret, "EVENT_BROKER": "redis"}, "redisurl"},
		{"http without url", map[string]string{"JWT_SECRET": testSecret, "EVENT_BROKER": "http"}, "notifyurl"},
		{"unknown backend", map[string]string{"JWT_SECRET": testSecret, "STORE_BACKEND": "sqlite"}, "storebackend"},
		{"chunk size zero", map[string]string{"JWT_SECRET": testSecret, "BULK_CHUNK_SIZE": "0"}, "bulkchunksize"},
		{"key without bucket", map[string]string{"JWT_SECRET": testSecret, "B2_APPLICATION_KEY_ID": "id"}, "b2applicationkey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := LoadConfig("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMasking(t *testing.T) {
	assert.Equal(t, "[NOT SET]", maskSecret(""))
	assert.Equal(t, "[HIDDEN]", maskSecret("short"))
	assert.Equal(t, "0123***0123", maskSecret(testSecret))

	assert.Equal(t, "[CREDENTIALS_HIDDEN]@db:27017", maskConnectionString("mongodb://user:pass@db:27017"))
	assert.Equal(t, "redis://localhost:6379", maskConnectionString("redis://localhost:6379"))
}
