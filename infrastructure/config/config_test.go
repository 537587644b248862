package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_TOKEN", "secret")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("CALLBACK_DISPATCH", "")
	t.Setenv("PORT", "")
	t.Setenv("PAYGATE_BASE_URL", "")
	t.Setenv("GATEWAY_TIMEOUT", "")
	t.Setenv("PHONE_REGION", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.AuthToken)
	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, defaultGatewayBaseURL, cfg.GatewayBaseURL)
	assert.Equal(t, defaultGatewayTimeout, cfg.GatewayTimeout)
	assert.Equal(t, StoreDriverRedis, cfg.StoreDriver)
	assert.Equal(t, DispatchInline, cfg.CallbackDispatch)
	assert.Equal(t, "TG", cfg.PhoneRegion)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing auth token",
			env:  map[string]string{"AUTH_TOKEN": ""},
			want: "AUTH_TOKEN",
		},
		{
			name: "unknown store driver",
			env:  map[string]string{"AUTH_TOKEN": "x", "STORE_DRIVER": "mongo"},
			want: "STORE_DRIVER",
		},
		{
			name: "postgres without credentials",
			env:  map[string]string{"AUTH_TOKEN": "x", "STORE_DRIVER": "postgres", "DATABASE_USER": ""},
			want: "database environment variables",
		},
		{
			name: "firestore without project",
			env: map[string]string{
				"AUTH_TOKEN": "x", "STORE_DRIVER": "firestore",
				"FIRESTORE_PROJECT_ID": "", "GOOGLE_CLOUD_PROJECT": "",
			},
			want: "FIRESTORE_PROJECT_ID",
		},
		{
			name: "unknown dispatch mode",
			env:  map[string]string{"AUTH_TOKEN": "x", "STORE_DRIVER": "redis", "CALLBACK_DISPATCH": "kafka"},
			want: "CALLBACK_DISPATCH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTH_TOKEN", "secret")
	t.Setenv("STORE_DRIVER", "POSTGRES")
	t.Setenv("DATABASE_USER", "u")
	t.Setenv("DATABASE_PASSWORD", "p")
	t.Setenv("DATABASE_NAME", "vip")
	t.Setenv("DATABASE_HOSTNAME", "db")
	t.Setenv("DATABASE_PORT", "5432")
	t.Setenv("CALLBACK_DISPATCH", "queue")
	t.Setenv("NATS_MAX_DELIVER", "9")
	t.Setenv("REDIS_POOL_SIZE", "not-a-number")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("PAYGATE_BASE_URL", "http://gw.local/api/v1/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, DispatchQueue, cfg.CallbackDispatch)
	assert.Equal(t, 9, cfg.Nats.MaxDeliver)
	assert.Equal(t, defaultRedisPoolSize, cfg.Redis.PoolSize)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, "http://gw.local/api/v1", cfg.GatewayBaseURL)
	assert.Equal(t, "vip", cfg.Postgres.Name)
}
