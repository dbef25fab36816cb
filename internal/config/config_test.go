package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithEnv(t *testing.T) {
	t.Setenv("RIDE_JWT_SECRET", "s3cret")
	t.Setenv("RIDE_HTTP_ADDR", ":9090")
	t.Setenv("RIDE_STORE_TIMEOUT", "750ms")
	t.Setenv("RIDE_PRICING_PER_KM", "150")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 750*time.Millisecond, cfg.Ride.StoreTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.Presence.StoreTimeout)
	assert.Equal(t, int64(150), cfg.Pricing.PerKm)
	assert.Equal(t, "KZT", cfg.Pricing.Currency)
	assert.Equal(t, "@every 5m", cfg.Presence.ReindexSchedule)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ride.yaml")
	content := `
http:
  addr: ":7000"
redis:
  addr: "redis:6379"
auth:
  mode: jwt
  jwt_secret: from-file
pricing:
  city: astana
  base_fare: 400
  per_km: 100
  min_fare: 600
  currency: KZT
ride:
  store_timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("RIDE_CONFIG_FILE", path)
	t.Setenv("RIDE_REDIS_ADDR", "localhost:6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, "astana", cfg.Pricing.City)
	assert.Equal(t, int64(400), cfg.Pricing.BaseFare)
	assert.Equal(t, 2*time.Second, cfg.Ride.StoreTimeout)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.Validate(), "jwt mode needs a secret")

	cfg.Auth.JWTSecret = "x"
	assert.NoError(t, cfg.Validate())

	cfg.Auth.Mode = AuthModeFirebase
	assert.Error(t, cfg.Validate(), "firebase mode needs a project")

	cfg.Auth.FirebaseProjectID = "proj"
	assert.NoError(t, cfg.Validate())

	cfg.Auth.Mode = "basic"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNegativePricing(t *testing.T) {
	cases := map[string]func(c *Config){
		"base fare": func(c *Config) { c.Pricing.BaseFare = -1 },
		"per km":    func(c *Config) { c.Pricing.PerKm = -120 },
		"min fare":  func(c *Config) { c.Pricing.MinFare = -500 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Auth.JWTSecret = "x"
			mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), "must not be negative")
		})
	}

	cfg := Defaults()
	cfg.Auth.JWTSecret = "x"
	cfg.Pricing.BaseFare, cfg.Pricing.PerKm, cfg.Pricing.MinFare = 0, 0, 0
	assert.NoError(t, cfg.Validate(), "free rides are allowed")
}

func TestLoad_NegativePricingFromEnv(t *testing.T) {
	t.Setenv("RIDE_JWT_SECRET", "secret")
	t.Setenv("RIDE_PRICING_PER_KM", "-5")
	_, err := Load()
	assert.Error(t, err)
}
