package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"waitlist/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("WAITLIST_TEST_SMS_FROM", "+15145550000")

	yamlContent := `
sms:
  provider: twilio
  account_sid: "AC123"
  auth_token: "secret"
  from: "${WAITLIST_TEST_SMS_FROM}"
waitlist:
  grace_period_minutes: 20
restaurants:
  - id: "bella"
    name: "Bella Vista"
    tables:
      - id: "T1"
        label: "1"
        capacity: 4
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "+15145550000", cfg.SMS.From)
	assert.Equal(t, 3, cfg.SMS.MaxAttempts)
	assert.Equal(t, time.Second, cfg.SMS.BaseDelay)
	assert.Equal(t, "waitlist:events", cfg.FanOut.Channel)

	require.Len(t, cfg.Restaurants, 1)
	r := cfg.Restaurants[0]
	assert.Equal(t, 20, r.GracePeriodMinutes)
	assert.Equal(t, models.DefaultFollowUpBeforeMinutes, r.FollowUpBeforeMinutes)
	require.Len(t, r.Tables, 1)
	assert.Equal(t, models.TableAvailable, r.Tables[0].Status)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		c := Config{}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{
			name:    "twilio without credentials",
			mutate:  func(c *Config) { c.SMS.Provider = "twilio" },
			wantErr: true,
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.SMS.Provider = "pigeon" },
			wantErr: true,
		},
		{
			name:    "follow-up not shorter than grace",
			mutate:  func(c *Config) { c.Waitlist.FollowUpBeforeMinutes = c.Waitlist.GracePeriodMinutes },
			wantErr: true,
		},
		{
			name: "duplicate restaurant",
			mutate: func(c *Config) {
				c.Restaurants = []RestaurantConfig{
					{Restaurant: models.Restaurant{ID: "r1"}},
					{Restaurant: models.Restaurant{ID: "r1"}},
				}
			},
			wantErr: true,
		},
		{
			name: "table without capacity",
			mutate: func(c *Config) {
				c.Restaurants = []RestaurantConfig{
					{Restaurant: models.Restaurant{ID: "r1"}, Tables: []models.Table{{ID: "T1"}}},
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
