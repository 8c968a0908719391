package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const validYAML = `
service_group: projects-service
principal: projectd
server:
  port: 9090
nats:
  url: nats://localhost:4222
  ack_timeout: 3s
systems:
  sbf:
    visibility: all
    event_listener: decision-service
  demo:
    github:
      enabled: true
      organization: acme
      token: ghp_secret
`

func TestLoadWithFile(t *testing.T) {
	cfg, err := LoadWithFile(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "projects-service", cfg.ServiceGroup)
	assert.Equal(t, "projectd", cfg.Principal)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host, "default host applied")
	assert.Equal(t, 3*time.Second, cfg.NATS.AckTimeout.Duration())
	assert.Equal(t, "projectd", cfg.NATS.Bucket, "default bucket applied")

	assert.Equal(t, VisibilityAll, cfg.Systems.VisibilityOf("sbf"))
	assert.Equal(t, VisibilityOwn, cfg.Systems.VisibilityOf("demo"), "visibility defaults to own")
	assert.True(t, cfg.Systems.Valid("demo"))
	assert.False(t, cfg.Systems.Valid("unknown"))

	gh := cfg.Systems["demo"].GitHub
	assert.True(t, gh.Enabled)
	assert.Equal(t, "acme", gh.Organization)
	assert.Equal(t, "ghp_secret", gh.Token.Value())
}

func TestLoadWithFileEnvOverride(t *testing.T) {
	t.Setenv("PROJECTD_SERVER_PORT", "7070")
	t.Setenv("PROJECTD_LOGGING_LEVEL", "debug")

	cfg, err := LoadWithFile(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadWithFileMissing(t *testing.T) {
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{ServiceGroup: "g", Principal: "p"}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing service group", func(c *Config) { c.ServiceGroup = "" }, "service_group"},
		{"missing principal", func(c *Config) { c.Principal = "" }, "principal"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "out of range"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad visibility", func(c *Config) {
			c.Systems["s"] = System{Visibility: "some"}
		}, "visibility"},
		{"mirror without org", func(c *Config) {
			c.Systems["s"] = System{GitHub: GitHubMirror{Enabled: true, Token: "t"}}
		}, "organization"},
		{"mirror without token", func(c *Config) {
			c.Systems["s"] = System{GitHub: GitHubMirror{Enabled: true, Organization: "acme"}}
		}, "token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "hunter2", s.Value())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(data))

	assert.Empty(t, Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("fast")))

	out, err := Duration(time.Minute).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m0s", string(out))
}
