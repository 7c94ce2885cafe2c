package redis

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_Redacted(t *testing.T) {
	t.Parallel()
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))
	assert.Equal(t, "hunter2", s.Value())

	data, err := json.Marshal(map[string]Secret{"password": s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
}

func TestConfig_Validate_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
}

func TestConfig_Validate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"port too high", Config{Port: 70000}},
		{"negative port", Config{Port: -1}},
		{"idle above pool", Config{PoolSize: 1, MinIdleConns: 5}},
		{"negative timeout", Config{DialTimeout: -1}},
		{"bad scheme", Config{URI: "http://cache:6379"}},
		{"no scheme", Config{URI: "cache:6379"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Validate_URI(t *testing.T) {
	t.Parallel()
	for _, uri := range []string{"redis://localhost:6379/0", "rediss://:pw@cache:6380/1"} {
		cfg := &Config{URI: uri, Port: 99999}
		assert.NoError(t, cfg.Validate(), uri)
	}
}

func TestTruncateStatement(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "GET k", truncateStatement("GET k"))

	long := "GET " + strings.Repeat("é", 200)
	got := truncateStatement(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, maxStatementTruncateLen+3, len([]rune(got)))
}
