package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
)

// ===========================================================================
// Test Types
// ===========================================================================

// testSecret is a named string type with a redacted String() method, like
// exchange.Secret and redis.Secret.
type testSecret string

func (s testSecret) String() string { return "[REDACTED]" }

type basicConfig struct {
	ListenAddr string        `env:"LISTEN_ADDR" envDefault:":8000" yaml:"listen_addr" json:"listen_addr"`
	Retries    int           `env:"RETRIES" envDefault:"3" yaml:"retries" json:"retries"`
	Debug      bool          `env:"DEBUG" envDefault:"false" yaml:"debug" json:"debug"`
	CacheTTL   time.Duration `env:"CACHE_TTL" envDefault:"180s" yaml:"cache_ttl" json:"cache_ttl"`
}

type typesConfig struct {
	Level      slog.Level `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	MaxEntries uint       `env:"MAX_ENTRIES"`
	Ratio      float64    `env:"RATIO"`
	Hosts      []string   `env:"HOSTS" envDefault:"a, b ,c"`
	Key        testSecret `env:"KEY"`
}

type requiredConfig struct {
	URL  string `env:"URL" required:"true"`
	Port int    `env:"PORT"`
}

type nestedConfig struct {
	Name  string         `env:"NAME"`
	Redis redisSubConfig `env:"REDIS" yaml:"redis"`
}

type redisSubConfig struct {
	URI     string `env:"URI" yaml:"uri" required:"true"`
	Enabled bool   `env:"ENABLED" yaml:"enabled"`
}

type validatableConfig struct {
	TTL       time.Duration `env:"TTL" envDefault:"180s"`
	SharedTTL time.Duration `env:"SHARED_TTL" envDefault:"60s"`
}

func (c *validatableConfig) Validate() error {
	if c.SharedTTL >= c.TTL {
		return sserr.New(sserr.CodeValidation, "config: shared TTL must be shorter than TTL")
	}
	return nil
}

type stdlibValidatorConfig struct {
	Name string `env:"NAME"`
}

func (c *stdlibValidatorConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writeTestFile() error: %v", err)
	}
	return path
}

// ===========================================================================
// Argument Validation
// ===========================================================================

func TestLoader_Load_RejectsNonStructPointers(t *testing.T) {
	var cfg basicConfig
	n := 3
	for name, arg := range map[string]any{
		"nil pointer":       (*basicConfig)(nil),
		"non-pointer":       cfg,
		"pointer to int":    &n,
		"untyped nil value": nil,
	} {
		err := New().Load(arg)
		if !sserr.HasCode(err, sserr.CodeInternalConfiguration) {
			t.Errorf("%s: Load() error = %v, want CodeInternalConfiguration", name, err)
		}
	}
}

// ===========================================================================
// Layering
// ===========================================================================

func TestLoader_Load_Defaults(t *testing.T) {
	var cfg basicConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != ":8000" || cfg.Retries != 3 || cfg.Debug || cfg.CacheTTL != 180*time.Second {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoader_Load_DefaultsDoNotOverwrite(t *testing.T) {
	cfg := basicConfig{Retries: 7}
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Retries != 7 {
		t.Errorf("Retries = %d, want 7", cfg.Retries)
	}
}

func TestLoader_Load_PriorityOrder(t *testing.T) {
	path := writeTestFile(t, "gateway.yaml", "listen_addr: \":9000\"\nretries: 5\ncache_ttl: 90s\n")
	t.Setenv("RETRIES", "9")

	var cfg basicConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want file value", cfg.ListenAddr)
	}
	if cfg.Retries != 9 {
		t.Errorf("Retries = %d, want env value 9", cfg.Retries)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Errorf("CacheTTL = %v, want 90s", cfg.CacheTTL)
	}
}

func TestLoader_Load_JSONFile(t *testing.T) {
	path := writeTestFile(t, "gateway.json", `{"listen_addr": ":7000", "debug": true}`)

	var cfg basicConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != ":7000" || !cfg.Debug {
		t.Errorf("Load() = %+v, want JSON values", cfg)
	}
}

func TestLoader_Load_MissingFileIgnored(t *testing.T) {
	var cfg basicConfig
	path := filepath.Join(t.TempDir(), "absent.yaml")
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
}

func TestLoader_Load_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"unsupported extension", func(t *testing.T) string { return writeTestFile(t, "gateway.toml", "a = 1") }},
		{"directory traversal", func(t *testing.T) string { return "../etc/gateway.yaml" }},
		{"invalid yaml", func(t *testing.T) string { return writeTestFile(t, "gateway.yaml", "retries: [") }},
		{"invalid json", func(t *testing.T) string { return writeTestFile(t, "gateway.json", "{") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg basicConfig
			err := New().WithFile(tt.path(t)).Load(&cfg)
			if !sserr.HasCode(err, sserr.CodeInternalConfiguration) {
				t.Errorf("Load() error = %v, want CodeInternalConfiguration", err)
			}
		})
	}
}

func TestLoader_Load_FileFromEnv(t *testing.T) {
	path := writeTestFile(t, "gateway.yaml", "retries: 11\n")
	t.Setenv("GATEWAY_CONFIG_FILE", path)

	var cfg basicConfig
	err := New().WithEnvPrefix("gateway").WithFile("ignored.yaml").WithFileFromEnv("CONFIG_FILE").Load(&cfg)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Retries != 11 {
		t.Errorf("Retries = %d, want 11 from file named by env", cfg.Retries)
	}
}

func TestLoader_Load_EnvPrefix(t *testing.T) {
	t.Setenv("GATEWAY_LISTEN_ADDR", ":8443")
	t.Setenv("LISTEN_ADDR", ":1")

	var cfg basicConfig
	if err := New().WithEnvPrefix("gateway").Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != ":8443" {
		t.Errorf("ListenAddr = %q, want prefixed env value", cfg.ListenAddr)
	}
}

// ===========================================================================
// Types
// ===========================================================================

func TestLoader_Load_Types(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_ENTRIES", "1024")
	t.Setenv("RATIO", "0.25")
	t.Setenv("KEY", "s3cr3t")

	var cfg typesConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Level != slog.LevelDebug {
		t.Errorf("Level = %v, want DEBUG", cfg.Level)
	}
	if cfg.MaxEntries != 1024 {
		t.Errorf("MaxEntries = %d, want 1024", cfg.MaxEntries)
	}
	if cfg.Ratio != 0.25 {
		t.Errorf("Ratio = %v, want 0.25", cfg.Ratio)
	}
	if strings.Join(cfg.Hosts, "|") != "a|b|c" {
		t.Errorf("Hosts = %v, want trimmed [a b c]", cfg.Hosts)
	}
	if string(cfg.Key) != "s3cr3t" || cfg.Key.String() != "[REDACTED]" {
		t.Errorf("Key not loaded or not redacted")
	}
}

func TestLoader_Load_ParseErrors(t *testing.T) {
	for key, val := range map[string]string{
		"RETRIES":   "three",
		"DEBUG":     "maybe",
		"CACHE_TTL": "forever",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			var cfg basicConfig
			err := New().Load(&cfg)
			if !sserr.HasCode(err, sserr.CodeInternalConfiguration) {
				t.Errorf("Load() error = %v, want CodeInternalConfiguration", err)
			}
		})
	}
}

func TestLoader_Load_InvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	var cfg typesConfig
	if err := New().Load(&cfg); !sserr.HasCode(err, sserr.CodeInternalConfiguration) {
		t.Errorf("Load() error = %v, want CodeInternalConfiguration", err)
	}
}

// ===========================================================================
// Nested Structs
// ===========================================================================

func TestLoader_Load_NestedEnv(t *testing.T) {
	t.Setenv("GATEWAY_REDIS_URI", "redis://cache:6379/0")
	t.Setenv("GATEWAY_REDIS_ENABLED", "true")

	var cfg nestedConfig
	if err := New().WithEnvPrefix("GATEWAY").Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Redis.URI != "redis://cache:6379/0" || !cfg.Redis.Enabled {
		t.Errorf("Redis = %+v, want env values", cfg.Redis)
	}
}

func TestLoader_Load_NestedRequiredMissing(t *testing.T) {
	var cfg nestedConfig
	err := New().Load(&cfg)
	if !sserr.HasCode(err, sserr.CodeValidationRequired) {
		t.Fatalf("Load() error = %v, want CodeValidationRequired", err)
	}
	if !strings.Contains(err.Error(), "Redis.URI") {
		t.Errorf("error %q does not name the field path", err.Error())
	}
}

// ===========================================================================
// Validation
// ===========================================================================

func TestLoader_Load_RequiredMissing(t *testing.T) {
	var cfg requiredConfig
	if err := New().Load(&cfg); !sserr.HasCode(err, sserr.CodeValidationRequired) {
		t.Errorf("Load() error = %v, want CodeValidationRequired", err)
	}
}

func TestLoader_Load_ValidatorPassesThroughPlatformError(t *testing.T) {
	t.Setenv("SHARED_TTL", "5m")
	var cfg validatableConfig
	if err := New().Load(&cfg); !sserr.HasCode(err, sserr.CodeValidation) {
		t.Errorf("Load() error = %v, want CodeValidation", err)
	}
}

func TestLoader_Load_ValidatorWrapsStdlibError(t *testing.T) {
	var cfg stdlibValidatorConfig
	err := New().Load(&cfg)
	if !sserr.HasCode(err, sserr.CodeValidation) {
		t.Fatalf("Load() error = %v, want CodeValidation", err)
	}
	if !strings.Contains(err.Error(), "name is required") {
		t.Errorf("error %q lost the validator message", err.Error())
	}
}

func TestMustLoad(t *testing.T) {
	cfg := MustLoad[basicConfig](New())
	if cfg.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %q, want default", cfg.ListenAddr)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("MustLoad() expected panic, got none")
		}
	}()
	_ = MustLoad[requiredConfig](New())
}
