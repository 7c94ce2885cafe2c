// Package config loads realm-gateway settings from struct tag defaults,
// an optional YAML/JSON file and environment variables. Values are resolved
// in priority order:
//
//	envDefault struct tags  (lowest priority)
//	YAML/JSON config file   (medium priority)
//	Environment variables   (highest priority)
//
// # Struct Tags
//
//   - `env:"VAR_NAME"` maps the field to an environment variable
//   - `envDefault:"value"` sets a default when the field is zero-valued
//   - `required:"true"` fails validation if the field remains zero after loading
//
// Fields need `yaml` or `json` tags for file-based loading.
//
// Any field type implementing encoding.TextUnmarshaler (slog.Level,
// netip.Addr, ...) is parsed through UnmarshalText.
//
// # Usage
//
//	type GatewayConfig struct {
//	    ListenAddr  string        `env:"LISTEN_ADDR" envDefault:":8000" yaml:"listen_addr"`
//	    KeycloakURL string        `env:"KEYCLOAK_URL" yaml:"keycloak_url" required:"true"`
//	    CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"180s" yaml:"cache_ttl"`
//	    LogLevel    slog.Level    `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
//	}
//
//	cfg := config.MustLoad[GatewayConfig](
//	    config.New().WithEnvPrefix("GATEWAY").WithFileFromEnv("CONFIG_FILE"),
//	)
package config

import (
	"encoding"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
)

// time.Duration has Kind() == Int64 and must be told apart from plain int64.
var durationType = reflect.TypeOf(time.Duration(0))

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// Loader builds and executes configuration loading. Loader is not safe for
// concurrent use.
type Loader struct {
	envPrefix  string
	filePath   string
	fileEnvKey string
}

// New creates a new [Loader] that loads from environment variables only.
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix sets a prefix that is prepended (with an underscore
// separator) to every environment variable name. The prefix is uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets the path to a YAML (.yaml, .yml) or JSON (.json) file.
// A missing file is not an error. The path must not contain "..".
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithFileFromEnv reads the config file path from the named environment
// variable (after prefixing) at Load time. A path set with [Loader.WithFile]
// is used when the variable is unset.
func (l *Loader) WithFileFromEnv(key string) *Loader {
	l.fileEnvKey = key
	return l
}

// Load populates the given struct pointer with configuration values and
// validates it. Fields tagged `required:"true"` must be non-zero and, if
// the struct implements [Validator], its Validate method must succeed.
//
// Loading failures carry [sserr.CodeInternalConfiguration]; validation
// failures carry [sserr.CodeValidationRequired] or [sserr.CodeValidation].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := applyDefaults(rv); err != nil {
		return err
	}

	if path := l.resolveFilePath(); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return err
		}
	}

	if err := applyEnv(rv, l.envPrefix); err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad creates a zero-valued T, loads configuration into it and returns
// it. It panics if loading or validation fails, which suits func main.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) resolveFilePath() string {
	if l.fileEnvKey != "" {
		if path, ok := os.LookupEnv(prefixed(l.envPrefix, l.fileEnvKey)); ok && path != "" {
			return path
		}
	}
	return l.filePath
}

// loadFile reads a YAML or JSON file and unmarshals it into cfg. Missing
// files are ignored.
func loadFile(path string, cfg any) error {
	if strings.Contains(path, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse YAML file %q", path)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse JSON file %q", path)
		}
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}

	return nil
}

// isLeaf reports whether a struct-kinded field is parsed as a single value
// rather than traversed.
func isLeaf(t reflect.Type) bool {
	return t == durationType || reflect.PointerTo(t).Implements(textUnmarshalerType)
}

// applyDefaults sets zero-valued fields to their envDefault tag values.
func applyDefaults(rv reflect.Value) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && !isLeaf(sf.Type) {
			if err := applyDefaults(field); err != nil {
				return err
			}
			continue
		}

		tag := sf.Tag.Get("envDefault")
		if tag == "" || !field.IsZero() {
			continue
		}

		if err := setField(field, tag); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to apply default for field %q", sf.Name)
		}
	}

	return nil
}

// applyEnv sets fields from the environment. A nested struct's env tag is
// joined onto the prefix of its children: `env:"REDIS"` holding
// `env:"URI"` reads GATEWAY_REDIS_URI under the GATEWAY prefix.
func applyEnv(rv reflect.Value, prefix string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := sf.Tag.Get("env")

		if field.Kind() == reflect.Struct && !isLeaf(sf.Type) {
			nestedPrefix := prefix
			if envTag != "" {
				nestedPrefix = prefixed(prefix, envTag)
			}
			if err := applyEnv(field, nestedPrefix); err != nil {
				return err
			}
			continue
		}

		if envTag == "" {
			continue
		}

		envKey := prefixed(prefix, envTag)
		val, ok := os.LookupEnv(envKey)
		if !ok {
			continue
		}

		if err := setField(field, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to set field %q from env var %q", sf.Name, envKey)
		}
	}

	return nil
}

func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

// setField parses value into field. Supported: encoding.TextUnmarshaler,
// time.Duration, string kinds (including Secret types), bool, signed and
// unsigned integers, float64 and []string (comma-separated).
func setField(field reflect.Value, value string) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			if err := u.UnmarshalText([]byte(value)); err != nil {
				return fmt.Errorf("cannot parse %q as %s: %w", value, field.Type(), err)
			}
			return nil
		}
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", value, err)
		}
		field.SetUint(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", value, err)
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		// MakeSlice with the field's own type so named slice types work.
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(slice)

	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}

	return nil
}
