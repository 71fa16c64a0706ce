package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Keys consumed by the profiler. They are matched case-sensitively.
const (
	ProfilerEnabled      = "PROFILER_ENABLED"
	ProfilerRestrictions = "PROFILER_RESTRICTIONS"
	ProfilerSQLEnabled   = "PROFILER_SQLALCHEMY_ENABLED"
	ProfilerSQLThreshold = "PROFILER_SQLALCHEMY_THRESHOLD"
	ProfilerSQLFormat    = "PROFILER_SQLALCHEMY_FORMAT"

	// RecordQueries is owned by the host application. The profiler only reads it.
	RecordQueries = "SQLALCHEMY_RECORD_QUERIES"

	Addr     = "ADDR"
	LogLevel = "LOG_LEVEL"
	DBDriver = "DB_DRIVER"
	DBDSN    = "DB_DSN"

	// NPlusOneThreshold is how many runs of one statement in a request count
	// as an N+1 pattern. Zero disables the check.
	NPlusOneThreshold = "NPLUSONE_THRESHOLD"
)

// Keys lists every key Load knows how to pick up from a config file or the environment.
var Keys = []string{
	ProfilerEnabled,
	ProfilerRestrictions,
	ProfilerSQLEnabled,
	ProfilerSQLThreshold,
	ProfilerSQLFormat,
	RecordQueries,
	Addr,
	LogLevel,
	DBDriver,
	DBDSN,
	NPlusOneThreshold,
}

// Config is the host application's configuration mapping.
type Config map[string]any

// Has reports whether key is present, even with a zero value.
func (c Config) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// SetDefault stores value under key unless the key is already present.
// It reports whether the default was applied.
func (c Config) SetDefault(key string, value any) bool {
	if c.Has(key) {
		return false
	}
	c[key] = value
	return true
}

func (c Config) Get(key string) any {
	return c[key]
}

func (c Config) Bool(key string) bool {
	return cast.ToBool(c[key])
}

func (c Config) Float64(key string) float64 {
	return cast.ToFloat64(c[key])
}

// Float64E is Float64 that fails on values that are not numbers.
func (c Config) Float64E(key string) (float64, error) {
	f, err := cast.ToFloat64E(c[key])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func (c Config) Int(key string) int {
	return cast.ToInt(c[key])
}

func (c Config) String(key string) string {
	return cast.ToString(c[key])
}

// Slice returns the value under key as a list. A comma separated string,
// as it comes out of the environment, is split into its elements. Slices of
// any element type are copied element by element; other values are an error.
func (c Config) Slice(key string) ([]any, error) {
	switch v := c[key].(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []any{}, nil
		}
		parts := strings.Split(v, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out, nil
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("%s: expected a list, got %T", key, v)
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
}

// Load reads config.yaml from path and overlays environment variables.
// A missing config file is not an error. Only keys listed in Keys are
// copied into the returned Config, under their exact upper-case names.
func Load(path string) (config Config, err error) {
	v := viper.New()
	v.SetDefault(strings.ToLower(Addr), ":8080")
	v.SetDefault(strings.ToLower(LogLevel), "info")
	v.SetDefault(strings.ToLower(DBDriver), "sqlite3")
	v.SetDefault(strings.ToLower(DBDSN), "file:perf-probe.db?cache=shared&mode=memory")
	v.SetDefault(strings.ToLower(NPlusOneThreshold), 5)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		err = nil
	}

	config = Config{}
	for _, key := range Keys {
		lower := strings.ToLower(key)
		if v.IsSet(lower) {
			config[key] = v.Get(lower)
		}
	}
	return config, nil
}
