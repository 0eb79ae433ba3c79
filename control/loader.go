// control/loader.go
// Author: momentics <momentics@gmail.com>
//
// Layered configuration loading: struct defaults, config file, environment
// and command-line flags.

package control

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/momentics/hioload-vt/api"
)

// DefaultEnvPrefix selects VT_* environment overrides.
const DefaultEnvPrefix = "VT"

// Loader resolves an api.Config through viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader registers every config key with its default. An empty envPrefix
// disables environment overrides.
func NewLoader(envPrefix string) *Loader {
	v := viper.New()
	for _, f := range configFields() {
		v.SetDefault(f.key, f.def)
	}
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()
	}
	return &Loader{v: v}
}

// Viper exposes the underlying instance.
func (l *Loader) Viper() *viper.Viper { return l.v }

// BindFlags binds every flag of fs registered by RegisterFlags.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for _, f := range configFields() {
		flag := fs.Lookup(flagName(f.key))
		if flag == nil {
			continue
		}
		if err := l.v.BindPFlag(f.key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}
	return nil
}

// Load reads path when non-empty, applies overrides and validates.
func (l *Loader) Load(path string) (api.Config, error) {
	var cfg api.Config
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := l.v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadConfig is NewLoader(envPrefix).Load(path).
func LoadConfig(path, envPrefix string) (api.Config, error) {
	return NewLoader(envPrefix).Load(path)
}

// RegisterFlags declares one flag per config key, named with dashes
// (max-platform-threads, park-timeout, ...).
func RegisterFlags(fs *pflag.FlagSet) {
	for _, f := range configFields() {
		name := flagName(f.key)
		usage := "scheduler " + strings.ReplaceAll(f.key, "_", " ")
		switch d := f.def.(type) {
		case time.Duration:
			fs.Duration(name, d, usage)
		case string:
			fs.String(name, d, usage)
		case bool:
			fs.Bool(name, d, usage)
		case int:
			fs.Int(name, d, usage)
		case int64:
			fs.Int64(name, d, usage)
		case uint8:
			fs.Uint8(name, d, usage)
		}
	}
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

type configField struct {
	key string
	def any
}

// configFields walks api.Config by its mapstructure tags and reports each
// key with its default, reduced to the underlying basic type.
func configFields() []configField {
	def := reflect.ValueOf(api.DefaultConfig())
	typ := def.Type()
	out := make([]configField, 0, typ.NumField())
	durationType := reflect.TypeOf(time.Duration(0))
	for i := 0; i < typ.NumField(); i++ {
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		fv := def.Field(i)
		var v any
		switch {
		case fv.Type() == durationType:
			v = time.Duration(fv.Int())
		case fv.Kind() == reflect.String:
			v = fv.String()
		case fv.Kind() == reflect.Bool:
			v = fv.Bool()
		case fv.Kind() == reflect.Int:
			v = int(fv.Int())
		case fv.Kind() == reflect.Int64:
			v = fv.Int()
		case fv.Kind() == reflect.Uint8:
			v = uint8(fv.Uint())
		default:
			v = fv.Interface()
		}
		out = append(out, configField{key: key, def: v})
	}
	return out
}
