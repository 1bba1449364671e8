// Package config loads the station's configuration (spec.md §6.3-§6.5):
// a station.conf JSON file layered under environment variables and CLI
// flags (CLI > env > file > default), plus a generic typed setter for
// keys the file doesn't recognise by name (duration and size suffixes
// included).
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go.station.network/s2e/pkg/errors"
)

// ExitCode values the process returns for the failure classes spec.md
// §6.5 distinguishes, so a supervising init system can tell a config
// error from "another instance already running" from a generic fatal.
type ExitCode int

const (
	ExitOK ExitCode = 0
	// ExitNOP is returned when another instance is already running and
	// -f (force) was not given.
	ExitNOP ExitCode = 70
	// ExitFatalGeneric is the platform-defined generic-fatal code; the
	// specific firmware-update sub-exec codes are out of this module's
	// scope (no firmware-update component exists here).
	ExitFatalGeneric ExitCode = 1
)

// SignalExitCode returns the exit code for a process killed by a caught
// signal (spec.md §6.5 "128 + signum").
func SignalExitCode(signum int) ExitCode { return ExitCode(128 + signum) }

var (
	errUnknownType = errors.Define("unknown_param_type", "cannot set parameter `{key}`: unknown type `{type}`")
	errBadDuration = errors.Define("bad_duration", "parameter `{key}`: `{raw}` is not a valid duration (want a number with h|m|s|ms suffix)")
	errBadSize     = errors.Define("bad_size", "parameter `{key}`: `{raw}` is not a valid size (want a number with KB|MB suffix)")
)

// recognizedKeys is the station.conf key set this station understands
// (spec.md §6.3); an unrecognised key in the file is not rejected — it is
// routed through Set's generic typed setter instead, so a newer or older
// station.conf still loads.
var recognizedKeys = []string{
	"routerid",
	"euiprefix",
	"log_file",
	"log_size",
	"log_rotate",
	"log_level",
	"gps",
	"pps",
	"radio_init",
	"device",
	"web_port",
	"web_dir",
	"nocca",
	"nodc",
	"nodwell",
	"device_mode",
}

// Config is a layered configuration source: CLI flags over environment
// variables (STATION_* prefix) over the station.conf JSON file over
// built-in defaults (spec.md §6.4).
type Config struct {
	v *viper.Viper
}

// New returns a Config with every recognised key defaulted and
// environment-variable binding enabled.
func New() *Config {
	v := viper.New()
	v.SetEnvPrefix("station")
	v.AutomaticEnv()
	for _, k := range recognizedKeys {
		v.SetDefault(k, defaultFor(k))
	}
	return &Config{v: v}
}

func defaultFor(key string) interface{} {
	switch key {
	case "nocca", "nodc", "nodwell", "device_mode":
		return false
	case "log_level":
		return "info"
	case "pps":
		return ""
	case "log_rotate":
		return 0
	default:
		return ""
	}
}

// BindPFlags layers CLI flags over env/file/defaults, highest precedence
// (spec.md §6.4 "CLI flags override environment").
func (c *Config) BindPFlags(flags *pflag.FlagSet) error {
	return c.v.BindPFlags(flags)
}

// ReadStationConf loads path as the station.conf JSON file. A missing
// file is not an error (every key still resolves to env/default); a
// malformed one is.
func (c *Config) ReadStationConf(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	c.v.SetConfigFile(path)
	c.v.SetConfigType("json")
	return c.v.ReadInConfig()
}

func (c *Config) GetString(key string) string        { return c.v.GetString(key) }
func (c *Config) GetBool(key string) bool             { return c.v.GetBool(key) }
func (c *Config) GetInt(key string) int               { return c.v.GetInt(key) }
func (c *Config) GetFloat64(key string) float64       { return c.v.GetFloat64(key) }
func (c *Config) GetStringSlice(key string) []string  { return c.v.GetStringSlice(key) }

// Set is the generic typed parameter setter spec.md §6.3 requires for any
// key outside recognizedKeys (and for runcmd-driven live reconfiguration
// of a recognised one): typ names the value's shape, coerced from raw
// before storing.
func (c *Config) Set(key, typ, raw string) error {
	switch typ {
	case "string":
		c.v.Set(key, raw)
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		c.v.Set(key, b)
	case "u32", "int":
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return err
		}
		c.v.Set(key, uint32(n))
	case "duration":
		d, err := parseDuration(raw)
		if err != nil {
			return errBadDuration.WithAttributes("key", key, "raw", raw)
		}
		c.v.Set(key, d)
	case "size":
		n, err := parseSize(raw)
		if err != nil {
			return errBadSize.WithAttributes("key", key, "raw", raw)
		}
		c.v.Set(key, n)
	default:
		return errUnknownType.WithAttributes("key", key, "type", typ)
	}
	return nil
}

// parseDuration parses a number followed by one of h|m|s|ms into
// microseconds (spec.md §6.3 "duration with suffixes h|m|s|ms").
func parseDuration(raw string) (int64, error) {
	unit := int64(0)
	numPart := raw
	switch {
	case strings.HasSuffix(raw, "ms"):
		unit = 1000
		numPart = raw[:len(raw)-2]
	case strings.HasSuffix(raw, "h"):
		unit = 3600 * 1000000
		numPart = raw[:len(raw)-1]
	case strings.HasSuffix(raw, "m"):
		unit = 60 * 1000000
		numPart = raw[:len(raw)-1]
	case strings.HasSuffix(raw, "s"):
		unit = 1000000
		numPart = raw[:len(raw)-1]
	default:
		return 0, errBadDuration.New()
	}
	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, err
	}
	return int64(n * float64(unit)), nil
}

// parseSize parses a number followed by KB|MB into bytes (spec.md §6.3
// "size with KB|MB").
func parseSize(raw string) (int64, error) {
	unit := int64(0)
	numPart := raw
	switch {
	case strings.HasSuffix(raw, "MB"):
		unit = 1 << 20
		numPart = raw[:len(raw)-2]
	case strings.HasSuffix(raw, "KB"):
		unit = 1 << 10
		numPart = raw[:len(raw)-2]
	default:
		return 0, errBadSize.New()
	}
	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, err
	}
	return int64(n * float64(unit)), nil
}

// RecognizedKeys returns the station.conf keys this build understands by
// name (every other key still loads, via Set's generic path).
func RecognizedKeys() []string {
	out := make([]string, len(recognizedKeys))
	copy(out, recognizedKeys)
	return out
}
