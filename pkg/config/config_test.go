package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/assertions"
	"github.com/smartystreets/assertions/should"
)

func TestReadStationConfMissingFileIsNotError(t *testing.T) {
	a := assertions.New(t)
	c := New()
	err := c.ReadStationConf(filepath.Join(t.TempDir(), "nope.conf"))
	a.So(err, should.BeNil)
	a.So(c.GetString("routerid"), should.Equal, "")
}

func TestReadStationConfLoadsRecognizedKeys(t *testing.T) {
	a := assertions.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "station.conf")
	body := `{"routerid":"ABCD-EF01-2345-6789","nocca":true,"log_level":"debug"}`
	a.So(os.WriteFile(path, []byte(body), 0o600), should.BeNil)

	c := New()
	a.So(c.ReadStationConf(path), should.BeNil)
	a.So(c.GetString("routerid"), should.Equal, "ABCD-EF01-2345-6789")
	a.So(c.GetBool("nocca"), should.BeTrue)
	a.So(c.GetString("log_level"), should.Equal, "debug")
}

func TestEnvOverridesFile(t *testing.T) {
	a := assertions.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "station.conf")
	a.So(os.WriteFile(path, []byte(`{"log_level":"info"}`), 0o600), should.BeNil)

	t.Setenv("STATION_LOG_LEVEL", "warn")
	c := New()
	a.So(c.ReadStationConf(path), should.BeNil)
	a.So(c.GetString("log_level"), should.Equal, "warn")
}

func TestSetCoercesByType(t *testing.T) {
	a := assertions.New(t)
	c := New()

	a.So(c.Set("nodc", "bool", "true"), should.BeNil)
	a.So(c.GetBool("nodc"), should.BeTrue)

	a.So(c.Set("log_level", "string", "debug"), should.BeNil)
	a.So(c.GetString("log_level"), should.Equal, "debug")

	err := c.Set("log_level", "bogus_type", "x")
	a.So(err, should.NotBeNil)

	err = c.Set("log_rotate", "u32", "not-a-number")
	a.So(err, should.NotBeNil)
}

func TestSetDurationSuffixes(t *testing.T) {
	a := assertions.New(t)
	c := New()

	a.So(c.Set("some_interval", "duration", "500ms"), should.BeNil)
	a.So(c.v.GetInt64("some_interval"), should.Equal, int64(500000))

	a.So(c.Set("some_interval", "duration", "2s"), should.BeNil)
	a.So(c.v.GetInt64("some_interval"), should.Equal, int64(2000000))

	a.So(c.Set("some_interval", "duration", "1.5m"), should.BeNil)
	a.So(c.v.GetInt64("some_interval"), should.Equal, int64(90000000))

	err := c.Set("some_interval", "duration", "nope")
	a.So(err, should.NotBeNil)
}

func TestSetSizeSuffixes(t *testing.T) {
	a := assertions.New(t)
	c := New()

	a.So(c.Set("log_size", "size", "2MB"), should.BeNil)
	a.So(c.v.GetInt64("log_size"), should.Equal, int64(2<<20))

	a.So(c.Set("log_size", "size", "512KB"), should.BeNil)
	a.So(c.v.GetInt64("log_size"), should.Equal, int64(512<<10))

	err := c.Set("log_size", "size", "1GB")
	a.So(err, should.NotBeNil)
}

func TestRecognizedKeysIsCopy(t *testing.T) {
	a := assertions.New(t)
	ks := RecognizedKeys()
	ks[0] = "mutated"
	a.So(RecognizedKeys()[0], should.NotEqual, "mutated")
}

func TestSignalExitCode(t *testing.T) {
	a := assertions.New(t)
	a.So(int(SignalExitCode(2)), should.Equal, 130)
	a.So(int(SignalExitCode(15)), should.Equal, 143)
}
