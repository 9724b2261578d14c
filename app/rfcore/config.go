// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rfcore

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/reframedultimate/ReFramed-sub002/replay"
	"github.com/reframedultimate/ReFramed-sub002/replay/compression"
	"github.com/reframedultimate/ReFramed-sub002/replay/savefile"
	"github.com/reframedultimate/ReFramed-sub002/support/network"
)

// EnvPrefix prefixes the environment variables that configure rfcore.
const EnvPrefix = "RFCORE_"

// Config is the resolved rfcore configuration.
//
// Each value is taken from, in increasing precedence: its default, the
// config file, the environment, and its command-line flag.
type Config struct {
	LogLevel    string `toml:"log_level"`
	ReplayDir   string `toml:"replay_dir"`
	IndexPath   string `toml:"index_path"`
	Device      string `toml:"device"`
	Listen      string `toml:"listen"`
	MetricsAddr string `toml:"metrics_addr"`
	Format      string `toml:"format"`
	Compression string `toml:"compression"`
	TimeZone    string `toml:"time_zone"`
}

// setting binds one Config value to its flag and environment variable.
type setting struct {
	flag  string
	env   string
	dst   *string
	usage string
}

func (c *Config) settings() []setting {
	return []setting{
		{"log-level", "LOG_LEVEL", &c.LogLevel, "Log level: debug, info, warn or error."},
		{"replay-dir", "REPLAY_DIR", &c.ReplayDir, "Directory that replays are saved to and indexed from."},
		{"index", "INDEX", &c.IndexPath, "Path of the replay library index database."},
		{"device", "DEVICE", &c.Device, "Capture device endpoint, as host[:port]."},
		{"listen", "LISTEN", &c.Listen, "Endpoint that emulated devices listen on, as [host]:port."},
		{"metrics-addr", "METRICS_ADDR", &c.MetricsAddr, "If set, serve Prometheus metrics on this address."},
		{"format", "FORMAT", &c.Format, "Format of saved replays: rfr or json."},
		{"compression", "COMPRESSION", &c.Compression, "Compression of saved JSON replays: " + compression.FlagValues() + "."},
		{"time-zone", "TIME_ZONE", &c.TimeZone, "Time zone of dates in replay file names. Defaults to local time."},
	}
}

// configHome is the directory holding rfcore's files.
func configHome() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".rfcore")
	}
	return ".rfcore"
}

// DefaultConfigPath is the default config file.
func DefaultConfigPath() string { return filepath.Join(configHome(), "config.toml") }

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	home := configHome()
	return Config{
		LogLevel:    "info",
		ReplayDir:   filepath.Join(home, "replays"),
		IndexPath:   filepath.Join(home, "library.db"),
		Device:      "127.0.0.1",
		Listen:      ":" + strconv.Itoa(network.DefaultPort),
		Format:      replay.FormatRFR.String(),
		Compression: compression.Gzip.String(),
	}
}

// AddFlags registers a flag for every setting, defaulting to c's values.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	for _, s := range c.settings() {
		fs.StringVar(s.dst, s.flag, *s.dst, s.usage)
	}
}

// LoadFileConfig reads a TOML config file.
func LoadFileConfig(path string) (Config, error) {
	var fc Config
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fc, errors.Wrapf(err, "parsing config %q", path)
	}
	return fc, nil
}

// LoadEnvFile loads variables from a dotenv file into the environment.
// Variables that are already set are kept. A missing file is ignored.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(godotenv.Load(path), "loading %q", path)
}

// Apply layers file and environment values over c. Settings whose flags are
// in changed keep their flag values. A nil file is skipped.
func (c *Config) Apply(file *Config, lookupEnv func(string) (string, bool), changed map[string]bool) {
	var fileSettings []setting
	if file != nil {
		fileSettings = file.settings()
	}

	for i, s := range c.settings() {
		if changed[s.flag] {
			continue
		}
		if fileSettings != nil && *fileSettings[i].dst != "" {
			*s.dst = *fileSettings[i].dst
		}
		if v, ok := lookupEnv(EnvPrefix + s.env); ok {
			*s.dst = v
		}
	}
}

// SaveOptions returns the replay save options c selects.
func (c *Config) SaveOptions() (replay.SaveOptions, error) {
	opts := replay.DefaultSaveOptions

	f, err := replay.ParseFormat(c.Format)
	if err != nil {
		return opts, err
	}
	comp, err := compression.ParseCompression(c.Compression)
	if err != nil {
		return opts, err
	}
	opts.Format, opts.Compression, opts.Version = f, comp, savefile.Latest
	return opts, nil
}

// Location returns the time zone of replay file names, or nil for local time.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	return loc, errors.Wrapf(err, "loading time zone %q", c.TimeZone)
}
