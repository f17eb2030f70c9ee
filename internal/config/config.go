// Package config loads the goadi configuration: built-in defaults, then an
// optional YAML file, then GOADI_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up when no path is given.
const FileName = "goadi.yml"

// EnvPrefix marks environment overrides. GOADI_CONTEXT__URI sets context.uri
// and GOADI_CALIBRATION__NULLSEARCH__COARSESTEP sets calibration.nullsearch.coarsestep.
const EnvPrefix = "GOADI_"

type Log struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// Context selects the IIO context to open.
type Context struct {
	URI       string        `koanf:"uri" yaml:"uri"`
	Timeout   time.Duration `koanf:"timeout" yaml:"timeout"`
	SysfsRoot string        `koanf:"sysfsroot" yaml:"sysfsroot"`
	DebugRoot string        `koanf:"debugroot" yaml:"debugroot"`
}

// SSH reaches the carrier for sysfs access and boot scripts. An empty Host
// means the host of the context URI.
type SSH struct {
	Host     string `koanf:"host" yaml:"host"`
	User     string `koanf:"user" yaml:"user"`
	Password string `koanf:"password" yaml:"password"`
	KeyPath  string `koanf:"keypath" yaml:"keypath"`
	Port     int    `koanf:"port" yaml:"port"`
}

// Rail is one bench supply channel powered before a TX calibration.
type Rail struct {
	Channel int     `koanf:"channel" yaml:"channel"`
	Voltage float64 `koanf:"voltage" yaml:"voltage"`
	Current float64 `koanf:"current" yaml:"current"`
}

// Instruments holds the SCPI addresses of the bench gear. Empty means absent.
type Instruments struct {
	Analyzer    string        `koanf:"analyzer" yaml:"analyzer"`
	Generator   string        `koanf:"generator" yaml:"generator"`
	Supply      string        `koanf:"supply" yaml:"supply"`
	SupplyModel string        `koanf:"supplymodel" yaml:"supplymodel"`
	Center      float64       `koanf:"center" yaml:"center"`
	Span        float64       `koanf:"span" yaml:"span"`
	Interval    time.Duration `koanf:"interval" yaml:"interval"`
	Timeout     time.Duration `koanf:"timeout" yaml:"timeout"`
	Rails       []Rail        `koanf:"rails" yaml:"rails"`
}

type Null struct {
	CoarseStart int           `koanf:"coarsestart" yaml:"coarsestart"`
	CoarseStop  int           `koanf:"coarsestop" yaml:"coarsestop"`
	CoarseStep  int           `koanf:"coarsestep" yaml:"coarsestep"`
	FineRange   int           `koanf:"finerange" yaml:"finerange"`
	FineLimit   int           `koanf:"finelimit" yaml:"finelimit"`
	Settle      time.Duration `koanf:"settle" yaml:"settle"`
}

// Calibration covers the phaser and TX bench routines.
type Calibration struct {
	Dir        string  `koanf:"dir" yaml:"dir"`
	Averages   int     `koanf:"averages" yaml:"averages"`
	PhaseStep  float64 `koanf:"phasestep" yaml:"phasestep"`
	SignalFreq float64 `koanf:"signalfreq" yaml:"signalfreq"`
	Reference  int     `koanf:"reference" yaml:"reference"`

	// PABias is written as both the on and off PA bias of every element
	// before TX nulling.
	PABias  float64 `koanf:"pabias" yaml:"pabias"`
	BootCmd string  `koanf:"bootcmd" yaml:"bootcmd"`
	Null    Null    `koanf:"nullsearch" yaml:"nullsearch"`
}

type Server struct {
	Addr         string `koanf:"addr" yaml:"addr"`
	HistoryLimit int    `koanf:"historylimit" yaml:"historylimit"`
}

// Config is the full tool configuration.
type Config struct {
	Log         Log         `koanf:"log" yaml:"log"`
	Context     Context     `koanf:"context" yaml:"context"`
	SSH         SSH         `koanf:"ssh" yaml:"ssh"`
	Instruments Instruments `koanf:"instruments" yaml:"instruments"`
	Calibration Calibration `koanf:"calibration" yaml:"calibration"`
	Server      Server      `koanf:"server" yaml:"server"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:     Log{Level: "info", Format: "text"},
		Context: Context{URI: "ip:192.168.2.1", Timeout: 5 * time.Second},
		SSH:     SSH{User: "root", Password: "analog", Port: 22},
		Instruments: Instruments{
			SupplyModel: "E36233A",
			Center:      10e9,
			Span:        1e6,
			Interval:    20 * time.Millisecond,
			Timeout:     5 * time.Second,
			Rails: []Rail{
				{Channel: 1, Voltage: 12, Current: 3},
				{Channel: 2, Voltage: 12, Current: 3},
			},
		},
		Calibration: Calibration{
			Dir:        ".",
			Averages:   16,
			PhaseStep:  2.8125,
			SignalFreq: 10.492e9,
			Reference:  1,
			PABias:     -4.8,
			BootCmd:    "bash manta_ray_adar1000_boot.bash",
			Null: Null{
				CoarseStop: 195,
				CoarseStep: 15,
				FineRange:  15,
				FineLimit:  196,
				Settle:     50 * time.Millisecond,
			},
		},
		Server: Server{Addr: ":8000", HistoryLimit: 2000},
	}
}

// Load layers the defaults, the YAML file at path and the environment. A
// missing file is not an error; an unreadable or malformed one is.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config defaults: %w", err)
	}
	if path == "" {
		path = FileName
	}
	if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := k.Load(envProvider(), nil); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("config decode: %w", err)
	}
	return c, nil
}

// envProvider maps GOADI_SERVER__ADDR to server.addr.
func envProvider() *env.Env {
	return env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	})
}

// Encode writes c as YAML.
func Encode(w io.Writer, c Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	if path == "" {
		path = FileName
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, Default()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
