package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything needed to start the daemon or a one-shot run.
type Config struct {
	Controller string        `yaml:"controller"`
	Port       string        `yaml:"port"`
	Baud       int           `yaml:"baud"`
	SPJS       string        `yaml:"spjs"`
	Timeout    time.Duration `yaml:"timeout"`

	Addr string `yaml:"addr"`
	Dir  string `yaml:"dir"`

	Level       string  `yaml:"level"`
	Granularity float64 `yaml:"granularity"`

	Sim SimConfig `yaml:"sim"`

	// Run is only settable from the command line.
	Run string `yaml:"-"`
}

type SimConfig struct {
	Delay time.Duration `yaml:"delay"`
}

func defaultConfig() Config {
	return Config{
		Controller:  "grbl",
		Port:        "/dev/ttyUSB0",
		Baud:        115200,
		Addr:        ":9091",
		Dir:         "./data",
		Granularity: 1,
	}
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (cfg Config) validate() error {
	switch cfg.Controller {
	case "grbl", "sim":
	default:
		return fmt.Errorf("unknown controller '%s' (want grbl or sim)", cfg.Controller)
	}
	if cfg.Controller == "grbl" && cfg.Port == "" {
		return errors.New("port is required for grbl")
	}
	if cfg.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if cfg.Granularity <= 0 {
		return errors.New("granularity must be positive")
	}
	return nil
}

// parseConfig reads flags and the optional config file. Flags given on the
// command line win over the file.
func parseConfig(args []string) (*Config, error) {
	cfg := defaultConfig()
	var fl Config

	fs := flag.NewFlagSet("gcnc", flag.ContinueOnError)
	configFile := fs.String("config", "", "YAML config file to load.")
	fs.StringVar(&fl.Port, "port", cfg.Port, "Port path (or name if using SPJS).")
	fs.IntVar(&fl.Baud, "baud", cfg.Baud, "Serial baud rate.")
	fs.StringVar(&fl.SPJS, "spjs", cfg.SPJS, "Websocket URL of the SPJS server to use, e.g. ws://cnc-bridge:8989/ws.")
	fs.StringVar(&fl.Controller, "controller", cfg.Controller, "Name of the controller to use (grbl or sim).")
	fs.DurationVar(&fl.Timeout, "timeout", cfg.Timeout, "Max time to wait for each command to be acknowledged (0 waits forever).")
	fs.StringVar(&fl.Addr, "addr", cfg.Addr, "Address to bind the gCNC server to.")
	fs.StringVar(&fl.Dir, "dir", cfg.Dir, "Data directory to use.")
	fs.StringVar(&fl.Level, "level", cfg.Level, "Probe grid (JSON) to level programs against.")
	fs.Float64Var(&fl.Granularity, "granularity", cfg.Granularity, "Longest leveled segment, in mm.")
	fs.DurationVar(&fl.Sim.Delay, "sim-delay", cfg.Sim.Delay, "Simulated time per command.")
	fs.StringVar(&fl.Run, "run", "", "Stream a single file, then exit.")
	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}

	if *configFile != "" {
		err = loadConfigFile(*configFile, &cfg)
		if err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = fl.Port
		case "baud":
			cfg.Baud = fl.Baud
		case "spjs":
			cfg.SPJS = fl.SPJS
		case "controller":
			cfg.Controller = fl.Controller
		case "timeout":
			cfg.Timeout = fl.Timeout
		case "addr":
			cfg.Addr = fl.Addr
		case "dir":
			cfg.Dir = fl.Dir
		case "level":
			cfg.Level = fl.Level
		case "granularity":
			cfg.Granularity = fl.Granularity
		case "sim-delay":
			cfg.Sim.Delay = fl.Sim.Delay
		}
	})
	cfg.Run = fl.Run

	return &cfg, cfg.validate()
}
