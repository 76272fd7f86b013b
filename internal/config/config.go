// Package config resolves run parameters from defaults, JSONC config files
// and command-line overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/poolstress/internal/stress"
)

// Errors returned by [Load].
var (
	ErrConfigInvalid      = errors.New("invalid config")
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrInvalidMode        = errors.New("mode must be octal permission bits")
)

// FileName is the project config file looked up in the working directory.
const FileName = ".poolstress.json"

// Values is one layer of settings. Nil fields are unset and leave the
// lower layer in place, so an explicit 0 or false still overrides.
type Values struct {
	Prefix  *string `json:"prefix,omitempty"`
	Workers *int    `json:"workers,omitempty"`
	Cycles  *int    `json:"cycles,omitempty"`
	Extent  *int64  `json:"extent,omitempty"`
	Layout  *string `json:"layout,omitempty"`
	Mode    *string `json:"mode,omitempty"` // octal, e.g. "0644"
	IDs     *string `json:"ids,omitempty"`
	Sweep   *bool   `json:"sweep,omitempty"`
	Report  *string `json:"report,omitempty"`
	Metrics *string `json:"metrics,omitempty"`
	Verbose *bool   `json:"verbose,omitempty"`
}

// Config is the resolved configuration.
type Config struct {
	Run stress.Config

	// Report is the JSON report path, empty for none.
	Report string

	// Metrics is the Prometheus textfile path, empty for none.
	Metrics string

	Verbose bool

	// Sources tracks which config files were loaded.
	Sources Sources
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // path to global config if loaded, empty otherwise
	Project string // path to project or explicit config if loaded, empty otherwise
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDir    string            // if empty, os.Getwd() is used
	ConfigPath string            // -c/--config flag value
	Env        map[string]string // environment variables
	Overrides  Values            // flags set on the command line
}

// Default returns the configuration used when nothing is set.
func Default(env map[string]string) Config {
	run := stress.DefaultConfig()

	if tmp := env["TMPDIR"]; tmp != "" {
		run.Prefix = filepath.Join(tmp, "pmemobj_mt_safety")
	}

	return Config{Run: run}
}

// globalPath returns $XDG_CONFIG_HOME/poolstress/config.json, falling back
// to ~/.config. Empty if neither is known.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "poolstress", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "poolstress", "config.json")
	}

	return ""
}

// Load resolves the configuration with the following precedence (highest
// wins):
//  1. Defaults
//  2. Global user config
//  3. Project config (.poolstress.json in the working directory) or the
//     explicit --config file
//  4. Command-line overrides
//
// A relative prefix, report or metrics path is resolved against the working
// directory.
func Load(in LoadInput) (Config, error) {
	workDir := in.WorkDir
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default(in.Env)

	if path := globalPath(in.Env); path != "" {
		vals, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			if err := apply(&cfg, vals); err != nil {
				return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
			}

			cfg.Sources.Global = path
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false
	if in.ConfigPath != "" {
		projectPath, mustExist = in.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	vals, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		if err := apply(&cfg, vals); err != nil {
			return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, projectPath, err)
		}

		cfg.Sources.Project = projectPath
	}

	if err := apply(&cfg, in.Overrides); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	cfg.Run.Prefix = absPath(workDir, cfg.Run.Prefix)
	cfg.Report = absPath(workDir, cfg.Report)
	cfg.Metrics = absPath(workDir, cfg.Metrics)

	if err := cfg.Run.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return cfg, nil
}

func absPath(workDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(workDir, path)
}

// loadFile reads a JSONC config file. A missing optional file is not an
// error and reports loaded == false.
func loadFile(path string, mustExist bool) (Values, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case os.IsNotExist(err) && mustExist:
			return Values{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		case os.IsNotExist(err):
			return Values{}, false, nil
		default:
			return Values{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
		}
	}

	vals, err := Parse(data)
	if err != nil {
		return Values{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return vals, true, nil
}

// Parse decodes one JSONC config layer. Unknown keys are rejected so typos
// do not silently fall back to defaults.
func Parse(data []byte) (Values, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Values{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var vals Values

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&vals); err != nil {
		return Values{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return vals, nil
}

func apply(cfg *Config, v Values) error {
	if v.Prefix != nil {
		if *v.Prefix == "" {
			return errors.New("prefix cannot be empty")
		}

		cfg.Run.Prefix = *v.Prefix
	}

	if v.Workers != nil {
		cfg.Run.Workers = *v.Workers
	}

	if v.Cycles != nil {
		cfg.Run.Cycles = *v.Cycles
	}

	if v.Extent != nil {
		cfg.Run.Extent = *v.Extent
	}

	if v.Layout != nil {
		cfg.Run.Layout = *v.Layout
	}

	if v.Mode != nil {
		mode, err := ParseMode(*v.Mode)
		if err != nil {
			return err
		}

		cfg.Run.Mode = mode
	}

	if v.IDs != nil {
		cfg.Run.IDs = *v.IDs
	}

	if v.Sweep != nil {
		cfg.Run.Sweep = *v.Sweep
	}

	if v.Report != nil {
		cfg.Report = *v.Report
	}

	if v.Metrics != nil {
		cfg.Metrics = *v.Metrics
	}

	if v.Verbose != nil {
		cfg.Verbose = *v.Verbose
	}

	return nil
}

// ParseMode parses an octal permission string such as "0644" or "644".
func ParseMode(s string) (os.FileMode, error) {
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil || os.FileMode(n)&^os.ModePerm != 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}

	return os.FileMode(n), nil
}
