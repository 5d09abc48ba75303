package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/onyx-dev/onyx-database-go/internal/debug"
)

// File names searched in the working and home directories.
const (
	FileName   = "onyx-database.json"
	ProfileDir = ".onyx"
)

// FileValues is the on-disk shape of a credentials file.
type FileValues struct {
	DatabaseID string `json:"databaseId"`
	BaseURL    string `json:"databaseBaseUrl,omitempty"`
	APIKey     string `json:"apiKey"`
	APISecret  string `json:"apiSecret"`
}

// ProfileFileName is onyx-database-<id>.json.
func ProfileFileName(databaseID string) string {
	return "onyx-database-" + databaseID + ".json"
}

// probeFiles merges file sources into acc, most specific first, and stops
// as soon as every required field is known.
func (r *Resolver) probeFiles(acc *fields, configPath string, consulted, used []string) ([]string, []string, error) {
	if configPath != "" {
		consulted = append(consulted, configPath)
		f, err := r.readFile(configPath)
		if err != nil {
			return consulted, used, &ConfigurationError{
				Msg:     "cannot read config file",
				Path:    configPath,
				Sources: consulted,
				Cause:   err,
			}
		}
		if acc.merge(f) {
			used = append(used, configPath)
		}
	}

	seen := make(map[string]bool)
	probe := func(path string) error {
		if acc.complete() || seen[path] {
			return nil
		}
		seen[path] = true
		consulted = append(consulted, path)
		if ok, _ := afero.Exists(r.fs, path); !ok {
			return nil
		}
		f, err := r.readFile(path)
		if err != nil {
			return &ConfigurationError{Msg: "cannot parse config file", Path: path, Sources: consulted, Cause: err}
		}
		if acc.merge(f) {
			debug.Debug("config file used", "path", path)
			used = append(used, path)
		}
		return nil
	}

	var paths []func() string
	withID := func(dir string) func() string {
		return func() string {
			if acc.databaseID == "" {
				return ""
			}
			return filepath.Join(dir, ProfileFileName(acc.databaseID))
		}
	}
	fixed := func(path string) func() string { return func() string { return path } }

	paths = append(paths, withID(r.workDir), fixed(filepath.Join(r.workDir, FileName)))

	home, err := r.home()
	if err != nil {
		debug.Debug("home directory unavailable; skipping profile files", "error", err)
	}
	profileDir := ""
	if home != "" {
		profileDir = filepath.Join(home, ProfileDir)
		paths = append(paths,
			withID(profileDir),
			fixed(filepath.Join(profileDir, FileName)),
			fixed(filepath.Join(home, FileName)),
		)
	}

	for _, p := range paths {
		if path := p(); path != "" {
			if err := probe(path); err != nil {
				return consulted, used, err
			}
		}
	}

	if acc.complete() || profileDir == "" {
		return consulted, used, nil
	}

	pattern := filepath.Join(profileDir, "onyx-database-*.json")
	matches, err := afero.Glob(r.fs, pattern)
	if err != nil {
		return consulted, used, &ConfigurationError{Msg: "cannot list profiles", Path: pattern, Sources: consulted, Cause: err}
	}
	switch len(matches) {
	case 0:
		consulted = append(consulted, pattern)
	case 1:
		if err := probe(matches[0]); err != nil {
			return consulted, used, err
		}
	default:
		consulted = append(consulted, pattern)
		return consulted, used, &ConfigurationError{
			Msg: fmt.Sprintf("found %d profiles (%s); set %s or %s to pick one",
				len(matches), strings.Join(matches, ", "), EnvDatabaseID, EnvConfigPath),
			Sources: consulted,
		}
	}
	return consulted, used, nil
}

func (r *Resolver) readFile(path string) (fields, error) {
	v := viper.New()
	v.SetFs(r.fs)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fields{}, err
	}
	baseURL := v.GetString("databaseBaseUrl")
	if baseURL == "" {
		baseURL = v.GetString("baseUrl")
	}
	return fields{
		baseURL:    strings.TrimSpace(baseURL),
		databaseID: strings.TrimSpace(v.GetString("databaseId")),
		apiKey:     strings.TrimSpace(v.GetString("apiKey")),
		apiSecret:  strings.TrimSpace(v.GetString("apiSecret")),
	}, nil
}

// WriteFile stores values at path with owner-only permissions, creating
// the parent directory when needed.
func WriteFile(fs afero.Fs, path string, values FileValues) error {
	if fs == nil {
		fs = AppFs
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, append(data, '\n'), 0o600)
}

// DefaultProfilePath returns ~/.onyx/onyx-database-<id>.json, or
// ~/.onyx/onyx-database.json when id is empty.
func DefaultProfilePath(databaseID string) (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	name := FileName
	if databaseID != "" {
		name = ProfileFileName(databaseID)
	}
	return filepath.Join(home, ProfileDir, name), nil
}
