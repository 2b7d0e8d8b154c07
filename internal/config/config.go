// Package config handles loading and managing msglist configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Folder kinds.
const (
	KindMaildir = "maildir"
	KindSQLite  = "sqlite"
)

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir  string `toml:"data_dir"`
	StateDir string `toml:"state_dir"` // persisted expand state, default <data_dir>/state
	Database string `toml:"database"`  // SQLite path, default <data_dir>/msglist.db
}

// ViewConfig holds the initial display settings of a message list.
type ViewConfig struct {
	GroupByThreads        bool   `toml:"group_by_threads"`
	ThreadSubject         bool   `toml:"thread_subject"`
	ThreadLatest          bool   `toml:"thread_latest"`
	ThreadFlat            bool   `toml:"thread_flat"`
	ShowDeleted           bool   `toml:"show_deleted"`
	ShowJunk              bool   `toml:"show_junk"`
	ExpandedDefault       bool   `toml:"expanded_default"`
	DeleteSelectsPrevious bool   `toml:"delete_selects_previous"`
	SortBy                string `toml:"sort_by"`
	SortDescending        bool   `toml:"sort_descending"`
}

// RegenConfig tunes regeneration.
type RegenConfig struct {
	IncrementalThreshold int `toml:"incremental_threshold"` // changed messages patched in place
	Workers              int `toml:"workers"`               // concurrent record fetches
}

// ThreadingConfig tunes subject threading.
type ThreadingConfig struct {
	ReplyPrefixes []string `toml:"reply_prefixes"`
}

// FolderConfig defines one folder the CLI can open.
type FolderConfig struct {
	Name            string `toml:"name"`
	Kind            string `toml:"kind"` // maildir or sqlite
	Path            string `toml:"path"` // maildir directory; unused for sqlite
	IsTrash         bool   `toml:"is_trash"`
	IsJunk          bool   `toml:"is_junk"`
	RefreshSchedule string `toml:"refresh_schedule"` // cron expression for periodic rescans
}

// Config represents the msglist configuration.
type Config struct {
	Data      DataConfig      `toml:"data"`
	View      ViewConfig      `toml:"view"`
	Regen     RegenConfig     `toml:"regen"`
	Threading ThreadingConfig `toml:"threading"`
	Folders   []FolderConfig  `toml:"folders"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// DefaultHome returns the default msglist home directory.
// Respects MSGLIST_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MSGLIST_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".msglist"
	}
	return filepath.Join(home, ".msglist")
}

// NewDefaultConfig returns a configuration with default values rooted at
// DefaultHome.
func NewDefaultConfig() *Config {
	return newConfig(DefaultHome())
}

func newConfig(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		View: ViewConfig{
			GroupByThreads:  true,
			ExpandedDefault: true,
			SortBy:          "received",
		},
		Regen: RegenConfig{
			IncrementalThreshold: 100,
			Workers:              4,
		},
		Folders: []FolderConfig{},
	}
}

// Load reads the configuration from path. An empty path uses
// <home>/config.toml, where home is homeDir or DefaultHome when homeDir is
// empty; a missing default file yields the defaults. An explicit path that
// does not exist is an error, and its directory becomes the home directory
// unless homeDir is given.
func Load(path, homeDir string) (*Config, error) {
	explicit := path != ""
	if homeDir != "" {
		homeDir = expandPath(homeDir)
	} else if explicit {
		homeDir = filepath.Dir(expandPath(path))
	} else {
		homeDir = DefaultHome()
	}
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}
	path = expandPath(path)

	cfg := newConfig(homeDir)
	cfg.configPath = path

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("config file: %w", err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if msg := err.Error(); strings.Contains(msg, "escape") || strings.Contains(msg, "hexadecimal") {
			return nil, fmt.Errorf("decode config: %w (hint: use forward slashes or single quotes for Windows paths)", err)
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = cfg.resolve(cfg.Data.DataDir)
	cfg.Data.StateDir = cfg.resolve(cfg.Data.StateDir)
	cfg.Data.Database = cfg.resolve(cfg.Data.Database)
	for i := range cfg.Folders {
		cfg.Folders[i].Path = cfg.resolve(cfg.Folders[i].Path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve expands ~ and makes relative paths relative to the home directory.
func (c *Config) resolve(p string) string {
	p = expandPath(p)
	if p != "" && !filepath.IsAbs(p) {
		p = filepath.Join(c.HomeDir, p)
	}
	return p
}

// Validate checks folder definitions and numeric limits.
func (c *Config) Validate() error {
	if c.Regen.IncrementalThreshold < 0 {
		return fmt.Errorf("regen.incremental_threshold must not be negative")
	}
	if c.Regen.Workers < 0 {
		return fmt.Errorf("regen.workers must not be negative")
	}
	seen := make(map[string]bool, len(c.Folders))
	for i, f := range c.Folders {
		if f.Name == "" {
			return fmt.Errorf("folders[%d]: name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("folders[%d]: duplicate folder %q", i, f.Name)
		}
		seen[f.Name] = true
		switch f.Kind {
		case KindMaildir:
			if f.Path == "" {
				return fmt.Errorf("folder %q: maildir folders need a path", f.Name)
			}
		case KindSQLite, "":
		default:
			return fmt.Errorf("folder %q: unknown kind %q", f.Name, f.Kind)
		}
		if f.IsTrash && f.IsJunk {
			return fmt.Errorf("folder %q: cannot be both trash and junk", f.Name)
		}
	}
	return nil
}

// ConfigFilePath returns the path the configuration was (or would be) read from.
func (c *Config) ConfigFilePath() string {
	if c.configPath != "" {
		return c.configPath
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	if c.Data.Database != "" {
		return c.Data.Database
	}
	return filepath.Join(c.Data.DataDir, "msglist.db")
}

// StateDir returns the directory holding persisted expand state.
func (c *Config) StateDir() string {
	if c.Data.StateDir != "" {
		return c.Data.StateDir
	}
	return filepath.Join(c.Data.DataDir, "state")
}

// GetFolder returns a copy of the named folder definition, or nil.
func (c *Config) GetFolder(name string) *FolderConfig {
	for i := range c.Folders {
		if c.Folders[i].Name == name {
			f := c.Folders[i]
			return &f
		}
	}
	return nil
}

// ScheduledFolders returns the folders with a refresh schedule.
func (c *Config) ScheduledFolders() []FolderConfig {
	var scheduled []FolderConfig
	for _, f := range c.Folders {
		if f.RefreshSchedule != "" {
			scheduled = append(scheduled, f)
		}
	}
	return scheduled
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
