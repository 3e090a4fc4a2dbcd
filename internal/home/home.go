// Package home manages the ~/.spires directory.
package home

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DefaultDirName is the default name for the spires home directory.
	DefaultDirName = ".spires"

	// ConfigFileName is the config file inside the home directory.
	ConfigFileName = "config.yaml"

	// CacheFileName is the sqlite completion cache.
	CacheFileName = "cache.db"

	// IterationsDirName holds iteration state files.
	IterationsDirName = "iterations"

	// TemplatesDirName holds user templates loaded by name.
	TemplatesDirName = "templates"
)

// Dir represents the spires home directory structure.
type Dir struct {
	path string
}

// New opens the home directory at path, or ~/.spires when path is empty.
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate user home: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path is the home directory itself.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath is where config init writes and the CLI reads by default.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// CachePath returns the path to the default completion cache.
func (d *Dir) CachePath() string {
	return filepath.Join(d.path, CacheFileName)
}

// IterationsDir returns the directory for iteration state files.
func (d *Dir) IterationsDir() string {
	return filepath.Join(d.path, IterationsDirName)
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// IterationCachePath returns the default state file for iterating from entity.
func (d *Dir) IterationCachePath(entity string) string {
	slug := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(entity), "_"), "_")
	if slug == "" {
		slug = "iteration"
	}
	return filepath.Join(d.IterationsDir(), slug+".yaml")
}

// TemplatesDir returns the directory searched for user templates.
func (d *Dir) TemplatesDir() string {
	return filepath.Join(d.path, TemplatesDirName)
}

// TemplatePath returns the path a user template named name would have.
func (d *Dir) TemplatePath(name string) string {
	return filepath.Join(d.TemplatesDir(), name+".yaml")
}

// EnsureExists creates the home directory with its templates and iterations subdirectories.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.IterationsDir(), d.TemplatesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether the home directory is present.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists reports whether ConfigPath is present.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
