// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and saves the selfencrypt configuration file.
//
// The file is a list of "key = value" lines. Blank lines and lines starting
// with '#' are skipped, unknown keys are ignored so older binaries can read
// newer files, and keys missing from the file keep their defaults.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// configFileName is the name of the configuration file inside the data directory.
const configFileName = "config"

// Config holds every configurable value.
type Config struct {
	// DataDir is the directory holding the chunk store.
	DataDir string

	// Backend selects the chunk store: "file", "bolt", "badger" or "memory".
	Backend string

	// Fallbacks are read-only chunk directories consulted when a chunk is
	// missing from the primary store.
	Fallbacks []string

	ChunkSize     uint32
	MaxInlineSize uint32
	Neighbors     int

	// Workers bounds parallel hashing and sealing; 0 means one per CPU.
	Workers int

	// Compression is "none", "gzip" or "zstd".
	Compression string

	// CacheSize is the in-memory ciphertext cache size in MiB; 0 disables it.
	CacheSize int

	LogLevel string
	LogFile  string
}

// DefaultDataDir returns ~/.selfencrypt, or .selfencrypt in the working
// directory when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".selfencrypt"
	}
	return filepath.Join(home, ".selfencrypt")
}

// ConfigPath returns the configuration file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		DataDir:       DefaultDataDir(),
		Backend:       "file",
		ChunkSize:     1 << 20,
		MaxInlineSize: 3 * 1024,
		Neighbors:     2,
		Workers:       0,
		Compression:   "zstd",
		CacheSize:     64,
		LogLevel:      "info",
		LogFile:       "",
	}
}

// LoadConfig reads the file at path on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := parseKeyValue(line)
		if !ok {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := applyKey(&cfg, key, value); err != nil {
			return cfg, fmt.Errorf("%w: line %d: %w", ErrInvalidConfigLine, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories as needed.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# selfencrypt configuration\n\n")
	fmt.Fprintf(&b, "datadir = %s\n", cfg.DataDir)
	fmt.Fprintf(&b, "backend = %s\n", cfg.Backend)
	fmt.Fprintf(&b, "fallbacks = %s\n", strings.Join(cfg.Fallbacks, ","))
	fmt.Fprintf(&b, "chunksize = %d\n", cfg.ChunkSize)
	fmt.Fprintf(&b, "maxinline = %d\n", cfg.MaxInlineSize)
	fmt.Fprintf(&b, "neighbors = %d\n", cfg.Neighbors)
	fmt.Fprintf(&b, "workers = %d\n", cfg.Workers)
	fmt.Fprintf(&b, "compression = %s\n", cfg.Compression)
	fmt.Fprintf(&b, "cachesize = %d\n", cfg.CacheSize)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// parseKeyValue splits "key = value" on the first '='.
func parseKeyValue(line string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func applyKey(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "datadir":
		cfg.DataDir = value
	case "backend":
		cfg.Backend = value
	case "fallbacks":
		cfg.Fallbacks = splitList(value)
	case "chunksize":
		cfg.ChunkSize, err = parseUint32(value)
	case "maxinline":
		cfg.MaxInlineSize, err = parseUint32(value)
	case "neighbors":
		cfg.Neighbors, err = strconv.Atoi(value)
	case "workers":
		cfg.Workers, err = strconv.Atoi(value)
	case "compression":
		cfg.Compression = value
	case "cachesize":
		cfg.CacheSize, err = strconv.Atoi(value)
	case "loglevel":
		cfg.LogLevel = value
	case "logfile":
		cfg.LogFile = value
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
