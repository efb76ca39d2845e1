/*
	Madrox
	Copyright (c) 2026 The Madrox Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package madroxapp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/madrox-osint/madrox/hivemind"
	"go.uber.org/zap"
)

// InMemory is the Repository value that keeps all
// data in memory instead of on disk.
const InMemory = ":memory:"

// Config describes the server configuration.
// Config values must not be copied (i.e. use pointers).
type Config struct {
	sync.RWMutex `json:"-"`

	// The listen address to bind the socket to.
	Listen string `json:"listen,omitempty"`

	// Additional origins (scheme://host:port) allowed to
	// call the API from a browser.
	Origins []string `json:"origins,omitempty"`

	// The folder of the hivemind repository. If empty,
	// DefaultRepositoryDir() is used; if ":memory:",
	// nothing is written to disk.
	Repository string `json:"repository,omitempty"`

	// Entity store capacity and what to do when it is reached
	// ("evict" or "reject").
	MaxEntities    int                     `json:"max_entities,omitempty"`
	EvictionPolicy hivemind.EvictionPolicy `json:"eviction_policy,omitempty"`

	// How many characters of surrounding text to keep
	// with each extracted entity.
	ContextRadius int `json:"context_radius,omitempty"`

	// The ISO 3166 region assumed for phone numbers
	// written without a country code.
	DefaultPhoneRegion string `json:"default_phone_region,omitempty"`

	log *zap.Logger
}

func (cfg *Config) listenAddr() string {
	cfg.RLock()
	defer cfg.RUnlock()
	if envVal := os.Getenv("MADROX_ADMIN_ADDR"); envVal != "" {
		return envVal
	}
	if cfg.Listen != "" {
		return cfg.Listen
	}
	return defaultAdminAddr
}

func (cfg *Config) fillDefaults() {
	cfg.Lock()
	defer cfg.Unlock()
	if cfg.Repository == "" {
		cfg.Repository = DefaultRepositoryDir()
	}
	if cfg.log == nil {
		cfg.log = hivemind.Log.Named("config").With(zap.Time("loaded", time.Now()))
	}
}

// hivemindOptions returns the hivemind settings of the config
// and the folder to open, which is empty for in-memory use.
func (cfg *Config) hivemindOptions() (string, hivemind.Options) {
	cfg.RLock()
	defer cfg.RUnlock()
	repoDir := cfg.Repository
	if repoDir == InMemory {
		repoDir = ""
	}
	return repoDir, hivemind.Options{
		MaxEntities:        cfg.MaxEntities,
		EvictionPolicy:     cfg.EvictionPolicy,
		ContextRadius:      cfg.ContextRadius,
		DefaultPhoneRegion: cfg.DefaultPhoneRegion,
	}
}

// autosave persists the config to disk by obtaining a read lock, so it is safe for concurrent use.
func (cfg *Config) autosave() error {
	cfg.RLock()
	defer cfg.RUnlock()
	return cfg.unsyncedSave()
}

func (cfg *Config) unsyncedSave() error {
	filename := DefaultConfigFilePath()
	err := os.MkdirAll(filepath.Dir(filename), 0755)
	if err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	cfgFile, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer cfgFile.Close()
	enc := json.NewEncoder(cfgFile)
	enc.SetIndent("", "\t")
	if err = enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if cfg.log != nil {
		cfg.log.Info("saved config file", zap.String("path", filename))
	}
	return nil
}

// DefaultConfigFilePath returns the file path where
// configuration is persisted.
func DefaultConfigFilePath() string {
	cfgDir, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(cfgDir, "madrox", "config.json")
	}
	cfgDir, err = os.UserHomeDir()
	if err == nil {
		return filepath.Join(cfgDir, ".madrox", "config.json")
	}
	return filepath.Join(".madrox", "config.json")
}

// DefaultRepositoryDir returns the folder where the hivemind
// repository is kept if none is configured.
func DefaultRepositoryDir() string {
	return filepath.Join(userDataDir(), "madrox", "hivemind")
}
