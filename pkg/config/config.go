// Package config provides the process-wide, read-only configuration
// registry (C1): a layered INI-style source plus the route table every
// other component resolves route names against.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/ini.v1"
)

// Config is the process-wide configuration registry. It is initialized once
// via Load and never mutated thereafter; Reset exists only so tests can
// rebuild it between cases.
type Config struct {
	file   *ini.File
	routes RouteTable
}

var (
	mu       sync.RWMutex
	instance *Config
)

// Load reads one or more layered INI files (later files override keys set
// by earlier ones, exactly like ini.Load's multi-source behavior), then
// overlays environment variables of the form GPF_<SECTION>_<KEY>, and
// installs the result as the process-wide singleton.
func Load(paths ...string) (*Config, error) {
	sources := make([]interface{}, 0, len(paths))
	for _, p := range paths {
		sources = append(sources, p)
	}

	var file *ini.File
	var err error
	if len(sources) == 0 {
		file = ini.Empty()
	} else {
		file, err = ini.Load(sources[0], sources[1:]...)
		if err != nil {
			return nil, fmt.Errorf("config: chargement impossible: %w", err)
		}
	}

	applyEnvOverrides(file)

	routes, err := parseRouteTable(file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{file: file, routes: routes}

	mu.Lock()
	instance = cfg
	mu.Unlock()

	return cfg, nil
}

// Get returns the process-wide singleton. It panics if Load has not been
// called yet — this is a startup-wiring error, never a request-path one.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("config: Get() called before Load()")
	}
	return instance
}

// Reset clears the singleton so tests can call Load again from scratch.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}

func applyEnvOverrides(file *ini.File) {
	for _, e := range os.Environ() {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, val := parts[0], parts[1]
		if !strings.HasPrefix(key, "GPF_") {
			continue
		}
		rest := strings.TrimPrefix(key, "GPF_")
		idx := strings.Index(rest, "_")
		if idx < 0 {
			continue
		}
		section := strings.ToLower(rest[:idx])
		iniKey := strings.ToLower(rest[idx+1:])
		file.Section(section).Key(iniKey).SetValue(val)
	}
}

// GetStr returns a string value, or "" if the key is absent.
func (c *Config) GetStr(section, key string) string {
	return c.file.Section(section).Key(key).String()
}

// GetStrDefault returns a string value, or def if the key is absent.
func (c *Config) GetStrDefault(section, key, def string) string {
	v := c.GetStr(section, key)
	if v == "" {
		return def
	}
	return v
}

// GetInt returns an integer value, or def if the key is absent or
// unparseable.
func (c *Config) GetInt(section, key string, def int) int {
	v := c.file.Section(section).Key(key).String()
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetBool returns a boolean value, or def if the key is absent or
// unparseable.
func (c *Config) GetBool(section, key string, def bool) bool {
	v := c.file.Section(section).Key(key).String()
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// StoreAPIConfig holds the distinguished store_api section.
type StoreAPIConfig struct {
	RootURL              string
	NbAttempts           int
	SecBetweenAttempts   time.Duration
	CheckStatusURL       string
	MaxRequestsPerSecond float64 // 0 means unlimited
	DefaultDatastore     string
}

// StoreAPI returns the typed accessor for the store_api section.
func (c *Config) StoreAPI() StoreAPIConfig {
	return StoreAPIConfig{
		RootURL:              c.GetStr("store_api", "root_url"),
		NbAttempts:           c.GetInt("store_api", "nb_attempts", 3),
		SecBetweenAttempts:   time.Duration(c.GetInt("store_api", "sec_between_attempts", 30)) * time.Second,
		CheckStatusURL:       c.GetStr("store_api", "check_status_url"),
		MaxRequestsPerSecond: parseFloatDefault(c.GetStr("store_api", "max_requests_per_second"), 0),
		DefaultDatastore:     c.GetStr("store_api", "datastore"),
	}
}

// StoreAuthentificationConfig holds the distinguished store_authentification
// section used by the Authenticator's password-grant exchange.
type StoreAuthentificationConfig struct {
	AuthBaseURL  string
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	SafetyMargin time.Duration
}

// StoreAuthentification returns the typed accessor for the
// store_authentification section.
func (c *Config) StoreAuthentification() StoreAuthentificationConfig {
	return StoreAuthentificationConfig{
		AuthBaseURL:  c.GetStr("store_authentification", "auth_base_url"),
		Username:     c.GetStr("store_authentification", "login"),
		Password:     c.GetStr("store_authentification", "password"),
		ClientID:     c.GetStr("store_authentification", "client_id"),
		ClientSecret: c.GetStr("store_authentification", "client_secret"),
		SafetyMargin: time.Duration(c.GetInt("store_authentification", "safety_margin_sec", 30)) * time.Second,
	}
}

// ProcessingExecutionConfig holds the distinguished processing_execution
// section.
type ProcessingExecutionConfig struct {
	BehaviorIfExists         string
	NbSecBetweenCheckUpdates time.Duration
}

// ProcessingExecutionCfg returns the typed accessor for the
// processing_execution section.
func (c *Config) ProcessingExecutionCfg() ProcessingExecutionConfig {
	return ProcessingExecutionConfig{
		BehaviorIfExists:         c.GetStrDefault("processing_execution", "behavior_if_exists", "STOP"),
		NbSecBetweenCheckUpdates: time.Duration(c.GetInt("processing_execution", "nb_sec_between_check_updates", 30)) * time.Second,
	}
}

// CompatibilityCartesConfig holds the distinguished compatibility_cartes
// section.
type CompatibilityCartesConfig struct {
	Enabled         bool
	IDMiseEnBase    string
	DatasheetTagKey string
}

// CompatibilityCartes returns the typed accessor for the
// compatibility_cartes section.
func (c *Config) CompatibilityCartes() CompatibilityCartesConfig {
	return CompatibilityCartesConfig{
		Enabled:         c.GetBool("compatibility_cartes", "enabled", false),
		IDMiseEnBase:    c.GetStr("compatibility_cartes", "id_mise_en_base"),
		DatasheetTagKey: c.GetStrDefault("compatibility_cartes", "datasheet_name_tag_key", "datasheet_name"),
	}
}

// RouteTable returns the parsed routing section.
func (c *Config) RouteTable() RouteTable {
	return c.routes
}

func parseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
