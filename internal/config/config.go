// Package config assembles the klone process's full configuration by a
// priority cascade — defaults < global config file < instance config file
// < environment variables < command-line flags — the same shape as the
// retrieved pack's cmd/gasoline-cmd/config loader, generalised from a flat
// CLI-tool config to klone's nested backend/vhost/session/klog tree.
//
// Configuration errors are fatal at startup per spec.md §7 item 5; Load
// returns an error rather than a partially-valid Config so cmd/klone can
// log and exit non-zero without guessing at what's usable.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klone-io/klone/internal/httpengine"
	"github.com/klone-io/klone/internal/workerpool"
)

// BackendConfig describes one listening service, per spec.md §4.8's
// backend table.
type BackendConfig struct {
	ID         string `json:"id"`
	Network    string `json:"network"` // "tcp", "tcp4", "tcp6"; default "tcp"
	Address    string `json:"address"`
	Protocol   string `json:"protocol"` // "http" or "https"
	TLSCert    string `json:"tls_cert"`
	TLSKey     string `json:"tls_key"`
	Model      string `json:"model"` // "iterative", "fork", "prefork"
	MaxChild   int    `json:"max_child"`
	StartChild int    `json:"start_child"`
	MaxRq      int    `json:"max_rq_per_child"`

	Chroot      string `json:"chroot"`
	BlindChroot bool   `json:"blind_chroot"`
	SetUID      int    `json:"set_uid"`
	SetGID      int    `json:"set_gid"`
	AllowRoot   bool   `json:"allow_root"`
}

// SessionConfig configures the session cookie and its backend, per
// spec.md §4.7.
type SessionConfig struct {
	CookieName string `json:"cookie_name"`
	MaxAgeSecs int    `json:"max_age_seconds"`
	Backend    string `json:"backend"` // "file", "memory", "client"

	FileDir    string `json:"file_dir"`
	FileGzip   bool   `json:"file_gzip"`
	FileCipher bool   `json:"file_cipher"`

	MemoryMaxCount int `json:"memory_max_count"`
	MemoryMaxBytes int `json:"memory_max_bytes"`

	ClientDomain string `json:"client_domain"`
	ClientPath   string `json:"client_path"`
	ClientSecure bool   `json:"client_secure"`

	// CipherPassphrase seeds both the file backend's optional encryption
	// and the client-side backend's AES key via DeriveCipherKey; HMACKey
	// authenticates client-side cookies independently.
	CipherPassphrase string `json:"cipher_passphrase"`
	CipherSalt       string `json:"cipher_salt"`
	HMACKey          string `json:"hmac_key"`
}

// CGIConfig configures the filesystem CGI supplier, per spec.md §4.5.
// Left with both fields empty, the supplier is never registered.
type CGIConfig struct {
	ScriptAliasDir string            `json:"script_alias_dir"`
	Interpreters   map[string]string `json:"interpreters"`
}

// KlogConfig configures the three built-in klog sinks plus the additive
// zap process logger, per spec.md §4.9 and SPEC_FULL.md §4.9.
type KlogConfig struct {
	MemoryCapacity int    `json:"memory_capacity"`
	MemoryMinLevel string `json:"memory_min_level"`

	FileBasename  string `json:"file_basename"`
	FileCount     int    `json:"file_count"`
	FileLineLimit int    `json:"file_line_limit"`
	FileMinLevel  string `json:"file_min_level"`

	SyslogTag      string `json:"syslog_tag"`
	SyslogMinLevel string `json:"syslog_min_level"`

	ProcessDebug bool `json:"process_debug"`
}

// Config holds all resolved configuration values for one klone process.
type Config struct {
	PIDFile            string             `json:"pid_file"`
	TempDir            string             `json:"temp_dir"`
	IdleTimeoutSeconds int                `json:"idle_timeout_seconds"`
	PostTimeoutSeconds int                `json:"post_timeout_seconds"`
	Backends           []BackendConfig    `json:"backends"`
	VHosts             []httpengine.VHost `json:"vhosts"`
	Session            SessionConfig      `json:"session"`
	Klog               KlogConfig         `json:"klog"`
	CGI                CGIConfig          `json:"cgi"`
}

// FlagOverrides holds values explicitly set via command-line flags on
// cmd/klone's invocation. A nil pointer means the flag wasn't set, so
// lower-priority values are kept — the same convention the teacher's
// FlagOverrides uses.
type FlagOverrides struct {
	PIDFile    *string
	ConfigFile *string
	Address    *string // overrides Backends[0].Address when set
	Debug      *bool
}

// Defaults returns klone's base configuration, before any file, env, or
// flag overrides are applied.
func Defaults() Config {
	return Config{
		TempDir:            os.TempDir(),
		IdleTimeoutSeconds: 10,
		PostTimeoutSeconds: 300,
		Backends: []BackendConfig{
			{ID: "default", Network: "tcp", Address: ":8080", Protocol: "http", Model: "iterative"},
		},
		VHosts: []httpengine.VHost{
			{Host: "", DirRoot: "/", Index: nil},
		},
		Session: SessionConfig{
			CookieName:     "klone_sid",
			MaxAgeSecs:     24 * 3600,
			Backend:        "memory",
			MemoryMaxCount: 10000,
			MemoryMaxBytes: 16 << 20,
		},
		Klog: KlogConfig{
			MemoryCapacity: 1000,
			MemoryMinLevel: "info",
			FileCount:      4,
			FileLineLimit:  10000,
			FileMinLevel:   "info",
		},
	}
}

// Load builds the final configuration by applying klone's priority
// cascade: defaults < global (~/.klone/config.json) < instance config
// file (instanceConfigPath, or .klone.json in cwd if empty) < environment
// variables < flags.
func Load(instanceConfigPath string, flags *FlagOverrides) (Config, error) {
	cfg := Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		if err := loadJSONFile(&cfg, filepath.Join(home, ".klone", "config.json")); err != nil {
			return cfg, fmt.Errorf("config: global config: %w", err)
		}
	}

	if flags != nil && flags.ConfigFile != nil {
		instanceConfigPath = *flags.ConfigFile
	}
	if instanceConfigPath == "" {
		instanceConfigPath = ".klone.json"
	}
	if err := loadJSONFile(&cfg, instanceConfigPath); err != nil {
		return cfg, fmt.Errorf("config: instance config %s: %w", instanceConfigPath, err)
	}

	loadEnvVars(&cfg)

	if flags != nil {
		applyFlags(&cfg, flags)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

// loadJSONFile overlays path's JSON contents onto cfg wholesale. A missing
// file is not an error — klone runs on defaults alone just as readily as
// the teacher's gasoline-cmd does.
func loadJSONFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var overlay Config
	overlay = *cfg // start from current values so an unset field in the file doesn't zero it
	if err := json.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	*cfg = overlay
	return nil
}

// loadEnvVars applies KLONE_-prefixed environment variable overrides,
// mirroring the teacher's GASOLINE_-prefixed set but scoped to the values
// most useful to override without a config file: the default backend's
// bind address (KLONE_ADDRESS), the PID file path (KLONE_PID_FILE), the
// idle timeout in seconds (KLONE_IDLE_TIMEOUT) and the session cipher
// passphrase (KLONE_SESSION_CIPHER_PASSPHRASE).
func loadEnvVars(cfg *Config) {
	if v := os.Getenv("KLONE_ADDRESS"); v != "" && len(cfg.Backends) > 0 {
		cfg.Backends[0].Address = v
	}
	if v := os.Getenv("KLONE_PID_FILE"); v != "" {
		cfg.PIDFile = v
	}
	if v := os.Getenv("KLONE_IDLE_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IdleTimeoutSeconds = n
		}
	}
	if v := os.Getenv("KLONE_SESSION_CIPHER_PASSPHRASE"); v != "" {
		cfg.Session.CipherPassphrase = v
	}
}

// applyFlags applies cmd/klone's command-line flag overrides, the
// highest-priority layer.
func applyFlags(cfg *Config, flags *FlagOverrides) {
	if flags.PIDFile != nil {
		cfg.PIDFile = *flags.PIDFile
	}
	if flags.Address != nil && len(cfg.Backends) > 0 {
		cfg.Backends[0].Address = *flags.Address
	}
	if flags.Debug != nil {
		cfg.Klog.ProcessDebug = *flags.Debug
	}
}

// Validate checks that configuration values are usable before cmd/klone
// builds any backend, vhost engine, or session store from them.
func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}
	seen := map[string]bool{}
	for _, b := range c.Backends {
		if b.ID == "" {
			return fmt.Errorf("backend missing id")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate backend id %q", b.ID)
		}
		seen[b.ID] = true
		if b.Address == "" {
			return fmt.Errorf("backend %q: address must not be empty", b.ID)
		}
		if b.Protocol != "http" && b.Protocol != "https" {
			return fmt.Errorf("backend %q: protocol must be http or https, got %q", b.ID, b.Protocol)
		}
		if b.Protocol == "https" && (b.TLSCert == "" || b.TLSKey == "") {
			return fmt.Errorf("backend %q: https requires tls_cert and tls_key", b.ID)
		}
	}
	switch c.Session.Backend {
	case "file", "memory", "client":
	default:
		return fmt.Errorf("session.backend must be file, memory, or client, got %q", c.Session.Backend)
	}
	if c.Session.Backend == "client" && c.Session.HMACKey == "" {
		return fmt.Errorf("session.backend=client requires hmac_key")
	}
	return nil
}

// BackendLimits converts b's flat JSON fields into a workerpool.Limits.
func (b BackendConfig) BackendLimits() workerpool.Limits {
	return workerpool.Limits{MaxChild: b.MaxChild, StartChild: b.StartChild, MaxRqPerChild: b.MaxRq}
}

// BackendPrivilege converts b's flat JSON fields into a
// workerpool.Privilege.
func (b BackendConfig) BackendPrivilege() workerpool.Privilege {
	return workerpool.Privilege{
		Chroot:      b.Chroot,
		BlindChroot: b.BlindChroot,
		SetUID:      b.SetUID,
		SetGID:      b.SetGID,
		AllowRoot:   b.AllowRoot,
	}
}

// SessionMaxAge returns the configured session lifetime as a
// time.Duration.
func (s SessionConfig) SessionMaxAge() time.Duration {
	return time.Duration(s.MaxAgeSecs) * time.Second
}

// NetworkOrDefault returns b's network, defaulting to "tcp" when unset.
func (b BackendConfig) NetworkOrDefault() string {
	if b.Network == "" {
		return "tcp"
	}
	return b.Network
}
