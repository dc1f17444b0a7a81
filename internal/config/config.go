package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for saveswap.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Database   DatabaseConfig   `toml:"database"`
	Executor   ExecutorConfig   `toml:"executor"`
	App        AppConfig        `toml:"app"`
	Storage    StorageConfig    `toml:"storage"`
	Encryption EncryptionConfig `toml:"encryption"`
	Remote     RemoteConfig     `toml:"remote"`
}

// DatabaseConfig represents configuration for the account database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ExecutorConfig controls how privileged commands are launched.
type ExecutorConfig struct {
	Mode     string `toml:"mode"`               // "su" (default), "sudo" or "sh"
	Launcher string `toml:"launcher,omitempty"` // overrides Mode, e.g. "su --mount-master -c"
	Timeout  string `toml:"timeout,omitempty"`  // Go duration; "0" disables the bound
}

// TimeoutOr parses Timeout, returning def when it is unset.
func (c ExecutorConfig) TimeoutOr(def time.Duration) (time.Duration, error) {
	return parseDuration("executor.timeout", c.Timeout, def)
}

// AppConfig identifies the app whose private data is swapped.
type AppConfig struct {
	Package string `toml:"package"`
	DataDir string `toml:"data_dir"` // live data directory, e.g. /data/data/<package>
}

// StorageConfig locates backup snapshots and archives.
type StorageConfig struct {
	Root       string `toml:"root"`
	Prefix     string `toml:"prefix,omitempty"`
	ArchiveDir string `toml:"archive_dir"`
}

// EncryptionConfig holds paths to the age key pair used to encrypt archives.
type EncryptionConfig struct {
	Enabled        bool   `toml:"enabled"`
	Type           string `toml:"type,omitempty"` // "age" (default) or "plain"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// RemoteConfig represents configuration for the remote mirror.
// This uses a tagged union pattern - the Type field determines which sub-table is relevant.
type RemoteConfig struct {
	Type       string                 `toml:"type"` // "", "ssh", "s3", "filesystem" or "memory"
	AutoUpload bool                   `toml:"auto_upload"`
	SSH        SSHConfig              `toml:"ssh,omitempty"`
	S3         S3Config               `toml:"s3,omitempty"`
	Filesystem FilesystemRemoteConfig `toml:"filesystem,omitempty"`
}

// SSHConfig holds connection settings for an SFTP remote. The remote stays
// unconfigured until Enabled is set.
type SSHConfig struct {
	Enabled        bool   `toml:"enabled"`
	Host           string `toml:"host"`
	Port           int    `toml:"port,omitempty"`
	User           string `toml:"user"`
	Password       string `toml:"password,omitempty"`
	KeyPath        string `toml:"key_path,omitempty"`
	AuthMethod     string `toml:"auth_method,omitempty"` // "key" or "password"; inferred from KeyPath when empty
	KnownHostsPath string `toml:"known_hosts_path,omitempty"`
	RemoteDir      string `toml:"remote_dir"`
	Timeout        string `toml:"timeout,omitempty"`
}

// TimeoutOr parses Timeout, returning def when it is unset.
func (c SSHConfig) TimeoutOr(def time.Duration) (time.Duration, error) {
	return parseDuration("remote.ssh.timeout", c.Timeout, def)
}

// S3Config holds settings for an S3-compatible remote.
type S3Config struct {
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix,omitempty"`
	Region          string `toml:"region,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `toml:"use_path_style,omitempty"`
}

// FilesystemRemoteConfig mirrors archives into a local directory, typically
// a mounted share.
type FilesystemRemoteConfig struct {
	Root string `toml:"root"`
}

func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", field, s)
	}
	return d, nil
}

// NewConfig creates a new Config rooted at baseDir with default paths.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Executor: ExecutorConfig{
			Mode:    "su",
			Timeout: "5m",
		},
		Storage: StorageConfig{
			Root:       filepath.Join(baseDir, "backups"),
			ArchiveDir: filepath.Join(baseDir, "archives"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "saveswap.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "saveswap.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path. The file may hold
// remote credentials, so it is created owner-only.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
