package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// EnvPrefix is prepended to every environment override, e.g. SNAPDUMP_POSTGRES_HOST.
const EnvPrefix = "SNAPDUMP"

// Config represents the top-level YAML configuration file.
type Config struct {
	Include  []string       `mapstructure:"include"  yaml:"include,omitempty"`
	Log      LogConfig      `mapstructure:"log"      yaml:"log"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Vault    VaultConfig    `mapstructure:"vault"    yaml:"vault"`
	Backup   BackupConfig   `mapstructure:"backup"   yaml:"backup"`
	Seed     SeedConfig     `mapstructure:"seed"     yaml:"seed"`
	State    StateConfig    `mapstructure:"state"    yaml:"state"`
	Export   ExportConfig   `mapstructure:"export"   yaml:"export"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"       yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// PostgresConfig describes the live database.
type PostgresConfig struct {
	Host     string        `mapstructure:"host"      yaml:"host"`
	Port     string        `mapstructure:"port"      yaml:"port"`
	Database string        `mapstructure:"database"  yaml:"database"`
	Username string        `mapstructure:"username"  yaml:"username,omitempty"`
	Password string        `mapstructure:"password"  yaml:"password,omitempty"`
	SSLMode  string        `mapstructure:"sslmode"   yaml:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"   yaml:"timeout"`
	RoleName string        `mapstructure:"role_name" yaml:"role_name,omitempty"` // Vault role path for dynamic credentials
}

// VaultConfig holds connection settings for HashiCorp Vault.
type VaultConfig struct {
	Address     string `mapstructure:"address"      yaml:"address"`
	RoleID      string `mapstructure:"role_id"      yaml:"role_id,omitempty"`
	ApproleName string `mapstructure:"approle_name" yaml:"approle_name,omitempty"`
}

// BackupConfig contains global dump options.
type BackupConfig struct {
	Compress      bool           `mapstructure:"compress"       yaml:"compress"`
	SchemaVersion string         `mapstructure:"schema_version" yaml:"schema_version"`
	Timeout       time.Duration  `mapstructure:"timeout"        yaml:"timeout"`
	Launcher      LauncherConfig `mapstructure:"launcher"       yaml:"launcher"`
}

// LauncherConfig configures the throwaway engine used to extract dumps.
type LauncherConfig struct {
	Endpoint   string        `mapstructure:"endpoint"   yaml:"endpoint,omitempty"`
	Repository string        `mapstructure:"repository" yaml:"repository"`
	Tag        string        `mapstructure:"tag"        yaml:"tag,omitempty"` // empty: derived from PG_VERSION
	MaxWait    time.Duration `mapstructure:"max_wait"   yaml:"max_wait"`
	WorkDir    string        `mapstructure:"work_dir"   yaml:"work_dir,omitempty"`
}

// SeedConfig points at the two scripts applied on first run.
type SeedConfig struct {
	SchemaFile string `mapstructure:"schema_file" yaml:"schema_file"`
	DataFile   string `mapstructure:"data_file"   yaml:"data_file"`
}

// StateConfig locates the client-side key/value store.
type StateConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ExportConfig selects where exported archives are placed.
type ExportConfig struct {
	Type  string            `mapstructure:"type"  yaml:"type"` // local or s3
	Local LocalExportConfig `mapstructure:"local" yaml:"local"`
	S3    S3ExportConfig    `mapstructure:"s3"    yaml:"s3"`
}

type LocalExportConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type S3ExportConfig struct {
	Bucket        string        `mapstructure:"bucket"         yaml:"bucket"`
	Region        string        `mapstructure:"region"         yaml:"region"`
	Prefix        string        `mapstructure:"prefix"         yaml:"prefix"`
	Endpoint      string        `mapstructure:"endpoint"       yaml:"endpoint,omitempty"` // S3-compatible services; path-style addressing
	AccessKey     string        `mapstructure:"access_key"     yaml:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"     yaml:"secret_key"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry" yaml:"presign_expiry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.database", "postgres")
	v.SetDefault("postgres.username", "postgres")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timeout", 5*time.Minute)
	v.SetDefault("backup.schema_version", "1")
	v.SetDefault("backup.timeout", 10*time.Minute)
	v.SetDefault("backup.launcher.repository", "postgres")
	v.SetDefault("backup.launcher.max_wait", 2*time.Minute)
	v.SetDefault("state.path", "./snapdump-state.db")
	v.SetDefault("export.type", "local")
	v.SetDefault("export.local.directory", ".")
	v.SetDefault("export.s3.presign_expiry", 15*time.Minute)
}

// Load reads the configuration from the given YAML file using Viper,
// merges any included files, and unmarshals into the Config struct.
// An empty path loads defaults and environment overrides only.
func (c *Config) Load(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		// Read base configuration
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
		}
	}

	// Merge include files (if any)
	for _, inc := range v.GetStringSlice("include") {
		data, err := os.ReadFile(inc)
		if err != nil {
			return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
		}
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
		}
	}

	// Unmarshal into the Config struct
	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	return c.Validate()
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	var problems []string
	if c.Postgres.Host == "" {
		problems = append(problems, "postgres.host is required")
	}
	if c.Postgres.Database == "" {
		problems = append(problems, "postgres.database is required")
	}
	if c.Backup.Timeout < 0 {
		problems = append(problems, "backup.timeout must not be negative")
	}
	if c.Postgres.RoleName != "" && c.Vault.Address == "" {
		problems = append(problems, "postgres.role_name requires vault.address")
	}
	switch c.Export.Type {
	case "local":
		if c.Export.Local.Directory == "" {
			problems = append(problems, "export.local.directory is required")
		}
	case "s3":
		if c.Export.S3.Bucket == "" || c.Export.S3.Region == "" {
			problems = append(problems, "export.s3.bucket and export.s3.region are required")
		}
	default:
		problems = append(problems, fmt.Sprintf("export.type %q is not one of local, s3", c.Export.Type))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidateConfig, strings.Join(problems, "; "))
	}
	return nil
}
