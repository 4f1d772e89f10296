// Package config loads the settings file. Settings come from a TOML file,
// in which ${VAR} references are expanded from the environment, and a few
// environment variables override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the whole settings file.
type Config struct {
	SentryDSN string  `toml:"sentry_dsn"`
	Storage   Storage `toml:"storage"`
	Create    Create  `toml:"create"`
	Catalog   Catalog `toml:"catalog"`
}

// Storage says where archives are uploaded to and listed from. It is passed
// to the store constructors.
type Storage struct {
	// Location is a store location, such as "/data/archives",
	// "s3://bucket/prefix" or "minio://host:9000/bucket/prefix". The
	// fields below fill in what the location leaves out.
	Location  string `toml:"location"`
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Timeout   string `toml:"timeout"` // e.g. "30s"; empty means none
}

// Create holds the defaults for the create command.
type Create struct {
	Out          string `toml:"out"`
	ConfigOffset int    `toml:"config_offset"`
	Ext          string `toml:"ext"`
	Workers      int    `toml:"workers"`
	DeriveUUID   bool   `toml:"derive_uuid"`
}

// Catalog holds the defaults for the catalog command.
type Catalog struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	URIBase     string `toml:"uri_base"`
}

// Environment variables that override the file.
const (
	EnvEndpoint  = "S3_ENDPOINT_URL"
	EnvAccessKey = "AWS_ACCESS_KEY_ID"
	EnvSecretKey = "AWS_SECRET_ACCESS_KEY"
	EnvBucket    = "CONFBAG_BUCKET"
	EnvPrefix    = "CONFBAG_PREFIX"
	EnvSentryDSN = "SENTRY_DSN"
)

// Default returns the settings used when there is no file.
func Default() *Config {
	return &Config{
		Storage: Storage{Region: "us-east-1"},
		Create:  Create{Ext: "zip", Workers: 1},
		Catalog: Catalog{
			Name:        "hydrogen_v1",
			Description: "hydrogen configurations",
		},
	}
}

// Load reads the settings file at path over the defaults and then applies
// the environment overrides. An empty path skips the file. Keys in the file
// that match no setting are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		md, err := toml.Decode(os.ExpandEnv(string(raw)), cfg)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			var keys []string
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("config: %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, name string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Storage.Endpoint, EnvEndpoint)
	set(&c.Storage.AccessKey, EnvAccessKey)
	set(&c.Storage.SecretKey, EnvSecretKey)
	set(&c.Storage.Bucket, EnvBucket)
	set(&c.Storage.Prefix, EnvPrefix)
	set(&c.SentryDSN, EnvSentryDSN)
}

func (c *Config) validate() error {
	var errs []error
	if c.Create.Workers < 1 {
		errs = append(errs, fmt.Errorf("create.workers must be at least 1, got %d", c.Create.Workers))
	}
	if c.Create.Ext == "" {
		errs = append(errs, errors.New("create.ext must not be empty"))
	}
	if _, err := c.Storage.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TimeoutDuration parses Timeout. It returns 0 when Timeout is empty.
func (s Storage) TimeoutDuration() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("storage.timeout: %w", err)
	}
	return d, nil
}
