package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// ErrInvalidConfig is wrapped by every load and validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// InstanceType says how the Neo4j service is run.
type InstanceType string

const (
	InstanceLocal  InstanceType = "local"
	InstanceDocker InstanceType = "docker"
	InstanceRemote InstanceType = "remote"
)

// Config holds the bloodcheck configuration.
type Config struct {
	Neo4j   Neo4jConfig   `json:"neo4j" yaml:"neo4j"`
	Service ServiceConfig `json:"service" yaml:"service"`
	Output  OutputConfig  `json:"output" yaml:"output"`

	// TemplateArchive is the empty database zip used to generate instances.
	TemplateArchive string `json:"template_archive" yaml:"template_archive"`

	Journal JournalConfig `json:"journal" yaml:"journal"`
	Publish PublishConfig `json:"publish" yaml:"publish"`
}

// Neo4jConfig locates the database and its installation.
type Neo4jConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`

	// ConfPath is the directory holding neo4j.conf
	ConfPath string `json:"conf_path" yaml:"conf_path"`

	// DataPath is the data directory; instances live in its databases/ subdirectory
	DataPath string `json:"data_path" yaml:"data_path"`

	InstanceType InstanceType `json:"instance_type" yaml:"instance_type"`
}

// ServiceConfig describes the local service.
type ServiceConfig struct {
	Name     string `json:"name" yaml:"name"`
	OwnerUID int    `json:"owner_uid" yaml:"owner_uid"`
	OwnerGID int    `json:"owner_gid" yaml:"owner_gid"`

	// RestartWait is how long to wait after a restart before reconnecting
	RestartWait time.Duration `json:"restart_wait" yaml:"restart_wait"`
}

// OutputConfig holds report output settings.
type OutputConfig struct {
	Directory string `json:"directory" yaml:"directory"`
}

// JournalConfig holds the run journal settings. An empty path disables it.
type JournalConfig struct {
	Path string `json:"path" yaml:"path"`
}

// PublishConfig holds report publishing settings.
type PublishConfig struct {
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config configures uploads of run artifacts. An empty bucket disables them.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	Prefix       string `json:"prefix" yaml:"prefix"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the configuration of a Debian-packaged local Neo4j.
func DefaultConfig() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URI:          "bolt://localhost:7687",
			Username:     "neo4j",
			ConfPath:     "/etc/neo4j",
			DataPath:     "/var/lib/neo4j/data",
			InstanceType: InstanceLocal,
		},
		Service: ServiceConfig{
			Name:        "neo4j",
			OwnerUID:    101,
			OwnerGID:    101,
			RestartWait: 5 * time.Second,
		},
		Output: OutputConfig{
			Directory: "_output",
		},
		TemplateArchive: "Clean.graphdb.zip",
	}
}

// Load builds the configuration from defaults, the file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file over DefaultConfig. A relative
// template_archive is resolved against the file's directory.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg := DefaultConfig()
	templateDefault := cfg.TemplateArchive
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	if cfg.TemplateArchive != templateDefault && cfg.TemplateArchive != "" && !filepath.IsAbs(cfg.TemplateArchive) {
		cfg.TemplateArchive = filepath.Join(filepath.Dir(path), cfg.TemplateArchive)
	}
	return cfg, nil
}

// LoadFromEnv applies BLOODCHECK_* environment variables to cfg.
// Malformed numeric values are ignored.
func LoadFromEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv("BLOODCHECK_" + key); v != "" {
			*dst = v
		}
	}

	// Neo4j
	str("NEO4J_URI", &cfg.Neo4j.URI)
	str("NEO4J_USERNAME", &cfg.Neo4j.Username)
	str("NEO4J_PASSWORD", &cfg.Neo4j.Password)
	str("NEO4J_CONF_PATH", &cfg.Neo4j.ConfPath)
	str("NEO4J_DATA_PATH", &cfg.Neo4j.DataPath)
	if v := os.Getenv("BLOODCHECK_NEO4J_INSTANCE_TYPE"); v != "" {
		cfg.Neo4j.InstanceType = InstanceType(v)
	}

	// Service
	str("SERVICE_NAME", &cfg.Service.Name)
	if v := os.Getenv("BLOODCHECK_SERVICE_OWNER_UID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Service.OwnerUID = n
		}
	}
	if v := os.Getenv("BLOODCHECK_SERVICE_OWNER_GID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Service.OwnerGID = n
		}
	}
	if v := os.Getenv("BLOODCHECK_SERVICE_RESTART_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Service.RestartWait = d
		}
	}

	str("OUTPUT_DIRECTORY", &cfg.Output.Directory)
	str("TEMPLATE_ARCHIVE", &cfg.TemplateArchive)
	str("JOURNAL_PATH", &cfg.Journal.Path)

	// S3
	str("S3_BUCKET", &cfg.Publish.S3.Bucket)
	str("S3_REGION", &cfg.Publish.S3.Region)
	str("S3_ENDPOINT", &cfg.Publish.S3.Endpoint)
	str("S3_PREFIX", &cfg.Publish.S3.Prefix)
	if v := os.Getenv("BLOODCHECK_S3_USE_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Publish.S3.UsePathStyle = b
		}
	}
}

// Validate checks cfg against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("%w: schema: %v", ErrInvalidConfig, err)
	}

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ConfFile returns the path of neo4j.conf.
func (c *Config) ConfFile() string {
	return filepath.Join(c.Neo4j.ConfPath, "neo4j.conf")
}

// DatabaseRoot returns the directory holding the database instances.
func (c *Config) DatabaseRoot() string {
	return filepath.Join(c.Neo4j.DataPath, "databases")
}

var localHost = regexp.MustCompile(`^(localhost|127(\.[0-9]+){0,2}\.[0-9]+)$`)

// IsLocal reports whether the URI points at this machine.
func (c *Config) IsLocal() bool {
	u, err := url.Parse(c.Neo4j.URI)
	if err != nil {
		return false
	}
	return localHost.MatchString(u.Hostname())
}

// ManagesService reports whether the service can be controlled from here.
func (c *Config) ManagesService() bool {
	return c.Neo4j.InstanceType == InstanceLocal && c.IsLocal()
}

// CheckLocalInstall verifies that local database management is possible:
// a local URI, an existing neo4j.conf and an existing database root.
func (c *Config) CheckLocalInstall() error {
	if !c.IsLocal() {
		return fmt.Errorf("%w: remote Neo4j URI %s, local databases cannot be managed", ErrInvalidConfig, c.Neo4j.URI)
	}
	if info, err := os.Stat(c.ConfFile()); err != nil || info.IsDir() {
		return fmt.Errorf("%w: Neo4j configuration file %s not found", ErrInvalidConfig, c.ConfFile())
	}
	if info, err := os.Stat(c.DatabaseRoot()); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: Neo4j database directory %s not found", ErrInvalidConfig, c.DatabaseRoot())
	}
	return nil
}
