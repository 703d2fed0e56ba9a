package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Supported storage drivers.
const (
	SQLiteDriver = "sqlite"
	BoltDriver   = "bolt"
	RedisDriver  = "redis"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit               string        `yaml:"git_commit" envconfig:"BAPI_GIT_COMMIT"`
	GitTag                  string        `yaml:"git_tag" envconfig:"BAPI_GIT_TAG"`
	BuildTime               string        `yaml:"build_time" envconfig:"BAPI_BUILD_TIME"`
	IsProduction            bool          `yaml:"is_production" envconfig:"BAPI_IS_PRODUCTION"`
	LogLevel                zapcore.Level `yaml:"log_level" envconfig:"BAPI_LOG_LEVEL"`
	LogFile                 string        `yaml:"log_file" envconfig:"BAPI_LOG_FILE"`
	LogMaxSize              int           `yaml:"log_max_size" envconfig:"BAPI_LOG_MAX_SIZE"`
	LogMaxBackups           int           `yaml:"log_max_backups" envconfig:"BAPI_LOG_MAX_BACKUPS"`
	OpsEndpointsEnable      bool          `yaml:"ops_endpoints_enable" envconfig:"BAPI_OPS_ENDPOINTS_ENABLE"`
	ProfilerEndpointsEnable bool          `yaml:"profiler_endpoints_enable" envconfig:"BAPI_PROFILER_ENDPOINTS_ENABLE"`
	SwaggerEnable           bool          `yaml:"swagger_enable" envconfig:"BAPI_SWAGGER_ENABLE"`
	Server                  ServerConfig  `yaml:"server"`
	Storage                 StorageConfig `yaml:"storage"`
	SQLite                  SQLiteConfig  `yaml:"sqlite"`
	BoltDB                  BoltDBConfig  `yaml:"boltdb"`
	Redis                   RedisConfig   `yaml:"redis"`
	Replica                 ReplicaConfig `yaml:"replica"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"BAPI_SERVER_HOST"`
	Port            string        `yaml:"port" envconfig:"BAPI_SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"BAPI_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"BAPI_SERVER_WRITE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"BAPI_SERVER_REQUEST_TIMEOUT"` // Time to wait for a request to finish
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"BAPI_SERVER_SHUTDOWN_TIMEOUT"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"BAPI_STORAGE_DRIVER"`
}

type SQLiteConfig struct {
	FilePath    string        `yaml:"filepath" envconfig:"BAPI_SQLITE_FILE_PATH"`
	BusyTimeout time.Duration `yaml:"busy_timeout" envconfig:"BAPI_SQLITE_BUSY_TIMEOUT"`
}

type BoltDBConfig struct {
	FilePath   string        `yaml:"filepath" envconfig:"BAPI_BOLTDB_FILE_PATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"BAPI_BOLTDB_TIMEOUT"`
	BucketName string        `yaml:"bucket_name" envconfig:"BAPI_BOLTDB_BUCKET_NAME"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"BAPI_REDIS_HOST"`
	Port          string        `yaml:"port" envconfig:"BAPI_REDIS_PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"BAPI_REDIS_DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"BAPI_REDIS_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"BAPI_REDIS_WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"BAPI_REDIS_POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"BAPI_REDIS_POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"BAPI_REDIS_USERNAME"`
	Password      string        `yaml:"password" envconfig:"BAPI_REDIS_PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"BAPI_REDIS_DATABASE_INDEX"`
}

// ReplicaConfig defines the bolt archive fed by the redis change queues.
type ReplicaConfig struct {
	Enable     bool          `yaml:"enable" envconfig:"BAPI_REPLICA_ENABLE"`
	FilePath   string        `yaml:"filepath" envconfig:"BAPI_REPLICA_FILE_PATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"BAPI_REPLICA_TIMEOUT"`
	BucketName string        `yaml:"bucket_name" envconfig:"BAPI_REPLICA_BUCKET_NAME"`
}

// BoltDB returns the replica settings in the shape expected by the bolt storage.
func (rc ReplicaConfig) BoltDB() BoltDBConfig {
	return BoltDBConfig{FilePath: rc.FilePath, Timeout: rc.Timeout, BucketName: rc.BucketName}
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	yd := yaml.NewDecoder(file)
	err = yd.Decode(cfg)

	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and provides an instance of the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if len(config.Storage.Driver) == 0 {
		config.Storage.Driver = SQLiteDriver
	}

	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 100
	}

	switch config.Storage.Driver {
	case SQLiteDriver:
		if len(config.SQLite.FilePath) == 0 {
			return errors.New("make sure to set a valid sqlite file path in configuration file")
		}
	case BoltDriver:
		if len(config.BoltDB.FilePath) == 0 || len(config.BoltDB.BucketName) == 0 {
			return errors.New("make sure to set valid boltdb file path and bucket name in configuration file")
		}
	case RedisDriver:
		if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
			return errors.New("make sure to set valid redis address and port in configuration file")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", config.Storage.Driver)
	}

	if config.Replica.Enable {
		if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
			return errors.New("replica requires valid redis address and port in configuration file")
		}
		if len(config.Replica.FilePath) == 0 || len(config.Replica.BucketName) == 0 {
			return errors.New("replica requires valid boltdb file path and bucket name in configuration file")
		}
	}

	return nil
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data. The `config.env` file is optional.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	// Setup the yaml configuration from file.
	config, err := LoadConfigFile("./config.yml")
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	// Set the environment configuration.
	err = godotenv.Load("./config.env")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf("failed to set environment configurations: %s", err)
	}

	// Use environment variables with prefix `BAPI`.
	err = LoadConfigEnvs("BAPI", config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}
