// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// FileName is the name of the configuration file looked up in the config directory.
	FileName = "config.yml"
	// EnvPrefix prefixes environment variables that override configuration keys, e.g.
	// AUTHD_SERVER_NETWORK_PORT overrides server.network.port.
	EnvPrefix = "AUTHD"

	MemoryBackend  = "memory"
	LevelDBBackend = "leveldb"
	RedisBackend   = "redis"
)

// Configurations holds the complete configuration of the service.
type Configurations struct {
	Server  ServerConf
	Auth    AuthConf
	Storage StorageConf
	Logging LoggingConf
}

// ServerConf holds the listening endpoint and what is served besides the API.
type ServerConf struct {
	Network NetworkConf
	// StaticDir, when set, is served at the root path.
	StaticDir string
	// MetricsEnabled exposes prometheus metrics at /metrics.
	MetricsEnabled bool
}

// NetworkConf holds the listen address and port.
type NetworkConf struct {
	Address string
	Port    uint32
}

// AuthConf holds the trust anchors of request authentication. At most one of RootKeyHex and
// RootKeyFile may be set; when neither is, the mainnet root key is used.
type AuthConf struct {
	// Issuer is the textual principal of the canister trusted to issue delegations.
	Issuer      string
	RootKeyHex  string
	RootKeyFile string
}

// StorageConf selects and configures the todo store backend.
type StorageConf struct {
	Backend string
	LevelDB LevelDBConf
	Redis   RedisConf
}

// LevelDBConf configures the on-disk store.
type LevelDBConf struct {
	Dir string
	// CacheSizeMB is the size of the read cache kept in front of the database.
	CacheSizeMB int
}

// RedisConf configures the redis store.
type RedisConf struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggingConf holds the logger configuration.
type LoggingConf struct {
	Level         string
	Encoding      string
	OutputPath    []string
	ErrOutputPath []string
	Rotation      RotationConf
}

// RotationConf enables size based rotation of a log file.
type RotationConf struct {
	Enabled    bool
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Read reads the configuration file config.yml in the given directory. Keys missing from the
// file take their default values; unknown keys are rejected.
func Read(configDir string) (*Configurations, error) {
	if configDir == "" {
		return nil, errors.New("path to the configuration directory is empty")
	}
	configFile := path.Join(configDir, FileName)

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", configFile)
	}

	conf := &Configurations{}
	if err := v.UnmarshalExact(conf); err != nil {
		return nil, errors.Wrapf(err, "unable to unmarshal config file: '%s' into struct", configFile)
	}

	if err := conf.validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid configuration in %s", configFile)
	}
	return conf, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.network.address", "127.0.0.1")
	v.SetDefault("server.network.port", 8080)
	v.SetDefault("server.metricsenabled", true)
	v.SetDefault("storage.backend", MemoryBackend)
	v.SetDefault("storage.leveldb.dir", "./data/todos")
	v.SetDefault("storage.leveldb.cachesizemb", 32)
	v.SetDefault("storage.redis.address", "127.0.0.1:6379")
	v.SetDefault("storage.redis.keyprefix", "authd")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.outputpath", []string{"stdout"})
	v.SetDefault("logging.erroutputpath", []string{"stderr"})
	v.SetDefault("logging.rotation.maxsizemb", 100)
	v.SetDefault("logging.rotation.maxbackups", 3)
	v.SetDefault("logging.rotation.maxagedays", 28)
}

func (c *Configurations) validate() error {
	switch c.Storage.Backend {
	case MemoryBackend, RedisBackend:
	case LevelDBBackend:
		if c.Storage.LevelDB.Dir == "" {
			return errors.New("storage.leveldb.dir must be set for the leveldb backend")
		}
	default:
		return errors.Errorf("unsupported storage backend [%s], expected one of %s, %s, %s",
			c.Storage.Backend, MemoryBackend, LevelDBBackend, RedisBackend)
	}

	if c.Server.Network.Port > 65535 {
		return errors.Errorf("server.network.port %d is out of range", c.Server.Network.Port)
	}
	if c.Auth.RootKeyHex != "" && c.Auth.RootKeyFile != "" {
		return errors.New("only one of auth.rootkeyhex and auth.rootkeyfile can be set")
	}
	if c.Logging.Rotation.Enabled && c.Logging.Rotation.Filename == "" {
		return errors.New("logging.rotation.filename must be set when rotation is enabled")
	}
	return nil
}
