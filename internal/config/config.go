package config

import (
	"time"
)

type Config interface {
	EnvConfig
	APIConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	GetAPIURL() string
	GetHTTPTimeout() time.Duration
	GetLoginRoute() string
}

type SessionConfig interface {
	GetTokenCheckInterval() time.Duration
	GetCoalesceRefresh() bool
}

type StorageConfig interface {
	GetStore() string
	GetStorePath() string
	GetStorePassphrase() string
	GetRedisURL() string
}

type mainConfig struct {
	EnvVars
	API
	Session
	Storage
}

// New returns a configuration backed by environment variables and defaults only.
func New() Config {
	return newMainConfig(&File{})
}

// Load returns a configuration that also consults the YAML file at path.
// An empty path falls back to MILITEX_CONFIG; a missing file is not an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = GetEnv(configPathVar, "")
	}
	file, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return newMainConfig(file), nil
}

func newMainConfig(file *File) mainConfig {
	return mainConfig{
		EnvVars: EnvVars{file: file},
		API:     API{file: file},
		Session: Session{file: file},
		Storage: Storage{file: file},
	}
}
