package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File mirrors the environment variables in YAML form. Environment variables win.
type File struct {
	AppName            string   `yaml:"app_name"`
	Env                string   `yaml:"env"`
	LogLevel           string   `yaml:"log_level"`
	APIURL             string   `yaml:"api_url"`
	HTTPTimeout        Duration `yaml:"http_timeout"`
	LoginRoute         string   `yaml:"login_route"`
	TokenCheckInterval Duration `yaml:"token_check_interval"`
	CoalesceRefresh    bool     `yaml:"coalesce_refresh"`
	Store              string   `yaml:"store"`
	StorePath          string   `yaml:"store_path"`
	StorePassphrase    string   `yaml:"store_passphrase"`
	RedisURL           string   `yaml:"redis_url"`
}

// Duration accepts Go duration strings in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return pkgerrors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

// Or returns the duration, or fallback when unset.
func (d Duration) Or(fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return time.Duration(d)
}

// LoadFile reads a YAML config file. An empty path or a missing file yields an empty File.
func LoadFile(path string) (*File, error) {
	file := &File{}
	if path == "" {
		return file, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return file, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[config.LoadFile] read")
	}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, pkgerrors.Wrap(err, "[config.LoadFile] yaml.Unmarshal")
	}
	return file, nil
}
