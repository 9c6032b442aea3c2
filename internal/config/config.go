package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
)

// Config carries everything the caster needs at startup. File values are
// overridden by environment variables.
type Config struct {
	AppID    string `json:"app_id" mapstructure:"app_id"`
	APIURL   string `json:"api_url" mapstructure:"api_url"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	LogLevel string `json:"log_level" mapstructure:"log_level"`
}

var envOverrides = map[string]string{
	"CASTSYNC_APP_ID":    "app_id",
	"CASTSYNC_API_URL":   "api_url",
	"CASTSYNC_API_KEY":   "api_key",
	"CASTSYNC_LOG_LEVEL": "log_level",
}

func defaults() map[string]any {
	return map[string]any{
		"app_id":    "",
		"api_url":   "",
		"api_key":   "",
		"log_level": "info",
	}
}

// GetAppConfig loads the settings file, creating it with defaults on first
// run, and applies environment overrides.
func GetAppConfig() (*Config, error) {
	path, err := appPath()
	if err != nil {
		return nil, fmt.Errorf("GetAppConfig: failed to access config path due to error %w:", err)
	}

	values := defaults()

	cfgfile, err := os.Open(path)
	switch {
	case err == nil:
		defer cfgfile.Close()
		fileValues := map[string]any{}
		if err := json.NewDecoder(cfgfile).Decode(&fileValues); err != nil {
			return nil, fmt.Errorf("GetAppConfig: failed to decode config due to error %w:", err)
		}
		for k, v := range fileValues {
			values[k] = v
		}
	case os.IsNotExist(err):
		if err := writeDefaultConfig(path); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("GetAppConfig: failed to open config due to error %w:", err)
	}

	for env, key := range envOverrides {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			values[key] = v
		}
	}

	conf := &Config{}
	if err := mapstructure.Decode(values, conf); err != nil {
		return nil, fmt.Errorf("GetAppConfig: failed to decode merged config due to error %w:", err)
	}

	return conf, nil
}

func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("GetAppConfig: failed to create default path due to error %w:", err)
	}

	conf := &Config{LogLevel: "info"}
	b, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("GetAppConfig: failed to convert and store default config %w:", err)
	}

	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("GetAppConfig: failed to create default config due to error %w:", err)
	}
	return nil
}

func appPath() (string, error) {
	oscfg, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("appPath: failed to get config file due to error %w:", err)
	}

	return filepath.Join(oscfg, "castsync", "settings.json"), nil
}

// SaveAppConfig persists the config back to the settings file.
func (s *Config) SaveAppConfig() error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("SaveAppConfig: failed to marshal json due to error %w:", err)
	}

	path, err := appPath()
	if err != nil {
		return fmt.Errorf("SaveAppConfig: failed to access config path due to error %w:", err)
	}

	if err := os.WriteFile(path, b, 0655); err != nil {
		return fmt.Errorf("SaveAppConfig: failed save config due to error %w:", err)
	}
	return nil
}
