package common

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed config.default.yaml
var defaultConfig []byte

const (
	configPathEnv = "CONFIG_PATH"
	configJSONEnv = "CONFIG_JSON"
)

// ConfigManager layers configuration sources into a typed config. Later sources
// override earlier ones: embedded defaults, then CONFIG_PATH, then CONFIG_JSON.
type ConfigManager[T any] struct {
	kf *koanf.Koanf
}

func NewConfigManager[T any]() (*ConfigManager[T], error) {
	cm := &ConfigManager[T]{kf: koanf.New(".")}

	if err := cm.kf.Load(rawbytes.Provider(defaultConfig), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load default config: %w", err)
	}

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cm.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if raw := os.Getenv(configJSONEnv); raw != "" {
		if err := cm.kf.Load(rawbytes.Provider([]byte(raw)), json.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", configJSONEnv, err)
		}
	}

	return cm, nil
}

// LoadFile merges a YAML or JSON file into the current configuration
func (cm *ConfigManager[T]) LoadFile(path string) error {
	var parser koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parser = json.Parser()
	}

	if err := cm.kf.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}
	return nil
}

// Set overrides a single dotted key, e.g. "classification.offline"
func (cm *ConfigManager[T]) Set(key string, value any) error {
	return cm.kf.Set(key, value)
}

func (cm *ConfigManager[T]) GetConfig() T {
	var config T
	// Unmarshal errors leave zero values which the consumers default
	_ = cm.kf.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "key"})
	return config
}
