package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

type ConfigFormat uint8

const (
	ConfigFormatJSON ConfigFormat = iota
	ConfigFormatYAML
)

// ConfigFormatFromPath picks the format of a
// configuration file from its extension, any
// file not ending in .yaml or .yml is JSON.
func ConfigFormatFromPath(path string) ConfigFormat {
	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		return ConfigFormatYAML
	}

	return ConfigFormatJSON
}

func (format ConfigFormat) decode(src io.Reader, dst any) error {
	switch format {
	case ConfigFormatJSON:
		return json.NewDecoder(src).Decode(dst)

	case ConfigFormatYAML:
		return yaml.NewDecoder(src).Decode(dst)

	default:
		return errors.New("unsupported config format")
	}
}

var ErrUnsupportedVersion = errors.New("unsupported configuration version")

type configuration interface {
	GetTargets() []Target
}

type configVersion struct {
	ConfigVersion int `json:"config_version" yaml:"config_version"`
}

func (ver *configVersion) getTargetType() (configuration, error) {
	switch ver.ConfigVersion {
	case 0, 1:
		return new(ConfigurationV1), nil

	default:
		return nil, fmt.Errorf("version %d: %w", ver.ConfigVersion, ErrUnsupportedVersion)
	}
}

func LoadConfigurationFromFile(srcFile string, format ConfigFormat) (*ConfigurationV1, error) {
	src, err := os.OpenFile(srcFile, os.O_RDONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open configuration file: %w", err)
	}
	defer src.Close()

	return LoadConfiguration(src, format)
}

// LoadConfiguration decodes a configuration,
// dispatching on its config_version.
func LoadConfiguration(src io.ReadSeeker, format ConfigFormat) (*ConfigurationV1, error) {
	var configVer configVersion
	if err := format.decode(src, &configVer); err != nil {
		return nil, fmt.Errorf("decode config version: %w", err)
	} else if _, err = src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to start of config: %w", err)
	}

	config, err := configVer.getTargetType()
	if err != nil {
		return nil, err
	} else if err = format.decode(src, config); err != nil {
		return nil, fmt.Errorf("decode configuration file: %w", err)
	}

	switch t := config.(type) {
	case *ConfigurationV1:
		if err = t.validate(); err != nil {
			return nil, err
		}

		return t, nil

	default:
		return nil, ErrUnsupportedVersion
	}
}
