package config

import (
	"os"
	"path/filepath"
	goruntime "runtime"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
)

/* Structs */

// KindConfiguration holds the scan roots and the default extension
// filter for one archive kind.
type KindConfiguration struct {
	Roots      []string
	Extensions []string
}

type Configuration struct {
	CacheDir     string `koanf:"cache_dir"`
	Workers      int
	Timeout      time.Duration
	BinaryConfig string `koanf:"binary_config"`

	GameData KindConfiguration `koanf:"game_data"`
	Missions KindConfiguration

	Skip []string

	Notifications NotificationsConfig
}

/* Vars */

var Config Configuration

/* Public */

// Init loads the configuration from the given YAML file on top of the
// built-in defaults. A missing file is not an error; the defaults
// apply.
func Init(configFilePath string) error {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"cache_dir":     defaultCacheDirectory(),
		"workers":       goruntime.NumCPU(),
		"timeout":       "5m",
		"binary_config": "text",

		"game_data.extensions": []string{"hpp", "cpp", "sqf"},
		"missions.extensions":  []string{"hpp", "cpp", "sqf", "sqm"},
	}, "."), nil); err != nil {
		return errors.Wrap(err, "load default configuration")
	}

	if _, err := os.Stat(configFilePath); err == nil {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return errors.Wrapf(err, "load configuration: %q", configFilePath)
		}
	}

	Config = Configuration{}
	if err := k.Unmarshal("", &Config); err != nil {
		return errors.Wrap(err, "unmarshal configuration")
	}

	return nil
}

// GetDefaultConfigDirectory returns the folder the config file is
// looked up in: next to the binary when one already exists there (a
// portable install), otherwise the user's config directory.
func GetDefaultConfigDirectory(appName string, configFile string) string {
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		if _, err := os.Stat(filepath.Join(execDir, configFile)); err == nil {
			return execDir
		}
	}

	if userDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(userDir, appName)
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+appName)
}

/* Private */

func defaultCacheDirectory() string {
	if userCache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(userCache, "pbocache")
	}
	return filepath.Join(os.TempDir(), "pbocache")
}
