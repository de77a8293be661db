package cmd

import (
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/arma3-tools/pbocache/pkg/config"
	"github.com/arma3-tools/pbocache/pkg/logger"
	"github.com/arma3-tools/pbocache/pkg/manager"
	"github.com/arma3-tools/pbocache/pkg/processor"
	"github.com/arma3-tools/pbocache/pkg/runtime"
	"github.com/arma3-tools/pbocache/pkg/scanner"
	"github.com/arma3-tools/pbocache/pkg/store"
)

var (
	// Global flags
	FlagLogLevel     = 0
	FlagConfigFile   = "config.yaml"
	FlagConfigFolder = config.GetDefaultConfigDirectory("pbocache", "config.yaml")
	FlagLogFile      = "activity.log"

	FlagDryRun bool

	initialized bool
)

const storeFileName = "index.json"

// initCore sets up logging and loads the configuration. Safe to call
// once per run from any command.
func initCore() {
	if initialized {
		return
	}
	initialized = true

	logFilePath := ""
	if FlagLogFile != "" {
		logFilePath = filepath.Join(FlagConfigFolder, FlagLogFile)
	}

	if err := logger.Init(FlagLogLevel, logFilePath); err != nil {
		logrus.WithError(err).Fatal("Failed initializing logger")
	}

	log := logger.GetLogger("app")
	log.Debugf("Initialized pbocache %s (%s@%s)", runtime.Version, runtime.GitCommit, runtime.Timestamp)

	if err := config.Init(filepath.Join(FlagConfigFolder, FlagConfigFile)); err != nil {
		log.WithError(err).Fatal("Failed loading configuration")
	}
}

// openStore loads the persisted index from the cache directory.
func openStore(log *logrus.Entry) *store.Store {
	st := store.New(filepath.Join(config.Config.CacheDir, storeFileName))
	if err := st.Load(); err != nil {
		log.WithError(err).Fatal("Failed loading cache index")
	}
	return st
}

// newManager builds a manager from the loaded configuration.
func newManager(log *logrus.Entry, st *store.Store) *manager.Manager {
	mode, ok := processor.ParseBinaryConfigMode(config.Config.BinaryConfig)
	if !ok {
		log.Fatalf("Invalid binary_config value: %q", config.Config.BinaryConfig)
	}

	mgr, err := manager.New(manager.Options{
		CacheDir:     config.Config.CacheDir,
		Workers:      config.Config.Workers,
		Timeout:      config.Config.Timeout,
		BinaryConfig: mode,
		Skip:         config.Config.Skip,
		DryRun:       FlagDryRun,
	}, st)
	if err != nil {
		log.WithError(err).Fatal("Failed initializing manager")
	}
	return mgr
}

// kindConfig returns the roots and default extensions for a kind.
func kindConfig(kind scanner.Kind) config.KindConfiguration {
	if kind == scanner.KindMission {
		return config.Config.Missions
	}
	return config.Config.GameData
}
