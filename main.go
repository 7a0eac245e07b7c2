package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/avfoundry/proxa/internal"
	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/mitchellh/go-homedir"
)

var log = logger.Get("Main")

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	verbose := flag.Bool("verbose", false, "enable verbose logging output")
	flag.Parse()

	if *verbose {
		logger.SetMinLoggingLevel(int(logger.VERBOSE))
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	engine, err := internal.New(*config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise engine: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := engine.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Engine exited with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Engine shutdown complete\n")
}

func loadConfig(path string) (*internal.EngineConfig, error) {
	config := &internal.EngineConfig{}
	if _, err := os.Stat(path); err != nil {
		log.Emit(logger.WARNING, "Config file %s not found, loading from environment\n", path)
		if err := config.LoadFromEnv(); err != nil {
			return nil, err
		}

		return config, nil
	}

	if err := config.LoadFromFile(path); err != nil {
		return nil, err
	}

	return config, nil
}

func defaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return "config.yaml"
	}

	return filepath.Join(home, ".config", "proxa", "config.yaml")
}
