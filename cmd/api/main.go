package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/config"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "cmc-api",
		Short:         "CMC clinic billing and care workflow API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.AddCommand(newServeCommand(), newMigrateCommand())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.Setup(cfg.Log.Level, cfg.Log.Pretty), nil
}
