package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-oxitop/emulator"
	"github.com/arloliu/go-oxitop/logger"
)

var (
	datasetPath string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "oxitopemu",
	Short: "OxiTop OC110 data logger emulator",
	Long: `oxitopemu - an emulated OxiTop OC110 data logger.

Serves a set of bottles over the OC110 frame protocol. Without --dataset the
built-in three bottle fixture is served. Dataset files are YAML (.yaml, .yml),
CBOR snapshots (.cbor) or XML bottle definitions (.xml).`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLogger(logger.NewSlog(level, false))

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&datasetPath, "dataset", "d", "", "Bottle definition file (default: built-in fixture)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
}

// loadDataset returns the dataset named by --dataset.
func loadDataset() (*emulator.Dataset, error) {
	if datasetPath == "" {
		return emulator.DefaultDataset(), nil
	}

	def, err := emulator.LoadDefinition(datasetPath)
	if err != nil {
		return nil, err
	}

	ds, err := def.Dataset()
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", datasetPath, err)
	}

	return ds, nil
}
