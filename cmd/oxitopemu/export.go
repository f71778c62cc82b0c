package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-oxitop/emulator"
	"github.com/arloliu/go-oxitop/logger"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the dataset as a bottle definition file",
	Long: `Write the served dataset to a file. The format follows the file extension:
.yaml/.yml, .cbor or .xml. Use it to snapshot the built-in fixture, or to
convert between formats together with --dataset.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func runExport(_ *cobra.Command, args []string) error {
	path := args[0]

	format, err := emulator.FormatOf(path)
	if err != nil {
		return err
	}

	ds, err := loadDataset()
	if err != nil {
		return err
	}

	data, err := ds.Definition().Marshal(format)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	logger.Info("oxitopemu: dataset exported", "path", path, "format", format, "bottles", ds.Len())

	return nil
}
