package cmd

import (
	"context"
	"os"
	"runtime"

	"clgen/pkg/config"
	"clgen/pkg/fetch"
	"clgen/pkg/preprocess"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess <corpus.yaml>",
	Short: "Run the preprocessing pipeline and report dropped files",
	Long:  `Run a corpus file's preprocessor pipeline over its content files and report which files survive and which are dropped`,
	Args:  cobra.ExactArgs(1),
	Run:   runPreprocess,
}

func init() {
	rootCmd.AddCommand(preprocessCmd)
}

func runPreprocess(cmd *cobra.Command, args []string) {
	Verbose = verbose
	if verbose {
		setDebugLogFunctions()
	}

	cfg, err := config.LoadCorpus(args[0])
	if err != nil {
		color.Red("Invalid corpus file: %v", err)
		os.Exit(1)
	}

	steps, err := preprocess.Resolve(cfg.Preprocessors)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var files []preprocess.File
	if cfg.Path != "" {
		src := &fetch.FilesystemSource{}
		for result := range src.Run(ctx, config.ExpandPath(cfg.Path), nil) {
			if result.Error != nil {
				color.Yellow("Skipping %s: %v", result.Path, result.Error)
				continue
			}
			files = append(files, preprocess.File{Path: result.Path, Text: result.Contents})
		}
	} else {
		db := openStorage()
		defer db.Close()
		if !db.IsEnabled() {
			color.Red("Error: corpus id %q requires an enabled database", cfg.ID)
			os.Exit(1)
		}
		stored, err := db.ContentFiles(cfg.ID)
		if err != nil {
			color.Red("Failed to read content files: %v", err)
			os.Exit(1)
		}
		for _, f := range stored {
			files = append(files, preprocess.File{Path: f.Path, Text: f.Contents})
		}
	}

	result := preprocess.Run(ctx, files, steps, runtime.NumCPU())

	for _, d := range result.Dropped {
		color.Yellow("Dropped %s: %v", d.Path, d.Err)
	}
	if !silent {
		color.Green("Preprocessed %d files: %d kept, %d dropped",
			len(files), len(result.Kept), len(result.Dropped))
	}
	if len(result.Kept) == 0 && len(files) > 0 {
		color.Red("Error: all files were dropped")
		os.Exit(1)
	}
}
