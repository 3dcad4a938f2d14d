package cmd

import (
	"context"
	"fmt"
	"os"

	"clgen/pkg/atomizer"
	"clgen/pkg/config"
	"clgen/pkg/corpus"
	"clgen/pkg/database"
	"clgen/pkg/elastic"
	"clgen/pkg/fetch"
	"clgen/pkg/model"
	"clgen/pkg/pipeline"
	"clgen/pkg/preprocess"
	"clgen/pkg/sampler"
	"clgen/pkg/session"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
	silent     bool
	trainOnly  bool
	numBatches int
)

var Verbose bool

var rootCmd = &cobra.Command{
	Use:   "clgen [instance.yaml]",
	Short: "deep learning program generator",
	Long:  `clgen builds a corpus of example programs, trains a recurrent model on it and samples new programs from the trained model`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runPipeline,
}

func Execute() {
	hasSilentFlag := false
	for i, arg := range os.Args {
		if arg == "-silent" {
			os.Args[i] = "--silent"
			hasSilentFlag = true
		}
		if arg == "--silent" {
			hasSilentFlag = true
		}
	}

	if !hasSilentFlag {
		printBanner()
	}

	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func DebugLog(format string, args ...interface{}) {
	if Verbose {
		fmt.Printf("[DBG] "+format+"\n", args...)
	}
}

func setDebugLogFunctions() {
	atomizer.DebugLog = DebugLog
	config.DebugLog = DebugLog
	corpus.DebugLog = DebugLog
	database.DebugLog = DebugLog
	elastic.DebugLog = DebugLog
	fetch.DebugLog = DebugLog
	model.DebugLog = DebugLog
	pipeline.DebugLog = DebugLog
	preprocess.DebugLog = DebugLog
	sampler.DebugLog = DebugLog
	session.DebugLog = DebugLog
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "instance config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVar(&silent, "silent", false, "silent mode - no banner or extra output")

	rootCmd.Flags().BoolVar(&trainOnly, "train-only", false, "train the model without sampling")
	rootCmd.Flags().IntVarP(&numBatches, "num-batches", "n", 1, "number of sample batches to generate")
}

func instancePath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if configFile != "" {
		return configFile
	}
	if def := config.DefaultInstancePath(); fileExists(def) {
		return def
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func runPipeline(cmd *cobra.Command, args []string) {
	path := instancePath(args)
	if path == "" {
		color.Red("Error: an instance config file is required (positional or -c)")
		cmd.Help()
		os.Exit(1)
	}

	Verbose = verbose
	if verbose {
		setDebugLogFunctions()
	}

	pipe, err := pipeline.New(path)
	if err != nil {
		color.Red("Failed to initialize: %v", err)
		os.Exit(1)
	}
	defer pipe.Close()
	if verbose {
		pipe.SetVerbose()
	}

	result, err := pipe.Run(context.Background(), pipeline.RunOptions{
		NumBatches: numBatches,
		TrainOnly:  trainOnly,
	})
	if err != nil {
		color.Red("Run failed: %v", err)
		os.Exit(1)
	}

	if !trainOnly {
		for _, s := range result.Samples {
			if !silent {
				fmt.Println(color.HiBlackString("=== sample (%s, %dms) ===", s.TerminatedBy, s.SampleTimeMs))
			}
			fmt.Println(s.Text)
		}
	}

	if !silent {
		color.Green("\nDone: model %s, %d samples in %v",
			result.ModelID[:8], len(result.Samples), result.Duration)
		if result.EarlyTerminated > 0 {
			color.Yellow("%d samples terminated early", result.EarlyTerminated)
		}
	}
}

func printBanner() {
	banner := color.CyanString(`
┌─┐┬  ┌─┐┌─┐┌┐┌
│  │  │ ┬├┤ │││
└─┘┴─┘└─┘└─┘┘└┘
`)
	info := color.HiBlackString("deep learning program generator")
	fmt.Println(banner)
	fmt.Println(info)
	fmt.Println()
}
