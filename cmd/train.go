package cmd

import (
	"context"
	"os"

	"clgen/pkg/config"
	"clgen/pkg/corpus"
	"clgen/pkg/database"
	"clgen/pkg/model"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var trainWorkDir string

var trainCmd = &cobra.Command{
	Use:   "train <model.yaml>",
	Short: "Train a model without sampling",
	Long:  `Build the corpus described by a model file and train the model, caching the learned weights for later sampling`,
	Args:  cobra.ExactArgs(1),
	Run:   runTrain,
}

func init() {
	trainCmd.Flags().StringVarP(&trainWorkDir, "workdir", "w", "", "cache directory for model weights (default: platform cache dir)")
	rootCmd.AddCommand(trainCmd)
}

// openStorage returns the database handle for a subcommand. Without -c the
// handle is disabled and every write silently becomes a no-op.
func openStorage() *database.DB {
	if configFile == "" {
		db, _ := database.New(&config.Database{})
		return db
	}
	dbCfg, err := config.LoadDatabase(configFile)
	if err != nil {
		color.Red("Failed to read database config: %v", err)
		os.Exit(1)
	}
	db, err := database.New(dbCfg)
	if err != nil {
		color.Yellow("Database initialization failed: %v", err)
	}
	return db
}

func workDir(flag string) string {
	if flag != "" {
		return config.ExpandPath(flag)
	}
	return config.GetCacheDir()
}

func runTrain(cmd *cobra.Command, args []string) {
	Verbose = verbose
	if verbose {
		setDebugLogFunctions()
	}

	cfg, err := config.LoadModel(args[0])
	if err != nil {
		color.Red("Invalid model file: %v", err)
		os.Exit(1)
	}

	db := openStorage()
	defer db.Close()

	ctx := context.Background()
	corp, err := corpus.Build(ctx, cfg.Corpus, db)
	if err != nil {
		color.Red("Corpus build failed: %v", err)
		os.Exit(1)
	}
	for _, d := range corp.DroppedFiles() {
		color.Yellow("Dropped %s: %v", d.Path, d.Err)
	}

	mdl := model.New(cfg, corp, workDir(trainWorkDir), db)
	if err := mdl.EnsureTrained(ctx); err != nil {
		color.Red("Training failed: %v", err)
		os.Exit(1)
	}

	if !silent {
		color.Green("Model %s trained: %d files, vocabulary of %d atoms",
			mdl.ID()[:8], corp.NumFiles(), corp.VocabSize())
		color.Green("Weights cached in %s", mdl.CacheDir())
	}
}
