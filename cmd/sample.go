package cmd

import (
	"context"
	"fmt"
	"os"

	"clgen/pkg/config"
	"clgen/pkg/corpus"
	"clgen/pkg/model"
	"clgen/pkg/pipeline"
	"clgen/pkg/sampler"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	sampleWorkDir    string
	sampleNumBatches int
)

var sampleCmd = &cobra.Command{
	Use:   "sample <model.yaml> <sampler.yaml>",
	Short: "Sample programs from a trained model",
	Long:  `Sample new programs from a trained model, training it first if no cached weights exist`,
	Args:  cobra.ExactArgs(2),
	Run:   runSample,
}

func init() {
	sampleCmd.Flags().StringVarP(&sampleWorkDir, "workdir", "w", "", "cache directory for model weights (default: platform cache dir)")
	sampleCmd.Flags().IntVarP(&sampleNumBatches, "num-batches", "n", 1, "number of sample batches to generate")
	rootCmd.AddCommand(sampleCmd)
}

func runSample(cmd *cobra.Command, args []string) {
	Verbose = verbose
	if verbose {
		setDebugLogFunctions()
	}

	modelCfg, err := config.LoadModel(args[0])
	if err != nil {
		color.Red("Invalid model file: %v", err)
		os.Exit(1)
	}
	samplerCfg, err := config.LoadSampler(args[1])
	if err != nil {
		color.Red("Invalid sampler file: %v", err)
		os.Exit(1)
	}

	db := openStorage()
	defer db.Close()

	ctx := context.Background()
	corp, err := corpus.Build(ctx, modelCfg.Corpus, db)
	if err != nil {
		color.Red("Corpus build failed: %v", err)
		os.Exit(1)
	}

	mdl := model.New(modelCfg, corp, workDir(sampleWorkDir), db)
	if err := mdl.EnsureTrained(ctx); err != nil {
		color.Red("Training failed: %v", err)
		os.Exit(1)
	}

	smp, err := sampler.New(samplerCfg, corp.Atomizer())
	if err != nil {
		color.Red("Sampler setup failed: %v", err)
		os.Exit(1)
	}

	earlyTerminated := 0
	total := 0
	for batch := 0; batch < sampleNumBatches; batch++ {
		result, err := smp.RunBatch(ctx, pipeline.NewPredictor(mdl))
		if err != nil {
			color.Red("Sampling failed: %v", err)
			os.Exit(1)
		}
		earlyTerminated += result.EarlyTerminated
		total += len(result.Samples)

		for _, s := range result.Samples {
			if !silent {
				fmt.Println(color.HiBlackString("=== sample (%s, %dms) ===", s.TerminatedBy, s.SampleTimeMs))
			}
			fmt.Println(s.Text)
		}
	}

	if !silent {
		color.Green("\n%d samples from model %s, sampler %s", total, mdl.ID()[:8], smp.ID()[:8])
		if earlyTerminated > 0 {
			color.Yellow("%d samples terminated early", earlyTerminated)
		}
	}
}
