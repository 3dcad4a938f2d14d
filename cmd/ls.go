package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored models and samples",
	Long:  `List trained models and stored samples from the database`,
}

var lsModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models with stored training stats",
	Run:   runLsModels,
}

var lsSamplesCmd = &cobra.Command{
	Use:   "samples <model-id>",
	Short: "List stored samples for a model",
	Args:  cobra.ExactArgs(1),
	Run:   runLsSamples,
}

var lsFilesStatus string

var lsFilesCmd = &cobra.Command{
	Use:   "files <corpus-id>",
	Short: "List preprocessed content files for a corpus",
	Args:  cobra.ExactArgs(1),
	Run:   runLsFiles,
}

func init() {
	lsFilesCmd.Flags().StringVar(&lsFilesStatus, "status", "", "filter by preprocessing status (ok or dropped)")
	lsCmd.AddCommand(lsModelsCmd)
	lsCmd.AddCommand(lsSamplesCmd)
	lsCmd.AddCommand(lsFilesCmd)
	rootCmd.AddCommand(lsCmd)
}

func requireDB() {
	if configFile == "" {
		color.Red("Error: ls requires a database config (-c with database.enabled: true)")
		os.Exit(1)
	}
}

func runLsModels(cmd *cobra.Command, args []string) {
	requireDB()
	db := openStorage()
	defer db.Close()
	if !db.IsEnabled() {
		color.Red("Error: Database is not enabled. Please enable it in the instance config")
		os.Exit(1)
	}

	models, err := db.QueryModels()
	if err != nil {
		color.Red("Failed to query database: %v", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, color.CyanString("MODEL_ID"))
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, id := range models {
		fmt.Fprintf(w, "%s\n", id)
	}
	w.Flush()

	color.Green("\nTotal models: %d", len(models))
}

func runLsSamples(cmd *cobra.Command, args []string) {
	requireDB()
	db := openStorage()
	defer db.Close()
	if !db.IsEnabled() {
		color.Red("Error: Database is not enabled. Please enable it in the instance config")
		os.Exit(1)
	}

	samples, err := db.QuerySamples(args[0])
	if err != nil {
		color.Red("Failed to query database: %v", err)
		os.Exit(1)
	}

	if len(samples) == 0 {
		color.Yellow("[INF] Model %s has no stored samples.", args[0])
		os.Exit(0)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, color.CyanString("SAMPLER_ID\tTERMINATED_BY\tTIME_MS\tTEXT"))
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, s := range samples {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			s.SamplerID[:8],
			s.TerminatedBy,
			s.SampleTimeMs,
			preview(s.Text, 40),
		)
	}
	w.Flush()

	color.Green("\nTotal samples: %d", len(samples))
}

func runLsFiles(cmd *cobra.Command, args []string) {
	requireDB()
	db := openStorage()
	defer db.Close()
	if !db.IsEnabled() {
		color.Red("Error: Database is not enabled. Please enable it in the instance config")
		os.Exit(1)
	}

	files, err := db.PreprocessedFiles(args[0], lsFilesStatus)
	if err != nil {
		color.Red("Failed to query database: %v", err)
		os.Exit(1)
	}

	if len(files) == 0 {
		color.Yellow("[INF] Corpus %s has no preprocessed files.", args[0])
		os.Exit(0)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, color.CyanString("PATH\tSTATUS\tTEXT"))
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Path, f.Status, preview(f.Contents, 40))
	}
	w.Flush()

	color.Green("\nTotal files: %d", len(files))
}

func preview(text string, max int) string {
	text = strings.ReplaceAll(text, "\n", "\\n")
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}
