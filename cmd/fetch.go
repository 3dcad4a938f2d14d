package cmd

import (
	"context"
	"os"
	"time"

	"clgen/pkg/fetch"
	"clgen/pkg/session"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch content files into the corpus database",
	Long:  `Fetch content files from a source and store them in the corpus database, keyed by corpus id`,
}

var fetchFsCmd = &cobra.Command{
	Use:   "fs <corpus-id> <directory>...",
	Short: "Fetch content files from local directories",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runFetch(&fetch.FilesystemSource{}, args[0], args[1:])
	},
}

var fetchHTTPCmd = &cobra.Command{
	Use:   "http <corpus-id> <manifest>...",
	Short: "Fetch content files from URLs listed in manifest files",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runFetch(&fetch.HTTPSource{}, args[0], args[1:])
	},
}

func init() {
	fetchCmd.AddCommand(fetchFsCmd)
	fetchCmd.AddCommand(fetchHTTPCmd)
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(src fetch.Source, corpusID string, targets []string) {
	Verbose = verbose
	if verbose {
		setDebugLogFunctions()
	}

	db := openStorage()
	defer db.Close()
	if !db.IsEnabled() {
		color.Red("Error: fetch requires an enabled database (-c with database.enabled: true)")
		os.Exit(1)
	}

	sess, err := session.New(30 * time.Second)
	if err != nil {
		color.Red("Failed to create session: %v", err)
		os.Exit(1)
	}

	summary, err := fetch.Collect(context.Background(), db, corpusID, src, targets, sess)
	if err != nil {
		color.Red("Fetch failed: %v", err)
		os.Exit(1)
	}

	if !silent {
		color.Green("Fetched %d files via %s, %d new for corpus %s",
			summary.Fetched, src.Name(), summary.Added, corpusID)
		for _, e := range summary.Errors {
			color.Yellow("  %v", e)
		}
	}
}
