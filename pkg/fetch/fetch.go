// Package fetch gathers raw content files into the corpus content database.
// The content database is a staging ground for input files, which are then
// preprocessed and assembled into corpuses.
package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"

	"clgen/pkg/database"
	"clgen/pkg/session"
)

var DebugLog func(string, ...interface{})

// Result is one fetched content file, or an error from the source.
type Result struct {
	Source   string
	Path     string
	Contents string
	Error    error
}

// Source gathers content files for a target (a directory, file, or URL
// manifest, depending on the source).
type Source interface {
	Run(ctx context.Context, target string, s *session.Session) <-chan Result

	Name() string
}

// Summary aggregates one fetch run.
type Summary struct {
	Fetched int
	Added   int
	Errors  []error
}

// Collect drains sources for each target, stores the fetched files for the
// corpus and returns a summary. Individual file errors are aggregated, not
// fatal.
func Collect(ctx context.Context, db *database.DB, corpusID string, src Source, targets []string, sess *session.Session) (*Summary, error) {
	summary := &Summary{}
	var files []database.ContentFile

	for _, target := range targets {
		for result := range src.Run(ctx, target, sess) {
			if result.Error != nil {
				summary.Errors = append(summary.Errors, result.Error)
				continue
			}
			summary.Fetched++
			files = append(files, database.ContentFile{
				CorpusID: corpusID,
				Path:     result.Path,
				Sha:      ContentSha(result.Contents),
				Contents: result.Contents,
			})
		}
	}

	added, err := db.AddContentFiles(corpusID, files)
	if err != nil {
		return summary, err
	}
	summary.Added = added

	if DebugLog != nil {
		DebugLog("fetched %d files, %d new, %d errors", summary.Fetched, summary.Added, len(summary.Errors))
	}
	return summary, nil
}

// ContentSha is the stable identity of a content file's text.
func ContentSha(contents string) string {
	sum := sha1.Sum([]byte(contents))
	return hex.EncodeToString(sum[:])
}
