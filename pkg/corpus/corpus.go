// Package corpus assembles the encoded training corpus: content files are
// located, preprocessed, concatenated and atomized into token indices.
package corpus

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"

	"clgen/pkg/atomizer"
	"clgen/pkg/config"
	"clgen/pkg/database"
	"clgen/pkg/fetch"
	"clgen/pkg/preprocess"
)

var DebugLog func(string, ...interface{})

// Corpus is a fully built, immutable training corpus.
type Corpus struct {
	cfg      *config.Corpus
	atomizer atomizer.Atomizer
	text     string
	encoded  []int
	hash     string
	numFiles int
	dropped  []preprocess.Dropped
}

// Build locates the corpus content files, preprocesses them in parallel,
// joins the survivors with the configured separator and atomizes the result.
// Files failing a preprocessing step are dropped and reported in the build
// summary; an empty surviving set is fatal.
func Build(ctx context.Context, cfg *config.Corpus, db *database.DB) (*Corpus, error) {
	steps, err := preprocess.Resolve(cfg.Preprocessors)
	if err != nil {
		return nil, err
	}

	files, err := loadContentFiles(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no readable content files for corpus")
	}

	result := preprocess.Run(ctx, files, steps, runtime.NumCPU())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(result.Kept) == 0 {
		return nil, fmt.Errorf("all %d content files were dropped during preprocessing", len(files))
	}

	if db != nil && db.IsEnabled() {
		if err := recordPreprocessed(db, corpusStorageID(cfg), result); err != nil {
			return nil, fmt.Errorf("failed to record preprocessed files: %w", err)
		}
	}

	texts := make([]string, len(result.Kept))
	for i, file := range result.Kept {
		texts[i] = file.Text
	}
	text := strings.Join(texts, cfg.ContentfileSeparator)

	atom, err := atomizer.FromCorpus(cfg, text)
	if err != nil {
		return nil, err
	}

	encoded, err := atom.AtomizeString(text)
	if err != nil {
		return nil, fmt.Errorf("failed to encode corpus: %w", err)
	}

	if DebugLog != nil {
		DebugLog("built corpus: %d files kept, %d dropped, %d tokens, vocab %d",
			len(result.Kept), len(result.Dropped), len(encoded), len(atom.Vocab()))
	}

	return &Corpus{
		cfg:      cfg,
		atomizer: atom,
		text:     text,
		encoded:  encoded,
		hash:     contentHash(cfg, text),
		numFiles: len(result.Kept),
		dropped:  result.Dropped,
	}, nil
}

func loadContentFiles(ctx context.Context, cfg *config.Corpus, db *database.DB) ([]preprocess.File, error) {
	if cfg.Path != "" {
		var files []preprocess.File
		src := &fetch.FilesystemSource{}
		for result := range src.Run(ctx, config.ExpandPath(cfg.Path), nil) {
			if result.Error != nil {
				if DebugLog != nil {
					DebugLog("skipping unreadable file: %v", result.Error)
				}
				continue
			}
			files = append(files, preprocess.File{Path: result.Path, Text: result.Contents})
		}
		return files, nil
	}

	if db == nil || !db.IsEnabled() {
		return nil, fmt.Errorf("corpus id %s requires the content database, which is not enabled", cfg.ID)
	}
	stored, err := db.ContentFiles(cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus %s from database: %w", cfg.ID, err)
	}
	files := make([]preprocess.File, len(stored))
	for i, f := range stored {
		files[i] = preprocess.File{Path: f.Path, Text: f.Contents}
	}
	return files, nil
}

func recordPreprocessed(db *database.DB, corpusID string, result preprocess.Result) error {
	records := make([]database.PreprocessedFile, 0, len(result.Kept)+len(result.Dropped))
	for _, file := range result.Kept {
		records = append(records, database.PreprocessedFile{
			CorpusID: corpusID,
			Path:     file.Path,
			Status:   database.PreprocessStatusOK,
			Contents: file.Text,
		})
	}
	for _, d := range result.Dropped {
		records = append(records, database.PreprocessedFile{
			CorpusID: corpusID,
			Path:     d.Path,
			Status:   database.PreprocessStatusDropped,
			Contents: d.Err.Error(),
		})
	}
	return db.RecordPreprocessed(records)
}

// corpusStorageID keys database rows for this corpus configuration.
func corpusStorageID(cfg *config.Corpus) string {
	if cfg.ID != "" {
		return cfg.ID
	}
	sum := sha1.Sum([]byte("path:" + cfg.Path))
	return hex.EncodeToString(sum[:])
}

func contentHash(cfg *config.Corpus, text string) string {
	h := sha1.New()
	h.Write([]byte(text))
	h.Write([]byte(cfg.ContentfileSeparator))
	if cfg.GreedyMulticharAtomizer != nil {
		h.Write([]byte("greedy:" + strings.Join(cfg.GreedyMulticharAtomizer.Tokens, "\x00")))
	} else {
		h.Write([]byte("char"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Atomizer returns the atomizer derived from the corpus text.
func (c *Corpus) Atomizer() atomizer.Atomizer { return c.atomizer }

// Encoded returns the whole corpus as vocabulary indices.
func (c *Corpus) Encoded() []int { return c.encoded }

// Text returns the preprocessed, joined corpus text.
func (c *Corpus) Text() string { return c.text }

// Hash is the content identity of the built corpus.
func (c *Corpus) Hash() string { return c.hash }

func (c *Corpus) VocabSize() int { return len(c.atomizer.Vocab()) }

func (c *Corpus) NumFiles() int { return c.numFiles }

// DroppedFiles reports the files removed during preprocessing.
func (c *Corpus) DroppedFiles() []preprocess.Dropped { return c.dropped }

// SequenceLength is the training unroll length configured for this corpus.
func (c *Corpus) SequenceLength() int { return c.cfg.SequenceLength }
