package database

import (
	"testing"

	"clgen/pkg/config"
)

// Disabled databases must behave as silent no-ops for writes and explicit
// errors for reads, so the rest of the system never branches on storage.
func TestDisabledDatabase(t *testing.T) {
	db, err := New(&config.Database{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer db.Close()

	if db.IsEnabled() {
		t.Fatal("database should not be enabled")
	}

	added, err := db.AddContentFiles("corpus", []ContentFile{{Path: "a", Sha: "x", Contents: "y"}})
	if err != nil {
		t.Errorf("AddContentFiles on disabled db: %v", err)
	}
	if added != 0 {
		t.Errorf("added: got %d, want 0", added)
	}

	if err := db.RecordPreprocessed([]PreprocessedFile{{Path: "a", Status: PreprocessStatusOK}}); err != nil {
		t.Errorf("RecordPreprocessed on disabled db: %v", err)
	}
	if err := db.RecordSamples([]SampleRecord{{ModelID: "m", Text: "t"}}); err != nil {
		t.Errorf("RecordSamples on disabled db: %v", err)
	}
	if err := db.RecordEpochStats([]EpochStatRecord{{ModelID: "m", Epoch: 1}}); err != nil {
		t.Errorf("RecordEpochStats on disabled db: %v", err)
	}

	if _, err := db.ContentFiles("corpus"); err == nil {
		t.Error("ContentFiles on disabled db should error")
	}
	if _, err := db.PreprocessedFiles("corpus", PreprocessStatusOK); err == nil {
		t.Error("PreprocessedFiles on disabled db should error")
	}
	if _, err := db.QuerySamples("m"); err == nil {
		t.Error("QuerySamples on disabled db should error")
	}
	if _, err := db.QueryModels(); err == nil {
		t.Error("QueryModels on disabled db should error")
	}
}
