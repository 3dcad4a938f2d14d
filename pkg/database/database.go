package database

import (
	"database/sql"
	"fmt"
	"time"

	"clgen/pkg/config"

	_ "github.com/lib/pq"
)

var DebugLog func(string, ...interface{})

type DB struct {
	conn    *sql.DB
	enabled bool
}

type ContentFile struct {
	CorpusID string
	Path     string
	Sha      string
	Contents string
	Added    time.Time
}

type PreprocessedFile struct {
	CorpusID string
	Path     string
	Status   string
	Contents string
}

type SampleRecord struct {
	ModelID               string
	SamplerID             string
	Text                  string
	SampleTimeMs          int64
	SampleStartEpochMsUTC int64
	TerminatedBy          string
}

type EpochStatRecord struct {
	ModelID      string
	Epoch        int
	BatchNum     int
	TimeMs       int64
	TrainingCost float64
}

const (
	PreprocessStatusOK      = "OK"
	PreprocessStatusDropped = "DROPPED"
)

const DBName = "clgen"

func New(cfg *config.Database) (*DB, error) {
	db := &DB{
		enabled: cfg.Enabled,
	}

	if !cfg.Enabled {
		return db, nil
	}

	postgresConnStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=postgres sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password)

	postgresConn, err := sql.Open("postgres", postgresConnStr)
	if err != nil {
		return db, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer postgresConn.Close()

	if err := postgresConn.Ping(); err != nil {
		return db, fmt.Errorf("failed to ping postgres: %w", err)
	}

	var exists bool
	err = postgresConn.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", DBName).Scan(&exists)
	if err != nil {
		return db, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		_, err = postgresConn.Exec(fmt.Sprintf("CREATE DATABASE %s", DBName))
		if err != nil {
			return db, fmt.Errorf("failed to create database: %w", err)
		}
		if DebugLog != nil {
			DebugLog("database %s created", DBName)
		}
	}

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, DBName)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return db, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return db, fmt.Errorf("failed to ping database: %w", err)
	}

	db.conn = conn

	if err := db.initSchema(); err != nil {
		return db, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func (db *DB) initSchema() error {
	if !db.enabled || db.conn == nil {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS contentfiles (
		id SERIAL PRIMARY KEY,
		corpus_id VARCHAR(64) NOT NULL,
		path TEXT NOT NULL,
		sha VARCHAR(64) NOT NULL,
		contents TEXT NOT NULL,
		added TIMESTAMP NOT NULL DEFAULT NOW(),
		UNIQUE(corpus_id, sha)
	);

	CREATE TABLE IF NOT EXISTS preprocessed (
		id SERIAL PRIMARY KEY,
		corpus_id VARCHAR(64) NOT NULL,
		path TEXT NOT NULL,
		status VARCHAR(20) NOT NULL,
		contents TEXT NOT NULL,
		UNIQUE(corpus_id, path)
	);

	CREATE TABLE IF NOT EXISTS samples (
		id SERIAL PRIMARY KEY,
		model_id VARCHAR(64) NOT NULL,
		sampler_id VARCHAR(64) NOT NULL,
		text TEXT NOT NULL,
		sample_time_ms BIGINT NOT NULL,
		sample_start_epoch_ms_utc BIGINT NOT NULL,
		terminated_by VARCHAR(32) NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS training_stats (
		id SERIAL PRIMARY KEY,
		model_id VARCHAR(64) NOT NULL,
		epoch INT NOT NULL,
		batch_num INT NOT NULL,
		time_ms BIGINT NOT NULL,
		training_cost DOUBLE PRECISION NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contentfiles_corpus ON contentfiles(corpus_id);
	CREATE INDEX IF NOT EXISTS idx_preprocessed_corpus ON preprocessed(corpus_id);
	CREATE INDEX IF NOT EXISTS idx_samples_model ON samples(model_id);
	CREATE INDEX IF NOT EXISTS idx_training_stats_model ON training_stats(model_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *DB) IsEnabled() bool {
	return db.enabled && db.conn != nil
}

// AddContentFiles stores fetched content files, skipping any whose contents
// are already present for this corpus.
func (db *DB) AddContentFiles(corpusID string, files []ContentFile) (int, error) {
	if !db.IsEnabled() {
		return 0, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	added := 0
	for _, file := range files {
		res, err := tx.Exec(`
			INSERT INTO contentfiles (corpus_id, path, sha, contents)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (corpus_id, sha) DO NOTHING
		`, corpusID, file.Path, file.Sha, file.Contents)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

func (db *DB) ContentFiles(corpusID string) ([]ContentFile, error) {
	if !db.IsEnabled() {
		return nil, fmt.Errorf("database is not enabled")
	}

	rows, err := db.conn.Query(`
		SELECT corpus_id, path, sha, contents, added
		FROM contentfiles
		WHERE corpus_id = $1
		ORDER BY path
	`, corpusID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []ContentFile
	for rows.Next() {
		var f ContentFile
		if err := rows.Scan(&f.CorpusID, &f.Path, &f.Sha, &f.Contents, &f.Added); err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

// RecordPreprocessed stores the outcome of a preprocessing run, replacing any
// previous outcome for the same file.
func (db *DB) RecordPreprocessed(files []PreprocessedFile) error {
	if !db.IsEnabled() {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, file := range files {
		_, err := tx.Exec(`
			INSERT INTO preprocessed (corpus_id, path, status, contents)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (corpus_id, path)
			DO UPDATE SET status = EXCLUDED.status, contents = EXCLUDED.contents
		`, file.CorpusID, file.Path, file.Status, file.Contents)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (db *DB) PreprocessedFiles(corpusID string, status string) ([]PreprocessedFile, error) {
	if !db.IsEnabled() {
		return nil, fmt.Errorf("database is not enabled")
	}

	query := `
		SELECT corpus_id, path, status, contents
		FROM preprocessed
		WHERE corpus_id = $1
	`
	args := []interface{}{corpusID}

	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}

	query += " ORDER BY path"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []PreprocessedFile
	for rows.Next() {
		var f PreprocessedFile
		if err := rows.Scan(&f.CorpusID, &f.Path, &f.Status, &f.Contents); err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

func (db *DB) RecordSamples(samples []SampleRecord) error {
	if !db.IsEnabled() {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range samples {
		if DebugLog != nil {
			DebugLog("recording %d byte sample for model %s", len(s.Text), s.ModelID)
		}
		_, err := tx.Exec(`
			INSERT INTO samples (model_id, sampler_id, text, sample_time_ms, sample_start_epoch_ms_utc, terminated_by)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, s.ModelID, s.SamplerID, s.Text, s.SampleTimeMs, s.SampleStartEpochMsUTC, s.TerminatedBy)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (db *DB) QuerySamples(modelID string) ([]SampleRecord, error) {
	if !db.IsEnabled() {
		return nil, fmt.Errorf("database is not enabled")
	}

	rows, err := db.conn.Query(`
		SELECT model_id, sampler_id, text, sample_time_ms, sample_start_epoch_ms_utc, terminated_by
		FROM samples
		WHERE model_id = $1
		ORDER BY sample_start_epoch_ms_utc DESC
	`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []SampleRecord
	for rows.Next() {
		var s SampleRecord
		if err := rows.Scan(&s.ModelID, &s.SamplerID, &s.Text, &s.SampleTimeMs, &s.SampleStartEpochMsUTC, &s.TerminatedBy); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}

	return samples, rows.Err()
}

func (db *DB) RecordEpochStats(stats []EpochStatRecord) error {
	if !db.IsEnabled() {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range stats {
		_, err := tx.Exec(`
			INSERT INTO training_stats (model_id, epoch, batch_num, time_ms, training_cost)
			VALUES ($1, $2, $3, $4, $5)
		`, s.ModelID, s.Epoch, s.BatchNum, s.TimeMs, s.TrainingCost)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (db *DB) QueryModels() ([]string, error) {
	if !db.IsEnabled() {
		return nil, fmt.Errorf("database is not enabled")
	}

	rows, err := db.conn.Query(`SELECT DISTINCT model_id FROM training_stats ORDER BY model_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		models = append(models, id)
	}

	return models, rows.Err()
}
