package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	es8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"clgen/pkg/config"
	"clgen/pkg/database"
)

var DebugLog func(string, ...interface{})

type Client struct {
	es    *es8.Client
	index string
}

func New(cfg config.Elasticsearch) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("elasticsearch URL is required")
	}
	index := cfg.Index
	if strings.TrimSpace(index) == "" {
		index = "clgen_samples"
	}

	es, err := es8.NewClient(es8.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	// Lightweight ping
	if _, err := es.Info(); err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}

	return &Client{es: es, index: index}, nil
}

type sampleDoc struct {
	ModelID               string `json:"model_id"`
	SamplerID             string `json:"sampler_id"`
	Text                  string `json:"text"`
	TextLength            int    `json:"text_length"`
	SampleTimeMs          int64  `json:"sample_time_ms"`
	SampleStartEpochMsUTC int64  `json:"sample_start_epoch_ms_utc"`
	TerminatedBy          string `json:"terminated_by"`
}

// IndexSamples bulk-indexes a batch of completed samples. Individual document
// failures are counted and reported as a single error after the flush.
func (c *Client) IndexSamples(ctx context.Context, samples []database.SampleRecord) error {
	if len(samples) == 0 {
		return nil
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     c.es,
		Index:      c.index,
		NumWorkers: 4,
	})
	if err != nil {
		return fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	var failed int64
	for _, s := range samples {
		doc := sampleDoc{
			ModelID:               s.ModelID,
			SamplerID:             s.SamplerID,
			Text:                  s.Text,
			TextLength:            len(s.Text),
			SampleTimeMs:          s.SampleTimeMs,
			SampleStartEpochMsUTC: s.SampleStartEpochMsUTC,
			TerminatedBy:          s.TerminatedBy,
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal sample: %w", err)
		}

		item := esutil.BulkIndexerItem{
			Action: "index",
			Body:   bytes.NewReader(body),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, resp esutil.BulkIndexerResponseItem, err error) {
				atomic.AddInt64(&failed, 1)
				if DebugLog != nil {
					DebugLog("elasticsearch index failure: %v", err)
				}
			},
		}
		if err := bi.Add(ctx, item); err != nil {
			return fmt.Errorf("bulk add failed: %w", err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("bulk indexer close failed: %w", err)
	}
	if n := atomic.LoadInt64(&failed); n > 0 {
		return fmt.Errorf("%d of %d samples failed to index", n, len(samples))
	}
	if DebugLog != nil {
		DebugLog("indexed %d samples to %s", len(samples), c.index)
	}
	return nil
}
