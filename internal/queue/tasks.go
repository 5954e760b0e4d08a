// Package queue defines the asynq tasks for background source ingestion.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"web-research-assistant/internal/crawler"
	"web-research-assistant/internal/logger"
	"web-research-assistant/services"
)

const (
	// TaskCrawlSource crawls a source URL and ingests the fetched pages.
	TaskCrawlSource = "source:crawl"

	QueueIngest = "ingest"
)

type CrawlSourcePayload struct {
	JobID    string `json:"job_id"`
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages"`
}

// NewCrawlSourceTask enqueues a crawl-and-ingest job for a source URL and
// returns the task plus its job ID for status reporting.
func NewCrawlSourceTask(sourceURL string, maxPages int) (*asynq.Task, string, error) {
	jobID := uuid.NewString()
	payload, err := json.Marshal(CrawlSourcePayload{
		JobID:    jobID,
		URL:      sourceURL,
		MaxPages: maxPages,
	})
	if err != nil {
		return nil, "", err
	}

	task := asynq.NewTask(
		TaskCrawlSource,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
		asynq.Queue(QueueIngest),
	)
	return task, jobID, nil
}

// TaskProcessor handles queued tasks inside the worker binary.
type TaskProcessor struct {
	ingestion    *services.IngestionService
	crawlTimeout time.Duration
	followLinks  bool
}

func NewTaskProcessor(ingestion *services.IngestionService, crawlTimeout time.Duration) *TaskProcessor {
	return &TaskProcessor{
		ingestion:    ingestion,
		crawlTimeout: crawlTimeout,
		followLinks:  true,
	}
}

// HandleCrawlSource crawls the payload URL and ingests every fetched page.
// A malformed payload never retries; fetch and embedding failures do.
func (p *TaskProcessor) HandleCrawlSource(ctx context.Context, t *asynq.Task) error {
	var payload CrawlSourcePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal crawl payload: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info("crawl task started", "job_id", payload.JobID, "url", payload.URL)

	result, err := crawler.Crawl(crawler.Config{
		URL:         payload.URL,
		MaxPages:    payload.MaxPages,
		FollowLinks: p.followLinks,
		Timeout:     p.crawlTimeout,
	})
	if err != nil {
		return fmt.Errorf("crawling %s: %w", payload.URL, err)
	}

	ingested, err := p.ingestion.IngestDocuments(ctx, result.Documents)
	if err != nil && ingested == 0 {
		return fmt.Errorf("ingesting %s: %w", payload.URL, err)
	}

	logger.Info("crawl task finished", "job_id", payload.JobID, "url", payload.URL,
		"pages_crawled", result.PagesCrawled, "documents_ingested", ingested)
	return nil
}
