package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"web-research-assistant/internal/config"
	"web-research-assistant/internal/crawler"
	"web-research-assistant/internal/index"
	"web-research-assistant/internal/logger"
	"web-research-assistant/internal/queue"
	"web-research-assistant/services"
	"web-research-assistant/utils"
)

type addSourceRequest struct {
	URL      string `json:"url" binding:"required"`
	MaxPages int    `json:"max_pages"`
}

// SetupSourceRoutes registers source ingestion and index management
// endpoints. When queueClient is non-nil, crawls run asynchronously on the
// worker; otherwise they run inline.
func SetupSourceRoutes(router *gin.Engine, cfg *config.Config,
	ingestion *services.IngestionService, ix *index.Index, store *index.MongoStore,
	queueClient *asynq.Client) {

	router.POST("/sources", func(c *gin.Context) {
		var req addSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		maxPages := req.MaxPages
		if maxPages <= 0 || maxPages > cfg.CrawlMaxPages {
			maxPages = cfg.CrawlMaxPages
		}

		if queueClient != nil {
			task, jobID, err := queue.NewCrawlSourceTask(req.URL, maxPages)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to create crawl task", nil)
				return
			}
			if _, err := queueClient.Enqueue(task); err != nil {
				logger.Error("enqueueing crawl task failed", "url", req.URL, "error", err)
				utils.RespondWithInternalError(c, "Failed to enqueue crawl task", nil)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{
				"job_id": jobID,
				"url":    req.URL,
				"status": "queued",
			})
			return
		}

		result, err := crawler.Crawl(crawler.Config{
			URL:         req.URL,
			MaxPages:    maxPages,
			FollowLinks: true,
			Timeout:     cfg.CrawlTimeout,
		})
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		ingested, err := ingestion.IngestDocuments(c.Request.Context(), result.Documents)
		if err != nil && ingested == 0 {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"url":                req.URL,
			"pages_crawled":      result.PagesCrawled,
			"documents_ingested": ingested,
			"from_sitemap":       result.FromSitemap,
		})
	})

	router.GET("/sources", func(c *gin.Context) {
		docs, err := store.ListDocuments(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list sources", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sources": docs, "count": len(docs)})
	})

	router.DELETE("/sources/:document_id", func(c *gin.Context) {
		documentID := c.Param("document_id")

		removed, err := ingestion.RemoveDocument(c.Request.Context(), documentID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		if removed == 0 {
			utils.RespondWithNotFound(c, "No indexed records for document "+documentID)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document_id":     documentID,
			"records_removed": removed,
		})
	})

	router.GET("/index/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"records":       ix.Size(),
			"documents":     ix.DocumentCount(),
			"model_version": ix.ModelVersion(),
			"dimensions":    ix.Dimension(),
		})
	})
}
