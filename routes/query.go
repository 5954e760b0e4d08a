// Package routes wires the HTTP API: querying the index and managing
// ingested sources.
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"web-research-assistant/internal/index"
	"web-research-assistant/internal/telemetry"
	"web-research-assistant/services"
	"web-research-assistant/utils"
)

type queryRequest struct {
	Question string   `json:"question" binding:"required"`
	TopK     int      `json:"top_k"`
	MinScore float64  `json:"min_score"`
	Domains  []string `json:"domains"`
}

// SetupQueryRoutes registers the question-answering endpoint.
func SetupQueryRoutes(router *gin.Engine, answers *services.AnswerService, metrics *telemetry.Metrics) {
	router.POST("/query", func(c *gin.Context) {
		var req queryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		if req.TopK < 0 || req.MinScore < 0 || req.MinScore > 1 {
			utils.RespondWithBadRequest(c, "top_k must be >= 0 and min_score within [0,1]", nil)
			return
		}

		start := time.Now()
		resp, err := answers.Answer(c.Request.Context(), req.Question, services.AnswerOptions{
			TopK:     req.TopK,
			MinScore: req.MinScore,
			Filters:  index.Filters{Domains: req.Domains},
		})
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		metrics.RecordQuery(len(resp.Sources) > 0, time.Since(start).Seconds())

		c.JSON(http.StatusOK, resp)
	})
}
