package services

import (
	"sort"

	"web-research-assistant/models"
)

// ContextAssembler packs retrieval results into a bounded prompt context
// with one citation per included chunk. Identical inputs always produce an
// identical context: ordering is by score, then ingestion time, then record
// ID.
type ContextAssembler struct{}

func NewContextAssembler() *ContextAssembler {
	return &ContextAssembler{}
}

// Assemble greedily accepts results in descending score order until adding
// the next chunk would exceed maxContextSize characters. A chunk is never
// split across the boundary.
func (a *ContextAssembler) Assemble(results []models.RetrievalResult, maxContextSize int) models.PromptContext {
	ordered := make([]models.RetrievalResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		ti, tj := ordered[i].Record.IngestedAt, ordered[j].Record.IngestedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ordered[i].Record.RecordID < ordered[j].Record.RecordID
	})

	pc := models.PromptContext{}
	for _, res := range ordered {
		if pc.Size+len(res.Record.Text) > maxContextSize {
			break
		}
		pc.Entries = append(pc.Entries, models.ContextEntry{
			Text:  res.Record.Text,
			Score: res.Score,
			Citation: models.Citation{
				DocumentID: res.Record.DocumentID,
				URL:        res.Record.SourceURL,
				Title:      res.Record.Title,
			},
		})
		pc.Size += len(res.Record.Text)
	}
	return pc
}
