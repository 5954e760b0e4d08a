package models

// RetrievalResult is one ranked hit from the query path. Results are
// transient: produced per query and consumed once by the context assembler.
type RetrievalResult struct {
	Record EmbeddingRecord `json:"record"`
	Score  float64         `json:"score"`
}

// Citation points an included context entry back at its source.
type Citation struct {
	DocumentID string `json:"document_id"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
}

// ContextEntry is one chunk admitted into the prompt context together with
// its citation.
type ContextEntry struct {
	Text     string   `json:"text"`
	Score    float64  `json:"score"`
	Citation Citation `json:"citation"`
}

// PromptContext is the bounded, ordered context handed to the answer
// generator. Size counts the text characters of all entries.
type PromptContext struct {
	Entries []ContextEntry `json:"entries"`
	Size    int            `json:"size"`
}

// Source is one cited source in an answer, shaped for the query API.
type Source struct {
	URL     string  `json:"url"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// AnswerResponse is the query API payload: a grounded answer plus the
// sources it cites.
type AnswerResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
