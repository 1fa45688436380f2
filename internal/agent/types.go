package agent

import (
	"context"
	"time"

	"ilm/backend/internal/fanar"
	"ilm/backend/internal/tavily"
)

type ToolKind string

const (
	KnowledgeRetrieval ToolKind = "RAG"
	WebSearch          ToolKind = "InternetSearch"
)

type Stage string

const (
	StageRewriting    Stage = "rewriting"
	StagePlanning     Stage = "planning"
	StageExecuting    Stage = "executing"
	StageSynthesizing Stage = "synthesizing"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

const (
	MethodologySynthesis = "Tool-augmented synthesis"
	MethodologyFallback  = "Error fallback"

	DefaultLanguage = "en"
)

// ChatBackend is the language model used by every stage.
type ChatBackend interface {
	Send(ctx context.Context, messages []fanar.Message, maxTokens int) (string, error)
	SendStaged(ctx context.Context, prompt string, maxTokens int) (string, error)
}

type KnowledgeBackend interface {
	Retrieve(ctx context.Context, query string) (fanar.Retrieval, error)
}

type SearchBackend interface {
	Available() bool
	Search(ctx context.Context, query string, maxResults int) (tavily.Response, error)
}

type Query struct {
	Text              string
	Language          string
	IncludeReferences bool
}

// NewQuery returns a query with the default language and references enabled.
func NewQuery(text string) Query {
	return Query{Text: text, Language: DefaultLanguage, IncludeReferences: true}
}

type RewrittenQuery struct {
	Original     string   `json:"original"`
	Rewritten    string   `json:"rewritten"`
	Improvements []string `json:"improvements"`
}

type ToolInvocation struct {
	Kind  ToolKind `json:"kind"`
	Query string   `json:"query"`
}

type SourceReference struct {
	Ordinal   int    `json:"ordinal"`
	Origin    string `json:"origin"`
	Excerpt   string `json:"excerpt"`
	Authentic bool   `json:"authentic"`
}

type KnowledgeResult struct {
	Content    string            `json:"content"`
	References []SourceReference `json:"references"`
	Origins    []string          `json:"origins"`
}

type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type SearchResult struct {
	Content string      `json:"content"`
	Hits    []SearchHit `json:"hits"`
	Query   string      `json:"query"`
}

// ToolExecutionRecord holds exactly one result, matching Kind.
type ToolExecutionRecord struct {
	Kind      ToolKind
	Query     string
	Knowledge *KnowledgeResult
	Search    *SearchResult
}

// References maps a tool kind to its origin list. Position i-1 holds the
// display value for citation id i.
type References map[ToolKind][]string

func NewReferences() References {
	return References{
		KnowledgeRetrieval: []string{},
		WebSearch:          []string{},
	}
}

type FinalAnswer struct {
	Answer      string
	Confidence  float64
	Methodology string
	References  References
}

type SystemResponse struct {
	Answer      FinalAnswer
	Knowledge   *KnowledgeResult
	Search      *SearchResult
	Rewritten   *RewrittenQuery
	Invocations []ToolInvocation
	Records     []ToolExecutionRecord
	Warnings    []string
	Stage       Stage
	Elapsed     time.Duration
}

// RunOptions carries the per-request mode switches.
type RunOptions struct {
	Staged     bool
	Parallel   bool
	OnProgress func(Progress)
}

type Progress struct {
	Stage   Stage
	Message string
	Elapsed time.Duration
}

func emitProgress(onProgress func(Progress), progress Progress) {
	if onProgress == nil {
		return
	}
	onProgress(progress)
}

func appendUniqueWarning(warnings []string, warning string) []string {
	for _, existing := range warnings {
		if existing == warning {
			return warnings
		}
	}
	return append(warnings, warning)
}
