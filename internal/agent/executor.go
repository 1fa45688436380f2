package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"ilm/backend/internal/fanar"
	"ilm/backend/internal/logging"
	"ilm/backend/internal/tavily"
)

const (
	defaultSearchMaxResults = 3
	defaultToolConcurrency  = 4

	warningSearchUnavailable = "Web search is not configured; internet search invocations were skipped."
	warningToolFailed        = "A tool invocation failed; continuing with the remaining results."
)

var errSearchUnavailable = errors.New("web search backend unavailable")

type ExecutorConfig struct {
	SearchMaxResults int
	Concurrency      int
}

type Executor struct {
	knowledge KnowledgeBackend
	search    SearchBackend
	cfg       ExecutorConfig
	logger    logging.Logger
}

// Execution is the outcome of one tool run. Err is set only when the request
// context ended before every invocation was attempted.
type Execution struct {
	Records       []ToolExecutionRecord
	LastKnowledge *KnowledgeResult
	LastSearch    *SearchResult
	Warnings      []string
	Err           error
}

func NewExecutor(knowledge KnowledgeBackend, search SearchBackend, cfg ExecutorConfig, logger logging.Logger) Executor {
	if cfg.SearchMaxResults < 1 {
		cfg.SearchMaxResults = defaultSearchMaxResults
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultToolConcurrency
	}
	return Executor{
		knowledge: knowledge,
		search:    search,
		cfg:       cfg,
		logger:    logging.OrDiscard(logger),
	}
}

type invocationOutcome struct {
	record  *ToolExecutionRecord
	skipped bool
	err     error
}

// Execute runs every invocation and keeps the successful ones in invocation
// order. In parallel mode results are slotted by index before compaction, so
// the record order matches a sequential run. A panic in any invocation is
// re-raised on the calling goroutine after the group finishes.
func (e Executor) Execute(ctx context.Context, invocations []ToolInvocation, opts RunOptions) Execution {
	outcomes := make([]invocationOutcome, len(invocations))
	attempted := len(invocations)

	if opts.Parallel && len(invocations) > 1 {
		var (
			g         errgroup.Group
			panicOnce sync.Once
			panicked  any
		)
		g.SetLimit(e.cfg.Concurrency)
		for i, invocation := range invocations {
			g.Go(func() error {
				defer func() {
					if recovered := recover(); recovered != nil {
						panicOnce.Do(func() { panicked = recovered })
					}
				}()
				outcomes[i] = e.run(ctx, invocation)
				return nil
			})
		}
		_ = g.Wait()
		// Re-raise on the caller's goroutine.
		if panicked != nil {
			panic(panicked)
		}
	} else {
		for i, invocation := range invocations {
			if ctx.Err() != nil {
				attempted = i
				break
			}
			outcomes[i] = e.run(ctx, invocation)
		}
	}

	exec := Execution{Records: make([]ToolExecutionRecord, 0, len(invocations))}
	for i, outcome := range outcomes[:attempted] {
		kind := string(invocations[i].Kind)
		switch {
		case outcome.skipped:
			toolCallsTotal.WithLabelValues(kind, "skipped").Inc()
			exec.Warnings = appendUniqueWarning(exec.Warnings, warningSearchUnavailable)
		case outcome.err != nil:
			toolCallsTotal.WithLabelValues(kind, "failed").Inc()
			exec.Warnings = appendUniqueWarning(exec.Warnings, warningToolFailed)
		case outcome.record != nil:
			toolCallsTotal.WithLabelValues(kind, "success").Inc()
			exec.Records = append(exec.Records, *outcome.record)
			if outcome.record.Knowledge != nil {
				exec.LastKnowledge = outcome.record.Knowledge
			}
			if outcome.record.Search != nil {
				exec.LastSearch = outcome.record.Search
			}
		}
	}

	if err := ctx.Err(); err != nil {
		exec.Err = fmt.Errorf("tool execution interrupted: %w", err)
	}
	return exec
}

func (e Executor) run(ctx context.Context, invocation ToolInvocation) invocationOutcome {
	entry := e.logger.WithFields(logging.Fields{
		"kind":  invocation.Kind,
		"query": invocation.Query,
	})

	switch invocation.Kind {
	case KnowledgeRetrieval:
		if e.knowledge == nil {
			entry.Warn("knowledge retrieval backend not configured")
			return invocationOutcome{err: errors.New("knowledge retrieval backend not configured")}
		}
		retrieval, err := e.knowledge.Retrieve(ctx, invocation.Query)
		if err != nil {
			entry.WithError(err).Warn("knowledge retrieval failed; skipping invocation")
			return invocationOutcome{err: err}
		}
		result := knowledgeFromRetrieval(retrieval)
		return invocationOutcome{record: &ToolExecutionRecord{
			Kind:      KnowledgeRetrieval,
			Query:     invocation.Query,
			Knowledge: &result,
		}}

	case WebSearch:
		if e.search == nil || !e.search.Available() {
			entry.Warn("web search unavailable; skipping invocation")
			return invocationOutcome{skipped: true, err: errSearchUnavailable}
		}
		response, err := e.search.Search(ctx, invocation.Query, e.cfg.SearchMaxResults)
		if err != nil {
			if errors.Is(err, tavily.ErrUnavailable) {
				entry.Warn("web search unavailable; skipping invocation")
				return invocationOutcome{skipped: true, err: err}
			}
			entry.WithError(err).Warn("web search failed; skipping invocation")
			return invocationOutcome{err: err}
		}
		result := searchFromResponse(invocation.Query, response)
		return invocationOutcome{record: &ToolExecutionRecord{
			Kind:   WebSearch,
			Query:  invocation.Query,
			Search: &result,
		}}
	}

	entry.Warn("unknown tool kind; skipping invocation")
	return invocationOutcome{err: fmt.Errorf("unknown tool kind %q", invocation.Kind)}
}

func knowledgeFromRetrieval(retrieval fanar.Retrieval) KnowledgeResult {
	result := KnowledgeResult{
		Content:    retrieval.Content,
		References: make([]SourceReference, 0, len(retrieval.References)),
		Origins:    make([]string, 0, len(retrieval.References)),
	}
	seen := make(map[string]struct{}, len(retrieval.References))
	for _, ref := range retrieval.References {
		result.References = append(result.References, SourceReference{
			Ordinal:   ref.Ordinal,
			Origin:    ref.Source,
			Excerpt:   ref.Content,
			Authentic: ref.Authentic,
		})
		if _, exists := seen[ref.Source]; exists {
			continue
		}
		seen[ref.Source] = struct{}{}
		result.Origins = append(result.Origins, ref.Source)
	}
	return result
}

func searchFromResponse(query string, response tavily.Response) SearchResult {
	echoed := response.Query
	if echoed == "" {
		echoed = query
	}
	result := SearchResult{
		Content: response.Content,
		Query:   echoed,
		Hits:    make([]SearchHit, 0, len(response.Results)),
	}
	for _, item := range response.Results {
		result.Hits = append(result.Hits, SearchHit{
			Title:   item.Title,
			URL:     item.URL,
			Snippet: item.Content,
		})
	}
	return result
}
