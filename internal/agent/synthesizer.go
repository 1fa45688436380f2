package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ilm/backend/internal/fanar"
	"ilm/backend/internal/logging"
)

const (
	sourceExcerptRunes           = 100
	defaultSynthesisStagedBudget = 2000
	fallbackAnswerPrefix         = "I apologize, but I encountered an error while processing your query: "
	unknownTitle                 = "Unknown"
)

type Synthesizer struct {
	chat              ChatBackend
	stagedTokenBudget int
	logger            logging.Logger
}

func NewSynthesizer(chat ChatBackend, stagedTokenBudget int, logger logging.Logger) Synthesizer {
	if stagedTokenBudget <= 0 {
		stagedTokenBudget = defaultSynthesisStagedBudget
	}
	return Synthesizer{
		chat:              chat,
		stagedTokenBudget: stagedTokenBudget,
		logger:            logging.OrDiscard(logger),
	}
}

// Synthesize writes the final answer from the full record sequence. The
// returned answer still carries citation tags; ReplaceCitations resolves them
// against the returned References. Any failure yields FallbackAnswer.
func (s Synthesizer) Synthesize(ctx context.Context, query Query, records []ToolExecutionRecord, opts RunOptions) FinalAnswer {
	if s.chat == nil {
		return FallbackAnswer(errors.New("chat backend not configured"))
	}

	sources, refs := BuildSources(records)
	prompt := buildSynthesisPrompt(query.Text, sources, query.Language)

	var (
		answer string
		err    error
	)
	if opts.Staged {
		answer, err = s.chat.SendStaged(ctx, prompt, s.stagedTokenBudget)
	} else {
		answer, err = s.chat.Send(ctx, []fanar.Message{{Role: fanar.RoleUser, Content: prompt}}, 0)
	}
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty synthesis response")
	}
	if err != nil {
		s.logger.WithError(err).Warn("synthesis failed; returning fallback answer")
		return FallbackAnswer(err)
	}

	return FinalAnswer{
		Answer:      answer,
		Methodology: MethodologySynthesis,
		References:  refs,
	}
}

// FallbackAnswer is the fixed answer shape for any pipeline failure.
func FallbackAnswer(err error) FinalAnswer {
	description := "unknown error"
	if err != nil {
		description = err.Error()
	}
	return FinalAnswer{
		Answer:      fallbackAnswerPrefix + description,
		Confidence:  0,
		Methodology: MethodologyFallback,
		References:  NewReferences(),
	}
}

// sourceFold threads the per-kind citation counters through the records.
type sourceFold struct {
	parts []string
	refs  References
}

// BuildSources renders the sources block handed to the model together with
// the origin lists that back its citation ids. Ids run 1..n per kind across
// all records, in record order.
func BuildSources(records []ToolExecutionRecord) (string, References) {
	fold := sourceFold{refs: NewReferences()}
	for _, record := range records {
		fold = fold.add(record)
	}
	return strings.Join(fold.parts, "\n"), fold.refs
}

func (f sourceFold) add(record ToolExecutionRecord) sourceFold {
	switch {
	case record.Kind == KnowledgeRetrieval && record.Knowledge != nil:
		f.parts = append(f.parts,
			"## Islamic Sources Information",
			"**Query Used:** "+record.Query,
			"**Content:** "+record.Knowledge.Content,
		)
		if len(record.Knowledge.References) > 0 {
			f.parts = append(f.parts, "**Detailed References and Sources:**")
			for _, ref := range record.Knowledge.References {
				id := len(f.refs[KnowledgeRetrieval]) + 1
				f.parts = append(f.parts, fmt.Sprintf("<RAG id=%d>%s: %s</RAG>", id, ref.Origin, excerpt(ref.Excerpt, sourceExcerptRunes)))
				f.refs[KnowledgeRetrieval] = append(f.refs[KnowledgeRetrieval], ref.Origin)
			}
		}
		f.parts = append(f.parts, "")

	case record.Kind == WebSearch && record.Search != nil:
		f.parts = append(f.parts,
			"## Contemporary (Internet Search) Information",
			"**Search Query:** "+record.Query,
			"**Direct Search Answer:** "+record.Search.Content,
		)
		if len(record.Search.Hits) > 0 {
			f.parts = append(f.parts, "**Web Search Results:**")
			for _, hit := range record.Search.Hits {
				id := len(f.refs[WebSearch]) + 1
				title := hit.Title
				if title == "" {
					title = unknownTitle
				}
				f.parts = append(f.parts, fmt.Sprintf("<Internet id=%d>%s (%s): %s</Internet>", id, title, hit.URL, excerpt(hit.Snippet, sourceExcerptRunes)))
				f.refs[WebSearch] = append(f.refs[WebSearch], hit.URL)
			}
		}
		f.parts = append(f.parts, "")
	}
	return f
}
