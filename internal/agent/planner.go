package agent

import (
	"context"
	"regexp"
	"strings"

	"ilm/backend/internal/fanar"
	"ilm/backend/internal/logging"
)

var (
	knowledgeTagPattern = regexp.MustCompile(`(?s)<RAG><query>(.*?)</query></RAG>`)
	searchTagPattern    = regexp.MustCompile(`(?s)<InternetSearch><search_query>(.*?)</search_query></InternetSearch>`)
)

type Planner struct {
	chat   ChatBackend
	logger logging.Logger
}

func NewPlanner(chat ChatBackend, logger logging.Logger) Planner {
	return Planner{chat: chat, logger: logging.OrDiscard(logger)}
}

// Plan asks the model for tag-delimited tool invocations. Backend errors
// yield an empty plan and are never returned.
func (p Planner) Plan(ctx context.Context, query string, opts RunOptions) []ToolInvocation {
	if p.chat == nil {
		return nil
	}

	prompt := buildPlannerPrompt(query)
	var (
		raw string
		err error
	)
	if opts.Staged {
		raw, err = p.chat.SendStaged(ctx, prompt, 0)
	} else {
		raw, err = p.chat.Send(ctx, []fanar.Message{{Role: fanar.RoleUser, Content: prompt}}, 0)
	}
	if err != nil {
		p.logger.WithError(err).Warn("tool planning failed")
		plannedInvocations.Observe(0)
		return nil
	}

	invocations := ParseInvocations(raw)
	plannedInvocations.Observe(float64(len(invocations)))
	p.logger.WithFields(logging.Fields{
		"invocations": len(invocations),
		"staged":      opts.Staged,
	}).Debug("tool plan parsed")
	return invocations
}

// ParseInvocations extracts every knowledge-retrieval tag, then every
// web-search tag, each in order of appearance. Citation numbering depends on
// this order.
func ParseInvocations(raw string) []ToolInvocation {
	invocations := make([]ToolInvocation, 0, 4)
	invocations = appendMatches(invocations, KnowledgeRetrieval, knowledgeTagPattern, raw)
	invocations = appendMatches(invocations, WebSearch, searchTagPattern, raw)
	return invocations
}

func appendMatches(out []ToolInvocation, kind ToolKind, pattern *regexp.Regexp, raw string) []ToolInvocation {
	for _, match := range pattern.FindAllStringSubmatch(raw, -1) {
		query := strings.TrimSpace(match[1])
		if query == "" {
			continue
		}
		out = append(out, ToolInvocation{Kind: kind, Query: query})
	}
	return out
}
