package agent

import (
	"context"
	"errors"
	"strings"

	"ilm/backend/internal/fanar"
	"ilm/backend/internal/logging"
)

const (
	rewrittenHeader    = "Rewritten Query:"
	improvementsHeader = "Improvements Made:"

	defaultImprovement  = "Query processed for Islamic context"
	parseErrorNote      = "Error in parsing (using original query)"
	fallbackImprovement = "Added basic Islamic context (fallback)"
	fallbackSuffix      = " in Islamic perspective according to Quran and Sunnah"
)

var (
	errNoRewriteSection = errors.New("rewriter output has no recognised sections")

	domainTerms = []string{"islam", "islamic", "quran", "hadith", "prophet", "allah", "muhammad"}

	// "â€¢" is a UTF-8 bullet that was decoded as Windows-1252 upstream.
	bulletMarkers = []string{"â€¢", "•", "-", "*"}
)

type rewriteSection int

const (
	sectionNone rewriteSection = iota
	sectionQuery
	sectionImprovements
)

type Rewriter struct {
	chat   ChatBackend
	logger logging.Logger
}

func NewRewriter(chat ChatBackend, logger logging.Logger) Rewriter {
	return Rewriter{chat: chat, logger: logging.OrDiscard(logger)}
}

// Rewrite never fails. Backend errors degrade to a rule-based enhancement of
// the original query.
func (r Rewriter) Rewrite(ctx context.Context, original string) RewrittenQuery {
	if r.chat == nil {
		return fallbackRewrite(original)
	}

	messages := []fanar.Message{{Role: fanar.RoleUser, Content: buildRewritePrompt(original)}}
	raw, err := r.chat.Send(ctx, messages, 0)
	if err == nil && strings.TrimSpace(raw) == "" {
		err = errors.New("empty rewriter response")
	}
	if err != nil {
		r.logger.WithError(err).Warn("query rewrite failed; using rule-based enhancement")
		return fallbackRewrite(original)
	}

	rewritten, improvements, err := parseRewrite(raw, original)
	if err != nil {
		r.logger.WithError(err).Warn("could not parse rewriter output")
		rewritten = original
		improvements = []string{parseErrorNote}
	}
	return RewrittenQuery{
		Original:     original,
		Rewritten:    ensureRewritten(rewritten, original),
		Improvements: improvements,
	}
}

func fallbackRewrite(original string) RewrittenQuery {
	return RewrittenQuery{
		Original:     original,
		Rewritten:    ensureRewritten(simpleEnhance(original), original),
		Improvements: []string{fallbackImprovement},
	}
}

func parseRewrite(raw, original string) (string, []string, error) {
	rewritten := original
	improvements := make([]string, 0, 4)
	section := sectionNone
	sawSection := false

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.Contains(line, rewrittenHeader):
			section = sectionQuery
			sawSection = true
			if _, inline, ok := strings.Cut(line, ":"); ok {
				inline = strings.TrimSpace(inline)
				if inline != "" && !isPlaceholderLine(inline) {
					rewritten = inline
				}
			}
		case strings.Contains(line, improvementsHeader):
			section = sectionImprovements
			sawSection = true
		case section == sectionQuery:
			if !isPlaceholderLine(line) && !strings.HasPrefix(line, "2.") {
				rewritten = line
			}
		case section == sectionImprovements:
			if item, ok := stripBullet(line); ok {
				improvements = append(improvements, item)
			} else if !isPlaceholderLine(line) {
				improvements = append(improvements, line)
			}
		}
	}

	if !sawSection {
		return "", nil, errNoRewriteSection
	}

	rewritten = strings.TrimSpace(rewritten)
	if isBracketed(rewritten) {
		rewritten = original
	}
	if len(improvements) == 0 {
		improvements = append(improvements, defaultImprovement)
	}
	return rewritten, improvements, nil
}

// ensureRewritten guarantees a non-empty, non-placeholder query.
func ensureRewritten(rewritten, original string) string {
	rewritten = strings.TrimSpace(rewritten)
	if rewritten != "" && !isBracketed(rewritten) {
		return rewritten
	}
	enhanced := strings.TrimSpace(simpleEnhance(original))
	if enhanced == "" || isBracketed(enhanced) {
		enhanced = strings.TrimSpace(original + fallbackSuffix)
	}
	return enhanced
}

func stripBullet(line string) (string, bool) {
	for _, marker := range bulletMarkers {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

func isPlaceholderLine(line string) bool {
	return strings.HasPrefix(line, "[")
}

func isBracketed(value string) bool {
	return strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]")
}

// simpleEnhance appends Islamic context unless the query already mentions it.
func simpleEnhance(query string) string {
	lowered := strings.ToLower(query)
	for _, term := range domainTerms {
		if strings.Contains(lowered, term) {
			return query
		}
	}
	return query + fallbackSuffix
}
