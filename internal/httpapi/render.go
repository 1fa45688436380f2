package httpapi

import (
	"fmt"
	"strings"

	"ilm/backend/internal/agent"
)

const (
	renderExcerptRunes = 200
	renderSearchHits   = 3
)

// ResponseView is the client-facing shape of one answered query.
type ResponseView struct {
	Answer         string          `json:"answer"`
	Confidence     float64         `json:"confidence"`
	Methodology    string          `json:"methodology"`
	Stage          string          `json:"stage"`
	Knowledge      *KnowledgeView  `json:"knowledge,omitempty"`
	Search         *SearchView     `json:"search,omitempty"`
	QueryInfo      QueryInfo       `json:"queryInfo"`
	References     []ReferenceList `json:"references,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
	ElapsedSeconds float64         `json:"elapsedSeconds"`
}

type KnowledgeView struct {
	Content    string          `json:"content"`
	Origins    []string        `json:"origins"`
	References []ExcerptedItem `json:"references"`
}

type SearchView struct {
	Query   string          `json:"query"`
	Content string          `json:"content"`
	Hits    []ExcerptedItem `json:"hits"`
}

type ExcerptedItem struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Excerpt string `json:"excerpt"`
}

type QueryInfo struct {
	Original     string                 `json:"original"`
	Rewritten    string                 `json:"rewritten,omitempty"`
	Improvements []string               `json:"improvements,omitempty"`
	Invocations  []agent.ToolInvocation `json:"invocations"`
}

type ReferenceList struct {
	Kind    agent.ToolKind `json:"kind"`
	Entries []string       `json:"entries"`
}

// BuildView flattens a pipeline response for rendering. Reference listings
// are left out when the query asked for no references.
func BuildView(query agent.Query, resp agent.SystemResponse) ResponseView {
	view := ResponseView{
		Answer:         resp.Answer.Answer,
		Confidence:     resp.Answer.Confidence,
		Methodology:    resp.Answer.Methodology,
		Stage:          string(resp.Stage),
		Warnings:       resp.Warnings,
		ElapsedSeconds: resp.Elapsed.Seconds(),
		QueryInfo: QueryInfo{
			Original:    query.Text,
			Invocations: resp.Invocations,
		},
	}
	if view.QueryInfo.Invocations == nil {
		view.QueryInfo.Invocations = []agent.ToolInvocation{}
	}
	if resp.Rewritten != nil {
		view.QueryInfo.Rewritten = resp.Rewritten.Rewritten
		view.QueryInfo.Improvements = resp.Rewritten.Improvements
	}

	if k := resp.Knowledge; k != nil {
		kv := &KnowledgeView{Content: k.Content, Origins: k.Origins, References: []ExcerptedItem{}}
		for _, ref := range k.References {
			kv.References = append(kv.References, ExcerptedItem{Title: ref.Origin, Excerpt: clip(ref.Excerpt, renderExcerptRunes)})
		}
		view.Knowledge = kv
	}

	if s := resp.Search; s != nil {
		sv := &SearchView{Query: s.Query, Content: s.Content, Hits: []ExcerptedItem{}}
		for i, hit := range s.Hits {
			if i == renderSearchHits {
				break
			}
			sv.Hits = append(sv.Hits, ExcerptedItem{Title: hit.Title, URL: hit.URL, Excerpt: clip(hit.Snippet, renderExcerptRunes)})
		}
		view.Search = sv
	}

	if query.IncludeReferences {
		for _, kind := range []agent.ToolKind{agent.KnowledgeRetrieval, agent.WebSearch} {
			entries := resp.Answer.References[kind]
			if len(entries) == 0 {
				continue
			}
			view.References = append(view.References, ReferenceList{Kind: kind, Entries: entries})
		}
	}
	return view
}

// Markdown renders the view for terminals and chat-style clients.
func (v ResponseView) Markdown() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(v.Answer))
	b.WriteString("\n")

	if v.Knowledge != nil {
		b.WriteString("\n### Islamic Sources\n\n")
		fmt.Fprintf(&b, "**Content:** %s\n\n", v.Knowledge.Content)
		if len(v.Knowledge.Origins) > 0 {
			fmt.Fprintf(&b, "**Sources Used:** %s\n\n", strings.Join(v.Knowledge.Origins, ", "))
		}
		for _, ref := range v.Knowledge.References {
			fmt.Fprintf(&b, "- **%s**: %s\n", ref.Title, ref.Excerpt)
		}
	}

	if v.Search != nil {
		b.WriteString("\n### Web Search\n\n")
		fmt.Fprintf(&b, "**Search Query:** %s\n\n", v.Search.Query)
		fmt.Fprintf(&b, "**Content:** %s\n\n", v.Search.Content)
		for _, hit := range v.Search.Hits {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", hit.Title, hit.URL, hit.Excerpt)
		}
	}

	b.WriteString("\n### Query\n\n")
	fmt.Fprintf(&b, "**Original Query:** %s\n", v.QueryInfo.Original)
	if v.QueryInfo.Rewritten != "" {
		fmt.Fprintf(&b, "**Rewritten Query:** %s\n", v.QueryInfo.Rewritten)
	}
	if len(v.QueryInfo.Improvements) > 0 {
		fmt.Fprintf(&b, "**Improvements:** %s\n", strings.Join(v.QueryInfo.Improvements, ", "))
	}
	fmt.Fprintf(&b, "**Confidence:** %.2f\n", v.Confidence)
	fmt.Fprintf(&b, "**Methodology:** %s\n", v.Methodology)

	if len(v.References) > 0 {
		b.WriteString("\n### References\n")
		for _, list := range v.References {
			fmt.Fprintf(&b, "\n**%s:**\n", list.Kind)
			for i, entry := range list.Entries {
				fmt.Fprintf(&b, "%d. %s\n", i+1, entry)
			}
		}
	}

	fmt.Fprintf(&b, "\n_Processing time: %.2f seconds_\n", v.ElapsedSeconds)
	return b.String()
}

func clip(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}
