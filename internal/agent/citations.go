package agent

import (
	"fmt"
	"strings"
)

var citationTags = []struct {
	kind  ToolKind
	open  string
	close string
}{
	{kind: KnowledgeRetrieval, open: "<RAG id=%d>", close: "</RAG>"},
	{kind: WebSearch, open: "<Internet id=%d>", close: "</Internet>"},
}

// ReplaceCitations rewrites every numbered citation tag whose id has an entry
// in refs into "[origin]" and strips the matching closing tags. Tags with ids
// beyond the origin list are left in place. Applying it twice is a no-op.
func ReplaceCitations(text string, refs References) string {
	for _, tag := range citationTags {
		origins := refs[tag.kind]
		if len(origins) == 0 {
			continue
		}
		for i := 1; i <= len(origins); i++ {
			text = strings.ReplaceAll(text, fmt.Sprintf(tag.open, i), "["+origins[i-1]+"]")
		}
		text = strings.ReplaceAll(text, tag.close, "")
	}
	return text
}
