package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRewriteInlineAndBullets(t *testing.T) {
	raw := "1. Rewritten Query: What invalidates sawm (fasting) in Islamic jurisprudence?\n" +
		"2. Improvements Made:\n" +
		"- Added Arabic term sawm\n" +
		"* Named the jurisprudential context\n" +
		"â€¢ Fixed a corrupted bullet\n" +
		"[placeholder]\n" +
		"Plain note line\n"

	rewritten, improvements, err := parseRewrite(raw, "What breaks a fast?")
	require.NoError(t, err)
	assert.Equal(t, "What invalidates sawm (fasting) in Islamic jurisprudence?", rewritten)
	assert.Equal(t, []string{
		"Added Arabic term sawm",
		"Named the jurisprudential context",
		"Fixed a corrupted bullet",
		"Plain note line",
	}, improvements)
}

func TestParseRewriteLastQueryLineWins(t *testing.T) {
	raw := "Rewritten Query:\nfirst draft\n[Your improved version]\nsecond draft\nImprovements Made: [List]\n"

	rewritten, improvements, err := parseRewrite(raw, "orig")
	require.NoError(t, err)
	assert.Equal(t, "second draft", rewritten)
	assert.Equal(t, []string{defaultImprovement}, improvements)
}

func TestParseRewritePlaceholderFallsBackToOriginal(t *testing.T) {
	raw := "1. Rewritten Query: [Your improved version]\n2. Improvements Made: [List of specific improvements]\n"

	rewritten, improvements, err := parseRewrite(raw, "What breaks a fast?")
	require.NoError(t, err)
	assert.Equal(t, "What breaks a fast?", rewritten)
	assert.Equal(t, []string{defaultImprovement}, improvements)
}

func TestRewriteWithoutSectionsUsesOriginal(t *testing.T) {
	chat := &chatStub{rewrite: "I cannot help with that."}
	got := NewRewriter(chat, nil).Rewrite(context.Background(), "What breaks a fast?")

	assert.Equal(t, "What breaks a fast?", got.Rewritten)
	assert.Equal(t, []string{parseErrorNote}, got.Improvements)
}

func TestRewriteBackendFailureEnhancesQuery(t *testing.T) {
	chat := &chatStub{err: errors.New("connection refused")}
	rewriter := NewRewriter(chat, nil)

	got := rewriter.Rewrite(context.Background(), "What breaks a fast?")
	assert.Equal(t, "What breaks a fast? in Islamic perspective according to Quran and Sunnah", got.Rewritten)
	assert.Equal(t, []string{fallbackImprovement}, got.Improvements)
	assert.Equal(t, "What breaks a fast?", got.Original)

	got = rewriter.Rewrite(context.Background(), "What does the Quran say about patience?")
	assert.Equal(t, "What does the Quran say about patience?", got.Rewritten)
}

func TestRewriteEmptyResponseUsesFallback(t *testing.T) {
	chat := &chatStub{rewrite: "   "}
	got := NewRewriter(chat, nil).Rewrite(context.Background(), "zakat on gold")

	assert.Equal(t, "zakat on gold in Islamic perspective according to Quran and Sunnah", got.Rewritten)
	assert.Equal(t, []string{fallbackImprovement}, got.Improvements)
}

func TestRewriteNeverEmptyOrBracketed(t *testing.T) {
	outputs := []string{
		"",
		"Rewritten Query: [x]",
		"Rewritten Query:\n[Your improved version]",
		"Improvements Made:\n- nothing",
		"garbage",
	}
	originals := []string{"", "   ", "[placeholder]", "[islam]", "What is zakat?"}

	for _, output := range outputs {
		for _, original := range originals {
			chat := &chatStub{rewrite: output}
			got := NewRewriter(chat, nil).Rewrite(context.Background(), original)
			assert.NotEmpty(t, got.Rewritten, "output %q original %q", output, original)
			assert.False(t, isBracketed(got.Rewritten), "output %q original %q gave %q", output, original, got.Rewritten)
			assert.NotEmpty(t, got.Improvements)
		}
	}
}

func TestRewriteKeepsImprovementsWithoutQuerySection(t *testing.T) {
	chat := &chatStub{rewrite: "Improvements Made:\n- Added fiqh context"}
	got := NewRewriter(chat, nil).Rewrite(context.Background(), "What breaks a fast?")

	assert.Equal(t, "What breaks a fast?", got.Rewritten)
	assert.Equal(t, []string{"Added fiqh context"}, got.Improvements)
}
