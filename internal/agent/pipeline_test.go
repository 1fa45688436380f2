package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ilm/backend/internal/fanar"
	"ilm/backend/internal/tavily"
)

const fastRewrite = "1. Rewritten Query: What invalidates sawm in Islamic jurisprudence?\n2. Improvements Made:\n- Added Islamic terminology"

func TestRunWhatBreaksAFast(t *testing.T) {
	chat := &chatStub{
		rewrite:    fastRewrite,
		plan:       "<RAG><query>conditions invalidating fasting</query></RAG>",
		synthesize: "Deliberate eating breaks the fast <RAG id=1>as explained</RAG>.",
	}
	knowledge := &knowledgeStub{results: map[string]fanar.Retrieval{
		"conditions invalidating fasting": retrieval("X", fanar.Reference{Source: "islamqa", Content: "...", Authentic: true}),
	}}

	var stages []Stage
	resp := NewPipeline(chat, knowledge, &searchStub{}, PipelineConfig{}, nil).Run(
		context.Background(),
		NewQuery("What breaks a fast?"),
		RunOptions{OnProgress: func(p Progress) { stages = append(stages, p.Stage) }},
	)

	prompt := chat.lastPrompt("Final Synthesis")
	assert.Equal(t, 1, strings.Count(prompt, "<RAG id=1>islamqa: ...</RAG>"))
	assert.Contains(t, prompt, "What breaks a fast?")

	assert.Equal(t, StageDone, resp.Stage)
	assert.Equal(t, "Deliberate eating breaks the fast [islamqa]as explained.", resp.Answer.Answer)
	assert.NotContains(t, resp.Answer.Answer, "<RAG")
	assert.NotContains(t, resp.Answer.Answer, "</RAG>")
	assert.Equal(t, MethodologySynthesis, resp.Answer.Methodology)

	require.NotNil(t, resp.Rewritten)
	assert.Equal(t, "What invalidates sawm in Islamic jurisprudence?", resp.Rewritten.Rewritten)
	assert.Equal(t, "What invalidates sawm in Islamic jurisprudence?", chatPlanQuery(chat))
	require.NotNil(t, resp.Knowledge)
	assert.Equal(t, "X", resp.Knowledge.Content)
	assert.Nil(t, resp.Search)
	assert.Positive(t, resp.Elapsed)
	assert.Equal(t, []Stage{StageRewriting, StagePlanning, StageExecuting, StageSynthesizing, StageDone}, stages)
}

func TestRunFallbackWhenChatAlwaysFails(t *testing.T) {
	chat := &chatStub{err: errors.New("service unavailable"), delay: time.Millisecond}

	resp := NewPipeline(chat, &knowledgeStub{}, &searchStub{}, PipelineConfig{}, nil).Run(
		context.Background(), NewQuery("What breaks a fast?"), RunOptions{},
	)

	assert.Equal(t, StageFailed, resp.Stage)
	assert.Zero(t, resp.Answer.Confidence)
	assert.Equal(t, MethodologyFallback, resp.Answer.Methodology)
	assert.Empty(t, resp.Answer.References[KnowledgeRetrieval])
	assert.Empty(t, resp.Answer.References[WebSearch])
	assert.Contains(t, resp.Answer.Answer, "No tool invocations generated")
	assert.Positive(t, resp.Elapsed)
	require.NotNil(t, resp.Rewritten)
	assert.Equal(t, []string{fallbackImprovement}, resp.Rewritten.Improvements)
}

func TestRunSkipsSearchWhenUnavailable(t *testing.T) {
	chat := &chatStub{
		rewrite:    fastRewrite,
		plan:       "<RAG><query>k</query></RAG><InternetSearch><search_query>latest fatwa</search_query></InternetSearch>",
		synthesize: "Answer <RAG id=1>cited</RAG> <Internet id=1>web</Internet>",
	}
	knowledge := &knowledgeStub{results: map[string]fanar.Retrieval{
		"k": retrieval("K", fanar.Reference{Source: "sunnah", Content: "hadith"}),
	}}
	search := &searchStub{available: false}

	resp := NewPipeline(chat, knowledge, search, PipelineConfig{}, nil).Run(context.Background(), NewQuery("q"), RunOptions{})

	assert.Equal(t, StageDone, resp.Stage)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, KnowledgeRetrieval, resp.Records[0].Kind)
	assert.Empty(t, search.calls)
	assert.Contains(t, resp.Warnings, warningSearchUnavailable)
	assert.Equal(t, "Answer [sunnah]cited <Internet id=1>web</Internet>", resp.Answer.Answer)
}

func TestRunRecoversFromPanic(t *testing.T) {
	chat := &chatStub{panicOn: "synthesize", rewrite: fastRewrite, plan: "<RAG><query>k</query></RAG>"}
	knowledge := &knowledgeStub{results: map[string]fanar.Retrieval{"k": retrieval("K")}}

	resp := NewPipeline(chat, knowledge, nil, PipelineConfig{}, nil).Run(context.Background(), NewQuery("q"), RunOptions{})

	assert.Equal(t, StageFailed, resp.Stage)
	assert.Equal(t, MethodologyFallback, resp.Answer.Methodology)
	assert.Contains(t, resp.Answer.Answer, "synthesis exploded")
	assert.Equal(t, NewReferences(), resp.Answer.References)
	assert.Positive(t, resp.Elapsed)
	require.Len(t, resp.Records, 1)
}

func TestRunSynthesisFailureIsFailedStage(t *testing.T) {
	chat := &chatStub{rewrite: fastRewrite, plan: "<RAG><query>k</query></RAG>", synthesize: ""}
	knowledge := &knowledgeStub{results: map[string]fanar.Retrieval{"k": retrieval("K")}}

	resp := NewPipeline(chat, knowledge, nil, PipelineConfig{}, nil).Run(context.Background(), NewQuery("q"), RunOptions{})

	assert.Equal(t, StageFailed, resp.Stage)
	assert.Equal(t, MethodologyFallback, resp.Answer.Methodology)
}

func TestRunParallelNumberingMatchesSequential(t *testing.T) {
	newDeps := func() (*chatStub, *knowledgeStub, *searchStub) {
		chat := &chatStub{
			rewrite: fastRewrite,
			plan: "<RAG><query>slow</query></RAG><RAG><query>fast</query></RAG>" +
				"<InternetSearch><search_query>w</search_query></InternetSearch>",
			synthesize: "<RAG id=1>a</RAG> <RAG id=2>b</RAG> <RAG id=3>c</RAG> <Internet id=1>d</Internet>",
		}
		knowledge := &knowledgeStub{
			results: map[string]fanar.Retrieval{
				"slow": retrieval("S", fanar.Reference{Source: "islamweb"}, fanar.Reference{Source: "dorar"}),
				"fast": retrieval("F", fanar.Reference{Source: "shamela"}),
			},
			delays: map[string]time.Duration{"slow": 25 * time.Millisecond},
		}
		search := &searchStub{available: true, results: map[string]tavily.Response{
			"w": {Results: []tavily.Result{{Title: "t", URL: "https://w"}}},
		}}
		return chat, knowledge, search
	}

	chat, knowledge, search := newDeps()
	sequential := NewPipeline(chat, knowledge, search, PipelineConfig{}, nil).Run(context.Background(), NewQuery("q"), RunOptions{})
	chat, knowledge, search = newDeps()
	parallel := NewPipeline(chat, knowledge, search, PipelineConfig{}, nil).Run(context.Background(), NewQuery("q"), RunOptions{Parallel: true})

	assert.Equal(t, "[islamweb]a [dorar]b [shamela]c [https://w]d", sequential.Answer.Answer)
	assert.Equal(t, sequential.Answer.Answer, parallel.Answer.Answer)
	assert.Equal(t, sequential.Answer.References, parallel.Answer.References)
}

func chatPlanQuery(chat *chatStub) string {
	prompt := chat.lastPrompt("<InternetSearch><search_query>")
	_, after, _ := strings.Cut(prompt, "Query:\n")
	return strings.TrimSpace(after)
}

func TestRunRecoversFromPanicInParallelTools(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		chat := &chatStub{rewrite: fastRewrite, plan: "<RAG><query>a</query></RAG><RAG><query>b</query></RAG>", synthesize: "answer"}
		knowledge := &knowledgeStub{panics: map[string]bool{"a": true, "b": true}}

		resp := NewPipeline(chat, knowledge, nil, PipelineConfig{}, nil).Run(context.Background(), NewQuery("q"), RunOptions{Parallel: parallel})

		assert.Equal(t, StageFailed, resp.Stage, "parallel=%v", parallel)
		assert.Equal(t, MethodologyFallback, resp.Answer.Methodology, "parallel=%v", parallel)
		assert.Contains(t, resp.Answer.Answer, "retrieval exploded", "parallel=%v", parallel)
		assert.Positive(t, resp.Elapsed)
	}
}
