package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"ilm/backend/internal/fanar"
	"ilm/backend/internal/tavily"
)

// chatStub routes prompts to scripted replies by the agent that sent them.
type chatStub struct {
	mu sync.Mutex

	rewrite    string
	plan       string
	synthesize string
	err        error
	delay      time.Duration
	panicOn    string

	prompts      []string
	stagedCalls  int
	stagedBudget []int
}

func (s *chatStub) Send(ctx context.Context, messages []fanar.Message, _ int) (string, error) {
	prompt := ""
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}
	return s.reply(prompt)
}

func (s *chatStub) SendStaged(ctx context.Context, prompt string, maxTokens int) (string, error) {
	s.mu.Lock()
	s.stagedCalls++
	s.stagedBudget = append(s.stagedBudget, maxTokens)
	s.mu.Unlock()
	return s.reply(prompt)
}

func (s *chatStub) reply(prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return "", s.err
	}
	switch {
	case strings.Contains(prompt, "Query Rewriter"):
		if s.panicOn == "rewrite" {
			panic("rewriter exploded")
		}
		return s.rewrite, nil
	case strings.Contains(prompt, "<InternetSearch><search_query>"):
		return s.plan, nil
	case strings.Contains(prompt, "Final Synthesis"):
		if s.panicOn == "synthesize" {
			panic("synthesis exploded")
		}
		return s.synthesize, nil
	case prompt == "Test message":
		return "ok", nil
	}
	return "", errors.New("unexpected prompt")
}

func (s *chatStub) lastPrompt(marker string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.prompts) - 1; i >= 0; i-- {
		if strings.Contains(s.prompts[i], marker) {
			return s.prompts[i]
		}
	}
	return ""
}

type knowledgeStub struct {
	mu      sync.Mutex
	results map[string]fanar.Retrieval
	fail    map[string]error
	delays  map[string]time.Duration
	panics  map[string]bool
	calls   []string
}

func (s *knowledgeStub) Retrieve(ctx context.Context, query string) (fanar.Retrieval, error) {
	if s.panics[query] {
		panic("retrieval exploded")
	}
	if delay := s.delays[query]; delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	s.calls = append(s.calls, query)
	s.mu.Unlock()
	if err := s.fail[query]; err != nil {
		return fanar.Retrieval{}, err
	}
	result, ok := s.results[query]
	if !ok {
		return fanar.Retrieval{}, errors.New("no result scripted")
	}
	return result, nil
}

type searchStub struct {
	mu        sync.Mutex
	available bool
	results   map[string]tavily.Response
	delays    map[string]time.Duration
	calls     []string
}

func (s *searchStub) Available() bool {
	return s.available
}

func (s *searchStub) Search(ctx context.Context, query string, maxResults int) (tavily.Response, error) {
	if delay := s.delays[query]; delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	s.calls = append(s.calls, query)
	s.mu.Unlock()
	if !s.available {
		return tavily.Response{}, tavily.ErrUnavailable
	}
	result, ok := s.results[query]
	if !ok {
		return tavily.Response{}, errors.New("no result scripted")
	}
	return result, nil
}

func retrieval(content string, refs ...fanar.Reference) fanar.Retrieval {
	for i := range refs {
		if refs[i].Ordinal == 0 {
			refs[i].Ordinal = i + 1
		}
	}
	return fanar.Retrieval{Content: content, References: refs}
}
