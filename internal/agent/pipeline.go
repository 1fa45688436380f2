package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ilm/backend/internal/logging"
)

// Shown verbatim in the fallback answer.
var errNoInvocations = errors.New("No tool invocations generated") //nolint:staticcheck // ST1005: user-facing text

type PipelineConfig struct {
	SynthesisStagedMaxTokens int
	Executor                 ExecutorConfig
}

// Pipeline runs rewrite, plan, execute and synthesize in order for one
// request. It holds no per-request state.
type Pipeline struct {
	rewriter    Rewriter
	planner     Planner
	executor    Executor
	synthesizer Synthesizer
	logger      logging.Logger
}

func NewPipeline(chat ChatBackend, knowledge KnowledgeBackend, search SearchBackend, cfg PipelineConfig, logger logging.Logger) Pipeline {
	logger = logging.OrDiscard(logger)
	return Pipeline{
		rewriter:    NewRewriter(chat, logger),
		planner:     NewPlanner(chat, logger),
		executor:    NewExecutor(knowledge, search, cfg.Executor, logger),
		synthesizer: NewSynthesizer(chat, cfg.SynthesisStagedMaxTokens, logger),
		logger:      logger,
	}
}

// Run never returns an error. Failures, including panics in any stage, come
// back as a fallback answer with Stage set to StageFailed. Citation tags are
// always resolved and Elapsed is always set.
func (p Pipeline) Run(ctx context.Context, query Query, opts RunOptions) (resp SystemResponse) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(query.Language) == "" {
		query.Language = DefaultLanguage
	}

	started := time.Now()
	entry := p.logger.WithFields(logging.Fields{
		"staged":   opts.Staged,
		"parallel": opts.Parallel,
		"language": query.Language,
	})
	entry.WithField("query", trimToRunes(query.Text, 50)).Info("processing query")

	defer func() {
		if recovered := recover(); recovered != nil {
			entry.WithField("panic", recovered).Error("pipeline panicked")
			fallbackAnswersTotal.WithLabelValues("panic").Inc()
			resp.Answer = FallbackAnswer(fmt.Errorf("%v", recovered))
			resp.Stage = StageFailed
		}
		if resp.Answer.References == nil {
			resp.Answer.References = NewReferences()
		}
		resp.Answer.Answer = ReplaceCitations(resp.Answer.Answer, resp.Answer.References)
		resp.Elapsed = time.Since(started)
		pipelineRunsTotal.WithLabelValues(string(resp.Stage)).Inc()
		entry.WithFields(logging.Fields{
			"stage":      resp.Stage,
			"elapsed_ms": resp.Elapsed.Milliseconds(),
			"records":    len(resp.Records),
		}).Info("query processed")
	}()

	resp.Stage = StageRewriting
	p.progress(opts, resp.Stage, "Rewriting query", started)
	stageStart := time.Now()
	rewritten := p.rewriter.Rewrite(ctx, query.Text)
	resp.Rewritten = &rewritten
	observeStage(StageRewriting, stageStart)

	resp.Stage = StagePlanning
	p.progress(opts, resp.Stage, "Planning tool invocations", started)
	stageStart = time.Now()
	resp.Invocations = p.planner.Plan(ctx, rewritten.Rewritten, opts)
	observeStage(StagePlanning, stageStart)

	if len(resp.Invocations) == 0 {
		entry.Warn("no tool invocations generated")
		fallbackAnswersTotal.WithLabelValues("no_invocations").Inc()
		resp.Answer = FallbackAnswer(errNoInvocations)
		resp.Stage = StageFailed
		return resp
	}

	resp.Stage = StageExecuting
	p.progress(opts, resp.Stage, fmt.Sprintf("Running %d tool invocations", len(resp.Invocations)), started)
	stageStart = time.Now()
	execution := p.executor.Execute(ctx, resp.Invocations, opts)
	observeStage(StageExecuting, stageStart)
	resp.Records = execution.Records
	resp.Knowledge = execution.LastKnowledge
	resp.Search = execution.LastSearch
	for _, warning := range execution.Warnings {
		resp.Warnings = appendUniqueWarning(resp.Warnings, warning)
	}

	if execution.Err != nil {
		entry.WithError(execution.Err).Warn("tool execution failed")
		fallbackAnswersTotal.WithLabelValues("execution").Inc()
		resp.Answer = FallbackAnswer(execution.Err)
		resp.Stage = StageFailed
		return resp
	}

	resp.Stage = StageSynthesizing
	p.progress(opts, resp.Stage, "Synthesizing final answer", started)
	stageStart = time.Now()
	resp.Answer = p.synthesizer.Synthesize(ctx, query, resp.Records, opts)
	observeStage(StageSynthesizing, stageStart)

	if resp.Answer.Methodology == MethodologyFallback {
		fallbackAnswersTotal.WithLabelValues("synthesis").Inc()
		resp.Stage = StageFailed
		return resp
	}

	resp.Stage = StageDone
	p.progress(opts, resp.Stage, "Answer ready", started)
	return resp
}

func (p Pipeline) progress(opts RunOptions, stage Stage, message string, started time.Time) {
	emitProgress(opts.OnProgress, Progress{
		Stage:   stage,
		Message: message,
		Elapsed: time.Since(started),
	})
}

func observeStage(stage Stage, started time.Time) {
	stageDuration.WithLabelValues(string(stage)).Observe(time.Since(started).Seconds())
}
