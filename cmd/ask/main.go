package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ilm/backend/internal/agent"
	"ilm/backend/internal/config"
	"ilm/backend/internal/fanar"
	"ilm/backend/internal/httpapi"
	"ilm/backend/internal/logging"
	"ilm/backend/internal/tavily"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		staged       bool
		parallel     bool
		language     string
		noReferences bool
		verbose      bool
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:           "ask [flags] \"question\"",
		Short:         "Answer one question with the retrieval and search pipeline",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("question must not be empty")
			}

			if _, err := config.LoadEnvFiles(); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("staged") {
				staged = cfg.StagedModeDefault
			}
			if !cmd.Flags().Changed("parallel") {
				parallel = cfg.ParallelToolsDefault
			}

			level := "warn"
			if verbose {
				level = "debug"
			}
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), level, "text")

			chat := fanar.NewClient(cfg, nil)
			pipeline := agent.NewPipeline(chat, chat, tavily.NewClient(cfg, nil), agent.PipelineConfig{
				SynthesisStagedMaxTokens: cfg.SynthesisStagedMaxTokens,
				Executor: agent.ExecutorConfig{
					SearchMaxResults: cfg.TavilyMaxResults,
					Concurrency:      cfg.ToolConcurrency,
				},
			}, logger)

			query := agent.NewQuery(text)
			query.IncludeReferences = !noReferences
			if language != "" {
				query.Language = strings.ToLower(language)
			}

			opts := agent.RunOptions{Staged: staged, Parallel: parallel}
			if verbose {
				opts.OnProgress = func(p agent.Progress) {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%6.2fs] %-12s %s\n", p.Elapsed.Seconds(), p.Stage, p.Message)
				}
			}

			resp := pipeline.Run(cmd.Context(), query, opts)
			view := httpapi.BuildView(query, resp)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			fmt.Fprint(cmd.OutOrStdout(), view.Markdown())
			if resp.Stage == agent.StageFailed {
				return errors.New("pipeline failed; fallback answer returned")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&staged, "staged", false, "use two-round thinking mode for planning and synthesis")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "run tool invocations concurrently")
	cmd.Flags().StringVar(&language, "language", agent.DefaultLanguage, "answer language code")
	cmd.Flags().BoolVar(&noReferences, "no-references", false, "omit the reference listing")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the response as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print stage progress and debug logs to stderr")
	return cmd
}
