package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/finsight/internal/llm"
	"github.com/ShayCichocki/finsight/internal/orchestrator"
)

var askShowEvents bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question and exit",
	Long: `Ask the team one question and print the answer.

Examples:
  finsight ask "How is AAPL doing?"
  finsight ask --events "Compare recent news for MSFT and NVDA"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowEvents, "events", false, "Print agent activity to stderr while answering")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question is empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	answered := make(chan struct{})
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(answered, a.orch, askShowEvents)
	}()

	answer := a.orch.ReAct(ctx, question)
	close(answered)
	<-printed

	fmt.Fprintln(cmd.OutOrStdout(), answer)
	if askShowEvents {
		printUsage(cmd.ErrOrStderr(), a.models.usage())
	}
	return nil
}

// printUsage prints one token usage line per model that reports it.
func printUsage(w io.Writer, usage []llm.Usage) {
	for _, u := range usage {
		fmt.Fprintf(w, "%s %d in / %d out tokens, %d calls",
			color.HiBlackString("[%s]", u.Model), u.InputTokens, u.OutputTokens, u.Calls)
		if u.Failures > 0 {
			fmt.Fprintf(w, ", %s", color.YellowString("%d failed", u.Failures))
		}
		fmt.Fprintln(w)
	}
}

// printEvents reads orchestrator events until stop is closed and the buffer
// is empty, printing them to stderr when show is set.
func printEvents(stop <-chan struct{}, o *orchestrator.Orchestrator, show bool) {
	for {
		select {
		case ev, ok := <-o.Events():
			if !ok {
				return
			}
			if show {
				printEvent(ev)
			}
		case <-stop:
			for {
				select {
				case ev, ok := <-o.Events():
					if !ok {
						return
					}
					if show {
						printEvent(ev)
					}
				default:
					return
				}
			}
		}
	}
}

func printEvent(ev orchestrator.OrchestratorEvent) {
	agentColor := color.New(color.FgCyan)
	switch ev.Type {
	case orchestrator.EventPlanParsed:
		fmt.Fprintf(os.Stderr, "plan: %s\n", ev.Message)
	case orchestrator.EventDispatchStarted:
		fmt.Fprintf(os.Stderr, "%s working\n", agentColor.Sprintf("[%s]", ev.Agent))
	case orchestrator.EventDispatchCompleted:
		fmt.Fprintf(os.Stderr, "%s done in %s\n", agentColor.Sprintf("[%s]", ev.Agent), ev.Duration.Round(time.Millisecond))
	case orchestrator.EventAgentNotFound:
		fmt.Fprintln(os.Stderr, color.YellowString(ev.Message))
	case orchestrator.EventToolInvoked:
		fmt.Fprintf(os.Stderr, "%s called\n", agentColor.Sprintf("[%s]", ev.Agent))
	}
}
