package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/finsight/internal/llm"
	"github.com/ShayCichocki/finsight/internal/orchestrator"
	"github.com/ShayCichocki/finsight/internal/tui"
	"github.com/ShayCichocki/finsight/internal/version"
)

func runInteractive(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	program, app := tui.NewInteractiveProgram()
	app.SetInfo(version.Get(), len(a.orch.Specialists()))
	app.SetAskHandler(func(question string) string {
		answer := a.orch.ReAct(ctx, question)
		total := llm.SumUsage(a.models.usage()...)
		program.Send(tui.UsageMsg{
			InputTokens:  total.InputTokens,
			OutputTokens: total.OutputTokens,
			Calls:        total.Calls,
		})
		return answer
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			a.logger.Info("received shutdown signal")
			cancel()
			program.Quit()
		case <-ctx.Done():
		}
	}()

	// Forward events from the orchestrator to the TUI
	go forwardEventsToTUI(ctx, a.orch, program)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

func forwardEventsToTUI(ctx context.Context, o *orchestrator.Orchestrator, program *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.Events():
			if !ok {
				return
			}
			program.Send(tui.OrchestratorEventMsg{
				Type:      string(ev.Type),
				TurnID:    ev.TurnID,
				Agent:     ev.Agent,
				Step:      ev.Step,
				Message:   ev.Message,
				Timestamp: ev.Timestamp,
				Duration:  ev.Duration,
			})
		}
	}
}
