// Package tui provides the interactive chat screen for finsight.
//
// The screen has a transcript of questions and answers, an activity panel
// that shows orchestrator events as they happen and an input line. The
// caller supplies the function that answers a question and forwards
// orchestrator events with tea.Program.Send:
//
//	program, app := tui.NewInteractiveProgram()
//	app.SetAskHandler(func(q string) string {
//	    return orch.ReAct(ctx, q)
//	})
//
//	go func() {
//	    for ev := range orch.Events() {
//	        program.Send(tui.OrchestratorEventMsg{Type: string(ev.Type), Agent: ev.Agent, Message: ev.Message})
//	    }
//	}()
//
//	_, err := program.Run()
package tui
