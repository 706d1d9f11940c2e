// Package orchestrator runs the plan-execute-collect loop.
//
// One ReAct call:
//   - Plan: the model is told which specialists exist and answers with a
//     tagged plan such as
//     <SpecializedAgent>{"agentName": "...", "user_input": "..."}</SpecializedAgent>
//   - Dispatch: plan steps run in order. Specialist results are collected,
//     thoughts are skipped, and FinalAnswer, RequestMoreInfo or NeedApproval
//     end the turn at once.
//   - Synthesis: when the plan runs out, the writer turns the collected
//     results into the answer.
//
// Specialist dispatch may run in parallel (WithParallelDispatch). Results
// are still folded in plan order.
//
// Example usage:
//
//	reg, _ := orchestrator.NewRegistry(market, news)
//	orch, err := orchestrator.New(orchestrator.RequiredConfig{Model: model, Registry: reg},
//		orchestrator.WithWriter(writer))
//	answer := orch.ReAct(ctx, "How is AAPL doing?")
package orchestrator
