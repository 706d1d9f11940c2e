package orchestrator

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/finsight/internal/protocol"
)

// planLessonLimit is how many recent lessons join the planning prompt.
const planLessonLimit = 3

// systemPrompt tells the planning model who it can delegate to and how to
// answer in tags.
func (o *Orchestrator) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, the coordinator of a team of financial research agents.\n", o.name)
	b.WriteString("Break the user's request into sub-tasks and delegate each one to the agent best suited for it.\n\n")

	b.WriteString("Agents:\n")
	for _, d := range o.registry.Descriptors() {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Role)
	}

	if names := o.tools.Names(); len(names) > 0 {
		b.WriteString("\nTools:\n")
		for _, name := range names {
			t, _ := o.tools.Get(name)
			fmt.Fprintf(&b, "- %s: %s\n", name, t.Description())
		}
	}

	fmt.Fprintf(&b, `
Respond only with tags, in the order the steps should run:
- <%s>your reasoning</%s>
- <%s>{"%s": "<exact agent name>", "%s": "<the sub-task for that agent>"}</%s>
`, protocol.KindThought, protocol.KindThought,
		protocol.KindSpecializedAgent, protocol.FieldAgentName, protocol.FieldUserInput, protocol.KindSpecializedAgent)
	if o.tools.Len() > 0 {
		fmt.Fprintf(&b, "- <%s>{\"%s\": \"<tool name>\", \"%s\": \"<ticker>\"}</%s>\n",
			protocol.KindInvokeTool, protocol.FieldToolName, protocol.FieldSymbol, protocol.KindInvokeTool)
	}
	fmt.Fprintf(&b, `- <%s>question</%s> when the request is too vague to delegate
- <%s>what needs confirming</%s> when the user must confirm before you continue
- <%s>answer</%s> to answer directly; leave it empty after delegating and the team's results are used
Everything after a %s, %s or %s is ignored.
Use double quotes in JSON and only the agent names listed above.`,
		protocol.KindRequestMoreInfo, protocol.KindRequestMoreInfo,
		protocol.KindNeedApproval, protocol.KindNeedApproval,
		protocol.KindFinalAnswer, protocol.KindFinalAnswer,
		protocol.KindFinalAnswer, protocol.KindRequestMoreInfo, protocol.KindNeedApproval)

	return b.String()
}

// planPrompt carries lessons, history and the request.
func (o *Orchestrator) planPrompt(input string) string {
	var b strings.Builder

	if lessons := o.recentLessons(); len(lessons) > 0 {
		b.WriteString("Lessons learned:\n")
		for _, l := range lessons {
			fmt.Fprintf(&b, "- %s\n", l)
		}
		b.WriteString("\n")
	}

	if history := o.history.Snapshot(); len(history) > 0 {
		b.WriteString("Conversation history:\n")
		b.WriteString(strings.Join(history, "\n"))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "User request: %s\nPlan:", input)
	return b.String()
}

func (o *Orchestrator) recentLessons() []string {
	if o.lessons == nil {
		return nil
	}
	all := o.lessons.Lessons(0)
	if len(all) > planLessonLimit {
		all = all[len(all)-planLessonLimit:]
	}
	out := make([]string, 0, len(all))
	for _, l := range all {
		out = append(out, l.Text)
	}
	return out
}

// writerPrompt hands the collected results to the writer.
func writerPrompt(input string, results []string) string {
	return fmt.Sprintf("User request: %s\n\nInformation collected by the team:\n%s",
		input, strings.Join(results, "\n\n"))
}
