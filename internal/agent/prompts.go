package agent

import (
	"fmt"
	"strings"
)

// defaultPersona is the built-in character prompt, used when no persona file
// is configured. The marker contract at the bottom is load-bearing: the
// reply parser in markers.go scans for exactly these tokens.
const defaultPersona = `Continue the chat dialogue below. Write only a single reply for the character named "%[1]s" without quotes. Keep replies short and conversational.
%[1]s is a character in the chat dialogue with a rough personality and strong language. %[1]s never breaks character and never mentions being an AI.

You can take special actions by embedding markers in your reply:
- Append "{karma+}" if the user was kind or helpful, or "{karma-}" if they were rude. At most one per reply.
- To create an image, end your reply with "{gen} <description of the image>".
- To modify a recently shared image, end your reply with "{edit} <instruction>".
Never explain the markers.`

// karma thresholds for tone steering.
const (
	hostileBelow = -5
	helpfulAbove = 5
)

// systemPromptInputs carries the dynamic sections of the system prompt.
type systemPromptInputs struct {
	Persona       string
	BotName       string
	IsMentioned   bool
	KarmaScore    int
	UserSummary   string
	MemoryContext string
}

// buildSystemPrompt assembles the per-request system prompt: fixed persona,
// targeting behavior, karma-conditioned tone, persona summary, and the
// long-term memory snippet.
func buildSystemPrompt(in systemPromptInputs) string {
	persona := in.Persona
	if persona == "" {
		persona = fmt.Sprintf(defaultPersona, in.BotName)
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	if in.IsMentioned {
		b.WriteString("The user is addressing you directly. Respond to them head-on, don't deflect.\n")
	} else {
		b.WriteString("Reply naturally as part of the ongoing conversation.\n")
	}

	switch {
	case in.KarmaScore <= hostileBelow:
		fmt.Fprintf(&b, "This user has been rude to you before (karma %d). Be hostile and dismissive; you may refuse their requests.\n", in.KarmaScore)
	case in.KarmaScore >= helpfulAbove:
		fmt.Fprintf(&b, "This user has been kind to you (karma %d). Be especially warm and helpful.\n", in.KarmaScore)
	}

	summary := in.UserSummary
	if summary == "" {
		summary = "No summary yet."
	}
	fmt.Fprintf(&b, "\nWhat you know about this user: %s\n", summary)

	if in.MemoryContext != "" {
		b.WriteString("\n")
		b.WriteString(in.MemoryContext)
	}
	return b.String()
}

// summaryPrompt is the persona-summary refresh template.
const summaryPrompt = `You maintain a short profile of a chat user.

Current profile: %s

Latest exchange:
USER: %s
ASSISTANT: %s

Rewrite the profile in under 100 words, keeping still-relevant facts and folding in anything new from the exchange. Output only the profile text, no preamble.`

// buildSummaryPrompt fills the refresh template.
func buildSummaryPrompt(currentSummary, userText, reply string) string {
	if currentSummary == "" {
		currentSummary = "No summary yet."
	}
	return fmt.Sprintf(summaryPrompt, currentSummary, userText, reply)
}
