package agent

import (
	"regexp"
	"strings"
)

// ActionKind identifies a reply-embedded action.
type ActionKind string

const (
	ActionKarma         ActionKind = "karma"
	ActionGenerateImage ActionKind = "generate_image"
	ActionEditImage     ActionKind = "edit_image"
)

// Action is one side-effect request parsed out of a model reply.
type Action struct {
	Kind   ActionKind
	Delta  int    // karma adjustment, ±1
	Prompt string // image description or edit instruction
}

const (
	karmaUpMarker   = "{karma+}"
	karmaDownMarker = "{karma-}"
	genMarker       = "{gen}"
	editMarker      = "{edit}"
)

// karmaArtifactRe matches hallucinated literal karma values the model
// sometimes echoes into prose, e.g. "(karma: 5)" or "[karma -2]".
var karmaArtifactRe = regexp.MustCompile(`(?i)[\(\[]?\s*karma[\s:=]+[+-]?\d+\s*[\)\]]?`)

// ParseReply scans a raw model reply for action markers and returns the
// display text with every marker stripped, plus the parsed actions. It is
// the single place the marker contract lives; everything downstream works
// on clean text and structured actions.
func ParseReply(raw string) (string, []Action) {
	var actions []Action
	text := raw

	if strings.Contains(text, karmaUpMarker) {
		actions = append(actions, Action{Kind: ActionKarma, Delta: 1})
		text = strings.ReplaceAll(text, karmaUpMarker, "")
	}
	if strings.Contains(text, karmaDownMarker) {
		actions = append(actions, Action{Kind: ActionKarma, Delta: -1})
		text = strings.ReplaceAll(text, karmaDownMarker, "")
	}

	// A gen/edit marker starts an instruction suffix running to the end of
	// the reply. When the model emits both, the earlier one wins and the
	// stray later marker is dropped from its instruction.
	genIdx := strings.Index(text, genMarker)
	editIdx := strings.Index(text, editMarker)
	switch {
	case genIdx >= 0 && (editIdx < 0 || genIdx < editIdx):
		prompt := stripMarkers(text[genIdx+len(genMarker):])
		text = text[:genIdx]
		if prompt != "" {
			actions = append(actions, Action{Kind: ActionGenerateImage, Prompt: prompt})
		}
	case editIdx >= 0:
		prompt := stripMarkers(text[editIdx+len(editMarker):])
		text = text[:editIdx]
		if prompt != "" {
			actions = append(actions, Action{Kind: ActionEditImage, Prompt: prompt})
		}
	}

	text = karmaArtifactRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text), actions
}

// stripMarkers removes any marker tokens from an instruction suffix.
func stripMarkers(s string) string {
	for _, m := range []string{karmaUpMarker, karmaDownMarker, genMarker, editMarker} {
		s = strings.ReplaceAll(s, m, "")
	}
	return strings.TrimSpace(s)
}
