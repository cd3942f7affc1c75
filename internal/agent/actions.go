package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tanutb/AnanBot/pkg/types"
)

// actionOutcome summarizes what resolving a reply's actions produced.
type actionOutcome struct {
	ImageBytes     []byte   // generated or edited image, nil if none
	ImagePath      string   // vault path of the produced image
	ImageSucceeded bool
	OtherSucceeded bool     // a non-image action (karma) applied
	Notes          []string // bracketed system notes appended to the reply
}

// editCueWords are the textual hints that the user means an older image
// rather than the latest one. Best-effort disambiguation, not a contract.
var editCueWords = []string{"previous", "first"}

// resolveActions applies the parsed actions: karma deltas hit the speaker's
// score, image actions call the image backend and vault the result. Every
// failure becomes a visible note, never an error to the caller.
func (a *Assembler) resolveActions(ctx context.Context, req types.ChatRequest, contextID string, actions []Action) actionOutcome {
	var out actionOutcome

	for _, action := range actions {
		switch action.Kind {
		case ActionKarma:
			// The delta always targets the speaker, even when the reply
			// talks about someone else.
			if _, err := a.karma.Adjust(req.UserID, action.Delta, req.DisplayName); err != nil {
				log.Printf("agent: karma adjust failed for %s: %v", req.UserID, err)
			} else {
				out.OtherSucceeded = true
			}

		case ActionGenerateImage:
			a.resolveGenerate(ctx, contextID, action.Prompt, &out)

		case ActionEditImage:
			a.resolveEdit(ctx, req, contextID, action.Prompt, &out)
		}
	}
	return out
}

func (a *Assembler) resolveGenerate(ctx context.Context, contextID, prompt string, out *actionOutcome) {
	if a.image == nil {
		out.Notes = append(out.Notes, "[Image generation is not available.]")
		return
	}

	data, err := a.image.GenerateImage(ctx, prompt)
	if err != nil {
		out.Notes = append(out.Notes, fmt.Sprintf("[Image generation failed: %v]", err))
		return
	}

	path, err := a.vault.Save(data)
	if err != nil {
		log.Printf("agent: failed to vault generated image: %v", err)
	} else {
		a.history.RecordRecentImage(contextID, path)
		out.ImagePath = path
	}
	out.ImageBytes = data
	out.ImageSucceeded = true
}

func (a *Assembler) resolveEdit(ctx context.Context, req types.ChatRequest, contextID, instruction string, out *actionOutcome) {
	if a.image == nil {
		out.Notes = append(out.Notes, "[Image editing is not available.]")
		return
	}

	targets := a.editTargets(req, contextID, instruction)
	if len(targets) == 0 {
		out.Notes = append(out.Notes, "[There is no recent image to edit.]")
		return
	}

	data, err := a.image.EditImage(ctx, instruction, targets)
	if err != nil {
		out.Notes = append(out.Notes, fmt.Sprintf("[Image edit failed: %v]", err))
		return
	}

	path, err := a.vault.Save(data)
	if err != nil {
		log.Printf("agent: failed to vault edited image: %v", err)
	} else {
		a.history.RecordRecentImage(contextID, path)
		out.ImagePath = path
	}
	out.ImageBytes = data
	out.ImageSucceeded = true
}

// editTargets selects the images an edit applies to: this request's uploads
// first, then the context's shared recent-image ring newest first, up to the
// configured cap. A cue word in the instruction ("previous", "first") shifts
// the ring pick one entry back.
func (a *Assembler) editTargets(req types.ChatRequest, contextID, instruction string) [][]byte {
	limit := a.cfg.MaxEditImages
	if limit <= 0 {
		limit = 1
	}

	var targets [][]byte
	for _, img := range req.Images {
		if len(targets) >= limit {
			break
		}
		targets = append(targets, img)
	}
	if len(targets) >= limit {
		return targets
	}

	// Ring is stored oldest-first; walk it backwards for newest-first.
	ring := a.history.RecentImages(contextID)
	ordered := make([]string, 0, len(ring))
	for i := len(ring) - 1; i >= 0; i-- {
		ordered = append(ordered, ring[i])
	}
	if len(targets) == 0 && len(ordered) >= 2 && hasEditCue(instruction) {
		ordered[0], ordered[1] = ordered[1], ordered[0]
	}

	for _, path := range ordered {
		if len(targets) >= limit {
			break
		}
		data, err := a.vault.Load(path)
		if err != nil {
			log.Printf("agent: failed to load edit target %s: %v", path, err)
			continue
		}
		targets = append(targets, data)
	}
	return targets
}

func hasEditCue(instruction string) bool {
	lower := strings.ToLower(instruction)
	for _, cue := range editCueWords {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}
