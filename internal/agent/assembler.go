// Package agent is the orchestration core: it turns an inbound chat request
// into one generative-model call, interprets the reply's action markers,
// applies side effects, and hands the finished turn to background workers
// for memory extraction and summary refresh.
package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/tanutb/AnanBot/internal/config"
	"github.com/tanutb/AnanBot/internal/history"
	"github.com/tanutb/AnanBot/internal/karma"
	"github.com/tanutb/AnanBot/internal/llm"
	"github.com/tanutb/AnanBot/internal/vault"
	"github.com/tanutb/AnanBot/pkg/types"
)

// PersonaProvider returns the current persona prompt. Implementations may
// reload it from disk; an empty string selects the built-in persona.
type PersonaProvider func() string

// Memory is the long-term memory capability the assembler consumes;
// *memoryindex.Index is the production implementation.
type Memory interface {
	Retrieve(ctx context.Context, query, userID string) string
	ExtractAndStore(ctx context.Context, gen llm.TextGenerator, userID, userText, reply string)
}

// Assembler composes the stores and model capabilities into the per-request
// pipeline. It holds no per-request state; every method is safe for
// concurrent use because the stores serialize their own mutations.
type Assembler struct {
	cfg     config.AgentConfig
	karma   *karma.Store
	history *history.Store
	vault   *vault.Vault
	memory  Memory
	chat    llm.ChatGenerator
	image   llm.ImageGenerator // nil when the provider has no image backend
	persona PersonaProvider
}

// New wires an Assembler. image may be nil; persona may be nil for the
// built-in prompt.
func New(cfg config.AgentConfig, karmaStore *karma.Store, historyStore *history.Store, imageVault *vault.Vault, memory Memory, chat llm.ChatGenerator, image llm.ImageGenerator, persona PersonaProvider) *Assembler {
	if persona == nil {
		persona = func() string { return "" }
	}
	return &Assembler{
		cfg:     cfg,
		karma:   karmaStore,
		history: historyStore,
		vault:   imageVault,
		memory:  memory,
		chat:    chat,
		image:   image,
		persona: persona,
	}
}

// HandleMessage runs one full turn. It never returns an error: every
// collaborator failure degrades to a visible message, so the user always
// gets a text response. The returned TurnTask is the deferred-work
// descriptor the caller schedules after delivering the response.
func (a *Assembler) HandleMessage(ctx context.Context, req types.ChatRequest) (types.ChatResponse, types.TurnTask) {
	contextID := req.ContextID
	if contextID == "" {
		contextID = req.UserID
	}
	a.karma.SetDisplayName(req.UserID, req.DisplayName)
	a.history.SetDisplayName(contextID, req.DisplayName)

	rec := a.karma.Get(req.UserID)
	memoryContext := a.memory.Retrieve(ctx, req.Text, req.UserID)

	system := buildSystemPrompt(systemPromptInputs{
		Persona:       a.persona(),
		BotName:       a.cfg.BotName,
		IsMentioned:   req.IsMentioned,
		KarmaScore:    rec.Score,
		UserSummary:   rec.Summary,
		MemoryContext: memoryContext,
	})

	// Image-bearing turns carry less surrounding history: each resolved
	// image inflates the request, so the window shrinks to compensate.
	window := a.cfg.ContextWindowText
	if len(req.Images) > 0 {
		window = a.cfg.ContextWindowImage
	}
	messages := a.buildWindow(contextID, window)

	uploadedPaths := a.vaultUploads(req, contextID)
	current := llm.ChatMessage{Role: string(types.RoleUser), Text: a.currentTurnText(req)}
	for i, img := range req.Images {
		if i >= a.cfg.MaxInputImages {
			break
		}
		current.Images = append(current.Images, img)
	}
	messages = append(messages, current)

	displayText := a.generate(ctx, llm.Prompt{
		System:    system,
		Messages:  messages,
		MaxTokens: a.cfg.MaxReplyTokens,
	})

	clean, actions := ParseReply(displayText)
	outcome := a.resolveActions(ctx, req, contextID, actions)
	for _, note := range outcome.Notes {
		if clean != "" {
			clean += " "
		}
		clean += note
	}
	if clean == "" {
		switch {
		case outcome.ImageSucceeded:
			clean = "Here is your image."
		case outcome.OtherSucceeded:
			clean = "Done."
		default:
			clean = "..."
		}
	}

	a.persistTurn(req, contextID, uploadedPaths, clean, outcome)

	resp := types.ChatResponse{Text: clean}
	if len(outcome.ImageBytes) > 0 {
		resp.ImageB64 = base64.StdEncoding.EncodeToString(outcome.ImageBytes)
	}
	task := types.TurnTask{
		UserID:             req.UserID,
		ContextID:          contextID,
		Text:               req.Text,
		Reply:              clean,
		UploadedImagePaths: uploadedPaths,
	}
	return resp, task
}

// buildWindow reconstitutes the recent conversation for the model call,
// resolving stored image references back to inline bytes. Unloadable images
// are skipped; the text survives.
func (a *Assembler) buildWindow(contextID string, n int) []llm.ChatMessage {
	var out []llm.ChatMessage
	for _, msg := range a.history.Window(contextID, n) {
		cm := llm.ChatMessage{Role: string(msg.Role), Text: msg.Text()}
		for _, path := range msg.ImagePaths() {
			data, err := a.vault.Load(path)
			if err != nil {
				log.Printf("agent: skipping unloadable history image %s: %v", path, err)
				continue
			}
			cm.Images = append(cm.Images, data)
		}
		out = append(out, cm)
	}
	return out
}

// currentTurnText prepends the sender's display name so the model can tell
// speakers apart in a shared context.
func (a *Assembler) currentTurnText(req types.ChatRequest) string {
	name := req.DisplayName
	if name == "" {
		name = req.UserID
	}
	return fmt.Sprintf("%s: %s", name, req.Text)
}

// vaultUploads persists this request's input images (up to the cap; extras
// are dropped) and pushes each onto the context's recent-image ring.
func (a *Assembler) vaultUploads(req types.ChatRequest, contextID string) []string {
	var paths []string
	for i, img := range req.Images {
		if i >= a.cfg.MaxInputImages {
			break
		}
		path, err := a.vault.Save(img)
		if err != nil {
			log.Printf("agent: failed to vault uploaded image: %v", err)
			continue
		}
		a.history.RecordRecentImage(contextID, path)
		paths = append(paths, path)
	}
	return paths
}

// generate makes the single model call and maps failures to user-visible
// text. An empty or safety-blocked reply gets an explanatory placeholder.
func (a *Assembler) generate(ctx context.Context, p llm.Prompt) string {
	reply, err := a.chat.Chat(ctx, p)
	if err != nil {
		log.Printf("agent: generation failed: %v", err)
		return fmt.Sprintf("[System error: the model call failed (%v).]", err)
	}
	if reply.FinishReason == llm.FinishSafety {
		return "[My reply was blocked by the safety filter. Try rephrasing.]"
	}
	if reply.Text == "" {
		return "[I could not come up with a reply. Try again.]"
	}
	return reply.Text
}

// persistTurn appends the user and assistant messages and flushes history
// synchronously. Losing the just-completed turn would desynchronize the
// visible conversation, so this flush does not wait for the background pass.
func (a *Assembler) persistTurn(req types.ChatRequest, contextID string, uploadedPaths []string, displayText string, outcome actionOutcome) {
	userMsg := types.Message{Role: types.RoleUser, Parts: []types.Part{types.TextPart(req.Text)}}
	for _, path := range uploadedPaths {
		userMsg.Parts = append(userMsg.Parts, types.ImagePart(path))
	}
	a.history.Append(contextID, userMsg)

	assistantMsg := types.Message{Role: types.RoleAssistant, Parts: []types.Part{types.TextPart(displayText)}}
	if outcome.ImagePath != "" {
		assistantMsg.Parts = append(assistantMsg.Parts, types.ImagePart(outcome.ImagePath))
	}
	a.history.Append(contextID, assistantMsg)

	if err := a.history.Persist(); err != nil {
		log.Printf("agent: history flush failed: %v", err)
	}
}
