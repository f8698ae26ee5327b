// Package conversation implements the conversation engine (§4.5):
// process_turn's ten-step loop, initiate/end with the cooldown formula,
// and tier selection over the LLM gateway. Grounded on the teacher's
// message_service.go turn-processing shape (load context, call the
// model, persist, update state) generalized from one clone's message
// history into the spec's continue-score-driven multi-tier turn loop.
package conversation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
	"github.com/saltydev0331/persona-mcp-sub000/internal/emotion"
	"github.com/saltydev0331/persona-mcp-sub000/internal/importance"
	"github.com/saltydev0331/persona-mcp-sub000/internal/llm"
	"github.com/saltydev0331/persona-mcp-sub000/internal/memory"
	"github.com/saltydev0331/persona-mcp-sub000/internal/relationship"
	"github.com/saltydev0331/persona-mcp-sub000/internal/scoring"
)

// PersonaStore is the subset of store.PersonaRepository the engine needs.
type PersonaStore interface {
	Get(ctx context.Context, id string) (*domain.Persona, error)
	SaveInteractionState(ctx context.Context, s domain.InteractionState) error
}

// EmotionalStore is the subset of store.EmotionalStateRepository needed.
type EmotionalStore interface {
	Get(ctx context.Context, personaID string) (*domain.EmotionalState, error)
	Upsert(ctx context.Context, s domain.EmotionalState) error
}

// ConversationStore is the subset of store.ConversationRepository needed.
type ConversationStore interface {
	Create(ctx context.Context, c domain.Conversation) error
	Save(ctx context.Context, c domain.Conversation) error
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	AppendTurn(ctx context.Context, t domain.ConversationTurn) error
}

// Engine wires the continue-score engine, LLM gateway, memory manager,
// and relationship manager into the per-turn loop.
type Engine struct {
	personas      PersonaStore
	emotional     EmotionalStore
	conversations ConversationStore
	scorer        *scoring.Engine
	gateway       llm.Gateway
	memories      *memory.Manager
	relationships *relationship.Manager
	prompts       PromptBuilder
	logger        *zap.Logger
}

func NewEngine(
	personas PersonaStore,
	emotional EmotionalStore,
	conversations ConversationStore,
	scorer *scoring.Engine,
	gateway llm.Gateway,
	memories *memory.Manager,
	relationships *relationship.Manager,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		personas:      personas,
		emotional:     emotional,
		conversations: conversations,
		scorer:        scorer,
		gateway:       gateway,
		memories:      memories,
		relationships: relationships,
		logger:        logger,
	}
}

// Initiate starts a new conversation between two personas, rejecting if
// either is unavailable per InteractionState.IsAvailable.
func (e *Engine) Initiate(ctx context.Context, p1, p2, topic string, maxDurationSeconds float64, tokenBudget int, now time.Time) (*domain.Conversation, error) {
	persona1, err := e.personas.Get(ctx, p1)
	if err != nil {
		return nil, fmt.Errorf("%w: persona %s not found", domain.ErrNotFound, p1)
	}
	persona2, err := e.personas.Get(ctx, p2)
	if err != nil {
		return nil, fmt.Errorf("%w: persona %s not found", domain.ErrNotFound, p2)
	}
	if !persona1.Interaction.IsAvailable(now) || !persona2.Interaction.IsAvailable(now) {
		return nil, nil
	}

	if tokenBudget <= 0 {
		tokenBudget = 4000
	}
	conv := domain.Conversation{
		ID:             uuid.NewString(),
		Participants:   []string{p1, p2},
		CurrentSpeaker: p1,
		Topic:          topic,
		TokenBudget:    tokenBudget,
		ContinueScore:  100,
		StartedAt:      now,
	}
	if err := e.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	return &conv, nil
}

// turnSetup bundles what steps 1-4 of the turn loop establish before
// content generation, shared by ProcessTurn and ProcessTurnStream.
type turnSetup struct {
	conv          *domain.Conversation
	speaker       *domain.Persona
	other         *domain.Persona
	otherID       string
	rel           *domain.Relationship
	continueScore int
	responseType  domain.ResponseType
	constraints   llm.Constraints
	speakerState  *domain.EmotionalState
	prompt        string
}

func (e *Engine) prepareTurn(ctx context.Context, conversationID, speakerID string, start time.Time) (*turnSetup, error) {
	conv, err := e.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: conversation %s not found", domain.ErrNotFound, conversationID)
	}

	speaker, err := e.personas.Get(ctx, speakerID)
	if err != nil {
		return nil, fmt.Errorf("%w: speaker %s not found", domain.ErrNotFound, speakerID)
	}
	otherID := otherParticipant(conv.Participants, speakerID)
	var other *domain.Persona
	if otherID != "" {
		other, err = e.personas.Get(ctx, otherID)
		if err != nil {
			return nil, fmt.Errorf("%w: listener %s not found", domain.ErrNotFound, otherID)
		}
	}

	rel, _ := e.relationships.GetOrCreate(ctx, speakerID, otherID, start)

	breakdown := e.scorer.Score(scoring.Input{
		Speaker:         speaker,
		Other:           other,
		DurationSeconds: conv.Duration,
		TopicDriftCount: conv.TopicDriftCount,
		Relationship:    rel,
		TokenBudget:     conv.TokenBudget - conv.TokensUsed,
	})
	continueScore := breakdown.Total

	responseType, constraints := SelectTier(continueScore)
	speakerState, err := e.emotional.Get(ctx, speakerID)
	if err != nil || speakerState == nil {
		fresh := domain.DefaultEmotionalState(speakerID, start)
		speakerState = &fresh
	}

	prompt := PromptBuilder{}.Build(speaker, speakerState, conv.Topic, conv.TurnCount+1, constraints)

	return &turnSetup{
		conv: conv, speaker: speaker, other: other, otherID: otherID, rel: rel,
		continueScore: continueScore, responseType: responseType, constraints: constraints,
		speakerState: speakerState, prompt: prompt,
	}, nil
}

// ProcessTurn runs the ten-step turn loop described in §4.5.
func (e *Engine) ProcessTurn(ctx context.Context, conversationID, speakerID, inputText string) (*domain.ConversationTurn, error) {
	start := time.Now()

	setup, err := e.prepareTurn(ctx, conversationID, speakerID, start)
	if err != nil {
		return nil, err
	}

	responseType := setup.responseType
	var content string
	if responseType == domain.ResponseTemplate {
		content = llm.Fallback(setup.speaker.Interaction.CurrentPriority, setup.speaker.Interaction.SocialEnergy)
	} else {
		content, err = e.gateway.Generate(ctx, llm.Request{SystemPrompt: setup.prompt, UserInput: inputText, Constraints: setup.constraints})
		if err != nil {
			e.logger.Warn("llm generate failed, using fallback", zap.Error(err))
			content = llm.Fallback(setup.speaker.Interaction.CurrentPriority, setup.speaker.Interaction.SocialEnergy)
			responseType = domain.ResponseTemplate
		}
	}

	return e.commitTurn(ctx, setup, conversationID, speakerID, content, responseType, start)
}

// ProcessTurnStream runs the same ten-step loop as ProcessTurn but streams
// the full_llm/constrained tiers' generation chunk by chunk via onChunk,
// used by the chat_stream method. Template-tier turns emit one synthetic
// chunk carrying the whole fallback line.
func (e *Engine) ProcessTurnStream(ctx context.Context, conversationID, speakerID, inputText string, onChunk func(text string, chunkNumber int, done bool)) (*domain.ConversationTurn, error) {
	start := time.Now()

	setup, err := e.prepareTurn(ctx, conversationID, speakerID, start)
	if err != nil {
		return nil, err
	}

	responseType := setup.responseType
	var content strings.Builder
	chunkNumber := 0

	if responseType == domain.ResponseTemplate {
		text := llm.Fallback(setup.speaker.Interaction.CurrentPriority, setup.speaker.Interaction.SocialEnergy)
		content.WriteString(text)
		chunkNumber++
		onChunk(text, chunkNumber, true)
	} else {
		chunks, err := e.gateway.GenerateStream(ctx, llm.Request{SystemPrompt: setup.prompt, UserInput: inputText, Constraints: setup.constraints})
		if err != nil {
			e.logger.Warn("llm generate_stream failed, using fallback", zap.Error(err))
			text := llm.Fallback(setup.speaker.Interaction.CurrentPriority, setup.speaker.Interaction.SocialEnergy)
			content.WriteString(text)
			chunkNumber++
			onChunk(text, chunkNumber, true)
			responseType = domain.ResponseTemplate
		} else {
			for chunk := range chunks {
				if chunk.Error != nil {
					e.logger.Warn("stream chunk error", zap.Error(chunk.Error))
					continue
				}
				if chunk.Text != "" {
					content.WriteString(chunk.Text)
					chunkNumber++
					onChunk(chunk.Text, chunkNumber, chunk.Done)
				}
			}
		}
	}

	return e.commitTurn(ctx, setup, conversationID, speakerID, content.String(), responseType, start)
}

// commitTurn applies steps 5-10 of §4.5's loop once the turn's content is
// known, shared by the non-streaming and streaming turn paths.
func (e *Engine) commitTurn(ctx context.Context, setup *turnSetup, conversationID, speakerID, content string, responseType domain.ResponseType, start time.Time) (*domain.ConversationTurn, error) {
	conv := setup.conv
	speaker := setup.speaker
	other := setup.other
	otherID := setup.otherID
	rel := setup.rel
	continueScore := setup.continueScore
	speakerState := setup.speakerState

	// 5. Estimate tokens used; build Turn.
	tierMultiplier := tierTokenMultiplier(responseType)
	wordCount := len(strings.Fields(content))
	tokensUsed := int(math.Round(float64(wordCount) * 1.3 * tierMultiplier))
	processingTime := time.Since(start)

	turn := domain.ConversationTurn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SpeakerID:      speakerID,
		TurnNumber:     conv.TurnCount + 1,
		Content:        content,
		ResponseType:   responseType,
		ContinueScore:  continueScore,
		TokensUsed:     tokensUsed,
		ProcessingTime: processingTime,
		CreatedAt:      start,
	}

	// 6. Update ConversationContext.
	turnDuration := math.Max(30, processingTime.Seconds())
	conv.Duration += turnDuration
	conv.TokensUsed += tokensUsed
	conv.TurnCount++
	conv.ContinueScore = continueScore
	conv.ScoreHistory = append(conv.ScoreHistory, continueScore)
	conv.CurrentSpeaker = otherID

	// 7. Apply interaction effects; update relationship.
	resilience := emotion.Resilience(speaker.PersonalityTraits)
	emotion.ApplyInteractionEffect(speakerState, continueScore, resilience, start)
	speaker.Interaction.InteractionFatigue += turnDuration / 60.0
	speaker.Interaction.AvailableTime = math.Max(0, speaker.Interaction.AvailableTime-turnDuration)
	speaker.Interaction.SocialEnergy = math.Max(0, speaker.Interaction.SocialEnergy-float64(tokensUsed)/50.0)
	if err := e.emotional.Upsert(ctx, *speakerState); err != nil {
		e.logger.Warn("persist speaker emotional state failed", zap.Error(err))
	}

	if other != nil {
		listenerState, err := e.emotional.Get(ctx, otherID)
		if err != nil || listenerState == nil {
			fresh := domain.DefaultEmotionalState(otherID, start)
			listenerState = &fresh
		}
		listenerResilience := emotion.Resilience(other.PersonalityTraits)
		emotion.ApplyInteractionEffect(listenerState, continueScore, listenerResilience, start)
		other.Interaction.InteractionFatigue += turnDuration / 120.0
		other.Interaction.AvailableTime = math.Max(0, other.Interaction.AvailableTime-turnDuration/2)
		other.Interaction.SocialEnergy = math.Max(0, other.Interaction.SocialEnergy-float64(tokensUsed)/100.0)
		if err := e.emotional.Upsert(ctx, *listenerState); err != nil {
			e.logger.Warn("persist listener emotional state failed", zap.Error(err))
		}

		positive := continueScore >= 60
		significance := math.Min(0.1, float64(continueScore)/1000.0)
		quality := significance
		if !positive {
			quality = -significance
		}
		if _, err := e.relationships.ProcessInteraction(ctx, relationship.ProcessInteractionInput{
			PersonaA:        speakerID,
			PersonaB:        otherID,
			Quality:         quality,
			DurationMinutes: turnDuration / 60.0,
			Context:         relationship.ContextCasual,
			Summary:         content,
		}, start); err != nil {
			e.logger.Warn("process_interaction failed", zap.Error(err))
		}
	}

	// 8. Store two memory records.
	valence := (float64(continueScore) - 50) / 50
	if _, err := e.memories.Store(ctx, memory.StoreInput{
		PersonaID:        speakerID,
		Content:          content,
		Type:             domain.MemoryConversation,
		EmotionalValence: valence,
		RelatedPersonas:  nonEmpty(otherID),
		Visibility:       domain.VisibilityPrivate,
		ScoringContext: importance.Context{
			Speaker:          speaker,
			ContinueScore:    continueScore,
			TurnWordCount:    wordCount,
			Relationship:     rel,
			TopicPreferences: speaker.TopicPreferences,
		},
	}); err != nil {
		e.logger.Warn("store speaker memory failed", zap.Error(err))
	}
	if other != nil {
		listenerImportance := importance.Score(content, importance.Context{
			Speaker:          other,
			ContinueScore:    continueScore,
			TurnWordCount:    wordCount,
			Relationship:     rel,
			TopicPreferences: other.TopicPreferences,
		}) * 0.8
		if _, err := e.memories.Store(ctx, memory.StoreInput{
			PersonaID:        otherID,
			Content:          content,
			Type:             domain.MemoryConversation,
			Importance:       &listenerImportance,
			EmotionalValence: valence,
			RelatedPersonas:  nonEmpty(speakerID),
			Visibility:       domain.VisibilityPrivate,
		}); err != nil {
			e.logger.Warn("store listener memory failed", zap.Error(err))
		}
	}

	// 9. Persist turn, conversation, personas.
	if err := e.conversations.AppendTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	if err := e.conversations.Save(ctx, *conv); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	if err := e.personas.SaveInteractionState(ctx, speaker.Interaction); err != nil {
		e.logger.Warn("save speaker interaction state failed", zap.Error(err))
	}
	if other != nil {
		if err := e.personas.SaveInteractionState(ctx, other.Interaction); err != nil {
			e.logger.Warn("save listener interaction state failed", zap.Error(err))
		}
	}

	// 10. End if no longer worth continuing.
	if !conv.ShouldContinue() || continueScore < 40 {
		if err := e.End(ctx, conv, "natural_conclusion", start); err != nil {
			e.logger.Warn("auto-end conversation failed", zap.Error(err))
		}
	}

	return &turn, nil
}

// End terminates a conversation and applies the cooldown formula to both
// participants: base 300s scaled by final continue_score, then by
// fatigue.
func (e *Engine) End(ctx context.Context, conv *domain.Conversation, reason string, now time.Time) error {
	conv.ExitReason = reason
	ended := now
	conv.EndedAt = &ended

	cooldown := 300.0
	switch {
	case conv.ContinueScore > 70:
		cooldown *= 0.6
	case conv.ContinueScore < 40:
		cooldown *= 1.5
	}

	for _, pid := range conv.Participants {
		p, err := e.personas.Get(ctx, pid)
		if err != nil {
			continue
		}
		scaled := cooldown * (1 + p.Interaction.InteractionFatigue/100.0)
		p.Interaction.CooldownUntil = now.Add(time.Duration(scaled) * time.Second)
		if err := e.personas.SaveInteractionState(ctx, p.Interaction); err != nil {
			e.logger.Warn("save cooldown failed", zap.Error(err), zap.String("persona_id", pid))
		}
	}

	return e.conversations.Save(ctx, *conv)
}

// SelectTier implements §4.4's tier table.
func SelectTier(continueScore int) (domain.ResponseType, llm.Constraints) {
	switch {
	case continueScore >= 80:
		return domain.ResponseFullLLM, llm.Constraints{Creativity: 0.8, MaxLength: 100}
	case continueScore >= 60:
		return domain.ResponseFullLLM, llm.Constraints{Creativity: 0.6, MaxLength: 100}
	case continueScore >= 40:
		return domain.ResponseConstrained, llm.Constraints{MaxLength: 50, Concise: true, PrepareExit: true}
	default:
		return domain.ResponseTemplate, llm.Constraints{}
	}
}

func tierTokenMultiplier(t domain.ResponseType) float64 {
	switch t {
	case domain.ResponseFullLLM:
		return 1.5
	case domain.ResponseConstrained:
		return 1.0
	default:
		return 0.1
	}
}

func otherParticipant(participants []string, id string) string {
	for _, p := range participants {
		if p != id {
			return p
		}
	}
	return ""
}

func nonEmpty(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}
