// Method table registration: wires every manager built in internal/* to
// the JSON-RPC method names named in §4.9. Kept in its own file from
// dispatcher.go's generic routing engine, mirroring the teacher's
// separation between its router and its handler implementations.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saltydev0331/persona-mcp-sub000/internal/conversation"
	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
	"github.com/saltydev0331/persona-mcp-sub000/internal/llm"
	"github.com/saltydev0331/persona-mcp-sub000/internal/memory"
	"github.com/saltydev0331/persona-mcp-sub000/internal/relationship"
	"github.com/saltydev0331/persona-mcp-sub000/internal/session"
)

// Services bundles every subsystem the method table dispatches into.
type Services struct {
	Personas      PersonaService
	Conversations *conversation.Engine
	ConvStore     conversation.ConversationStore
	Memories      *memory.Manager
	Relationships *relationship.Manager
	Emotional     conversation.EmotionalStore
	Sessions      *session.Manager
	Decay         DecayService
	Gateway       llm.Gateway
}

// PersonaService is the subset of persona CRUD the dispatcher needs;
// cmd/server passes its store.SQLitePersonaRepository in directly.
type PersonaService interface {
	Create(ctx context.Context, p *domain.Persona) error
	Get(ctx context.Context, id string) (*domain.Persona, error)
	List(ctx context.Context) ([]*domain.Persona, error)
	Delete(ctx context.Context, id string) error
}

// DecayService exposes the operator-facing decay/prune surface.
type DecayService interface {
	Stats() any
	Start(interval time.Duration)
	Stop()
	ForcePersona(ctx context.Context, personaID string, k float64) (decayed, pruned int, err error)
}

// RegisterAll wires the full §4.9 method table onto d, including the
// streaming persona.chat_stream method.
func RegisterAll(d *Dispatcher, svc Services, connectionID func(ctx context.Context) string) {
	d.Register("persona.list", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return svc.Personas.List(ctx)
	})

	d.Register("persona.create", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p domain.Persona
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInputInvalid, err)
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Name == "" {
			return nil, fmt.Errorf("%w: name is required", domain.ErrInputInvalid)
		}
		p.CreatedAt = time.Now()
		if err := svc.Personas.Create(ctx, &p); err != nil {
			return nil, err
		}
		return p, nil
	})

	d.Register("persona.delete", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string `json:"persona_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" {
			return nil, fmt.Errorf("%w: persona_id is required", domain.ErrInputInvalid)
		}
		if err := svc.Memories.DeletePersonaMemories(ctx, in.PersonaID); err != nil {
			return nil, err
		}
		if err := svc.Personas.Delete(ctx, in.PersonaID); err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": true}, nil
	})

	d.Register("persona.status", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string `json:"persona_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" {
			return nil, fmt.Errorf("%w: persona_id is required", domain.ErrInputInvalid)
		}
		p, err := svc.Personas.Get(ctx, in.PersonaID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"persona_id": p.ID,
			"available":  p.Interaction.IsAvailable(time.Now()),
			"fatigue":    p.Interaction.InteractionFatigue,
			"priority":   p.Interaction.CurrentPriority,
		}, nil
	})

	d.Register("persona.switch", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string `json:"persona_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" {
			return nil, fmt.Errorf("%w: persona_id is required", domain.ErrInputInvalid)
		}
		if _, err := svc.Personas.Get(ctx, in.PersonaID); err != nil {
			return nil, err
		}
		svc.Sessions.SetCurrentPersona(connectionID(ctx), in.PersonaID)
		return map[string]string{"current_persona_id": in.PersonaID}, nil
	})

	d.Register("persona.chat", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			ConversationID string `json:"conversation_id"`
			PersonaID      string `json:"persona_id"`
			Message        string `json:"message"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.ConversationID == "" || in.Message == "" {
			return nil, fmt.Errorf("%w: conversation_id and message are required", domain.ErrInputInvalid)
		}
		turn, err := svc.Conversations.ProcessTurn(ctx, in.ConversationID, in.PersonaID, in.Message)
		if err != nil {
			return nil, err
		}
		svc.Sessions.IncrementTurnCount(connectionID(ctx), in.PersonaID, time.Now())
		return turn, nil
	})

	d.Register("conversation.start", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			Persona1    string  `json:"persona1_id"`
			Persona2    string  `json:"persona2_id"`
			Topic       string  `json:"topic"`
			MaxDuration float64 `json:"max_duration_seconds"`
			TokenBudget int     `json:"token_budget"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.Persona1 == "" || in.Persona2 == "" {
			return nil, fmt.Errorf("%w: persona1_id and persona2_id are required", domain.ErrInputInvalid)
		}
		conv, err := svc.Conversations.Initiate(ctx, in.Persona1, in.Persona2, in.Topic, in.MaxDuration, in.TokenBudget, time.Now())
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, fmt.Errorf("%w: a participant is unavailable", domain.ErrUnavailable)
		}
		svc.Sessions.GetOrCreateConversationSession(connectionID(ctx), in.Persona1, conv.ID, time.Now())
		return conv, nil
	})

	d.Register("memory.search", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID     string  `json:"persona_id"`
			Query         string  `json:"query"`
			K             int     `json:"k"`
			MinImportance float64 `json:"min_importance"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" || in.Query == "" {
			return nil, fmt.Errorf("%w: persona_id and query are required", domain.ErrInputInvalid)
		}
		if in.K <= 0 {
			in.K = 10
		}
		return svc.Memories.Search(ctx, in.PersonaID, in.Query, in.K, in.MinImportance)
	})

	d.Register("memory.search_cross_persona", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			RequesterID   string  `json:"requester_id"`
			Query         string  `json:"query"`
			K             int     `json:"k"`
			MinImportance float64 `json:"min_importance"`
			IncludeShared bool    `json:"include_shared"`
			IncludePublic bool    `json:"include_public"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.RequesterID == "" || in.Query == "" {
			return nil, fmt.Errorf("%w: requester_id and query are required", domain.ErrInputInvalid)
		}
		if in.K <= 0 {
			in.K = 10
		}
		return svc.Memories.SearchCrossPersona(ctx, in.RequesterID, in.Query, in.K, in.MinImportance, in.IncludeShared, in.IncludePublic)
	})

	d.Register("memory.store", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID        string            `json:"persona_id"`
			Content          string            `json:"content"`
			Type             string            `json:"type"`
			Importance       *float64          `json:"importance"`
			EmotionalValence float64           `json:"emotional_valence"`
			RelatedPersonas  []string          `json:"related_personas"`
			Visibility       string            `json:"visibility"`
			Metadata         map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" || in.Content == "" {
			return nil, fmt.Errorf("%w: persona_id and content are required", domain.ErrInputInvalid)
		}
		return svc.Memories.Store(ctx, memory.StoreInput{
			PersonaID:        in.PersonaID,
			Content:          in.Content,
			Type:             domain.MemoryType(in.Type),
			Importance:       in.Importance,
			EmotionalValence: in.EmotionalValence,
			RelatedPersonas:  in.RelatedPersonas,
			Visibility:       domain.Visibility(in.Visibility),
			Metadata:         in.Metadata,
		})
	})

	d.Register("memory.stats", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string `json:"persona_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" {
			return nil, fmt.Errorf("%w: persona_id is required", domain.ErrInputInvalid)
		}
		return svc.Memories.Stats(ctx, in.PersonaID)
	})

	d.Register("memory.prune", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string `json:"persona_id"`
			Cap       int    `json:"cap"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" || in.Cap <= 0 {
			return nil, fmt.Errorf("%w: persona_id and a positive cap are required", domain.ErrInputInvalid)
		}
		evicted, err := svc.Memories.Prune(ctx, in.PersonaID, in.Cap)
		if err != nil {
			return nil, err
		}
		return map[string]int{"evicted": evicted}, nil
	})

	d.Register("memory.prune_recommendations", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string `json:"persona_id"`
			Cap       int    `json:"cap"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" || in.Cap <= 0 {
			return nil, fmt.Errorf("%w: persona_id and a positive cap are required", domain.ErrInputInvalid)
		}
		return svc.Memories.PruneRecommendations(ctx, in.PersonaID, in.Cap)
	})

	d.Register("memory.decay_force", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string  `json:"persona_id"`
			Factor    float64 `json:"factor"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" {
			return nil, fmt.Errorf("%w: persona_id is required", domain.ErrInputInvalid)
		}
		decayed, pruned, err := svc.Decay.ForcePersona(ctx, in.PersonaID, in.Factor)
		if err != nil {
			return nil, err
		}
		return map[string]int{"decayed": decayed, "pruned": pruned}, nil
	})

	d.Register("memory.decay_start", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			IntervalSeconds int `json:"interval_seconds"`
		}
		json.Unmarshal(params, &in)
		interval := time.Hour
		if in.IntervalSeconds > 0 {
			interval = time.Duration(in.IntervalSeconds) * time.Second
		}
		svc.Decay.Start(interval)
		return map[string]bool{"started": true}, nil
	})

	d.Register("memory.decay_stop", func(ctx context.Context, _ json.RawMessage) (any, error) {
		svc.Decay.Stop()
		return map[string]bool{"stopped": true}, nil
	})

	d.Register("memory.decay_stats", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return svc.Decay.Stats(), nil
	})

	d.Register("relationship.get", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			Persona1 string `json:"persona1_id"`
			Persona2 string `json:"persona2_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.Persona1 == "" || in.Persona2 == "" {
			return nil, fmt.Errorf("%w: persona1_id and persona2_id are required", domain.ErrInputInvalid)
		}
		return svc.Relationships.GetOrCreate(ctx, in.Persona1, in.Persona2, time.Now())
	})

	d.Register("relationship.list", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string `json:"persona_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" {
			return nil, fmt.Errorf("%w: persona_id is required", domain.ErrInputInvalid)
		}
		return svc.Relationships.List(ctx, in.PersonaID)
	})

	d.Register("relationship.compatibility", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			Persona1 string `json:"persona1_id"`
			Persona2 string `json:"persona2_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.Persona1 == "" || in.Persona2 == "" {
			return nil, fmt.Errorf("%w: persona1_id and persona2_id are required", domain.ErrInputInvalid)
		}
		return svc.Relationships.GetCompatibilityScore(ctx, in.Persona1, in.Persona2)
	})

	d.Register("relationship.update", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			Persona1        string  `json:"persona1_id"`
			Persona2        string  `json:"persona2_id"`
			Quality         float64 `json:"quality"`
			DurationMinutes float64 `json:"duration_minutes"`
			Context         string  `json:"context"`
			Summary         string  `json:"summary"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.Persona1 == "" || in.Persona2 == "" {
			return nil, fmt.Errorf("%w: persona1_id and persona2_id are required", domain.ErrInputInvalid)
		}
		return svc.Relationships.ProcessInteraction(ctx, relationship.ProcessInteractionInput{
			PersonaA:        in.Persona1,
			PersonaB:        in.Persona2,
			Quality:         in.Quality,
			DurationMinutes: in.DurationMinutes,
			Context:         relationship.InteractionContext(in.Context),
			Summary:         in.Summary,
		}, time.Now())
	})

	d.Register("conversation.end", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			ConversationID string `json:"conversation_id"`
			Reason         string `json:"reason"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.ConversationID == "" {
			return nil, fmt.Errorf("%w: conversation_id is required", domain.ErrInputInvalid)
		}
		conv, err := svc.ConvStore.Get(ctx, in.ConversationID)
		if err != nil {
			return nil, err
		}
		reason := in.Reason
		if reason == "" {
			reason = "operator_requested"
		}
		if err := svc.Conversations.End(ctx, conv, reason, time.Now()); err != nil {
			return nil, err
		}
		return conv, nil
	})

	d.Register("conversation.status", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			ConversationID string `json:"conversation_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.ConversationID == "" {
			return nil, fmt.Errorf("%w: conversation_id is required", domain.ErrInputInvalid)
		}
		return svc.ConvStore.Get(ctx, in.ConversationID)
	})

	d.Register("persona.memory", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string `json:"persona_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" {
			return nil, fmt.Errorf("%w: persona_id is required", domain.ErrInputInvalid)
		}
		return svc.Memories.Stats(ctx, in.PersonaID)
	})

	d.Register("persona.relationship", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			Persona1 string `json:"persona1_id"`
			Persona2 string `json:"persona2_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.Persona1 == "" || in.Persona2 == "" {
			return nil, fmt.Errorf("%w: persona1_id and persona2_id are required", domain.ErrInputInvalid)
		}
		return svc.Relationships.GetOrCreate(ctx, in.Persona1, in.Persona2, time.Now())
	})

	d.Register("emotional.get_state", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string `json:"persona_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" {
			return nil, fmt.Errorf("%w: persona_id is required", domain.ErrInputInvalid)
		}
		return svc.Emotional.Get(ctx, in.PersonaID)
	})

	d.Register("emotional.update_state", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in domain.EmotionalState
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" {
			return nil, fmt.Errorf("%w: persona_id is required", domain.ErrInputInvalid)
		}
		in.LastUpdated = time.Now()
		if err := svc.Emotional.Upsert(ctx, in); err != nil {
			return nil, err
		}
		return in, nil
	})

	d.Register("state.save", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string            `json:"persona_id"`
			Bag       map[string]string `json:"context"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" {
			return nil, fmt.Errorf("%w: persona_id is required", domain.ErrInputInvalid)
		}
		svc.Sessions.UpdateContext(connectionID(ctx), in.PersonaID, in.Bag, time.Now())
		return map[string]bool{"saved": true}, nil
	})

	d.Register("state.load", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			PersonaID string `json:"persona_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.PersonaID == "" {
			return nil, fmt.Errorf("%w: persona_id is required", domain.ErrInputInvalid)
		}
		cs := svc.Sessions.GetOrCreateConversationSession(connectionID(ctx), in.PersonaID, "", time.Now())
		return cs, nil
	})

	d.Register("visual.update", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in map[string]any
		if err := json.Unmarshal(params, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInputInvalid, err)
		}
		// No visual/avatar subsystem is modeled server-side; acknowledged
		// so clients can drive their own rendering off the same event.
		return map[string]bool{"acknowledged": true}, nil
	})

	d.Register("system.status", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return map[string]any{"status": "ok", "time": time.Now()}, nil
	})

	d.Register("system.models", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return map[string]bool{"available": svc.Gateway != nil}, nil
	})

	d.Register("memory.prune_all", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			Cap int `json:"cap"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.Cap <= 0 {
			return nil, fmt.Errorf("%w: a positive cap is required", domain.ErrInputInvalid)
		}
		personas, err := svc.Personas.List(ctx)
		if err != nil {
			return nil, err
		}
		totalEvicted := 0
		perPersona := make(map[string]int, len(personas))
		for _, p := range personas {
			evicted, err := svc.Memories.Prune(ctx, p.ID, in.Cap)
			if err != nil {
				return nil, err
			}
			perPersona[p.ID] = evicted
			totalEvicted += evicted
		}
		return map[string]any{"total_evicted": totalEvicted, "by_persona": perPersona}, nil
	})

	d.Register("memory.prune_stats", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			Cap int `json:"cap"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.Cap <= 0 {
			return nil, fmt.Errorf("%w: a positive cap is required", domain.ErrInputInvalid)
		}
		personas, err := svc.Personas.List(ctx)
		if err != nil {
			return nil, err
		}
		candidates := make(map[string]int, len(personas))
		total := 0
		for _, p := range personas {
			recs, err := svc.Memories.PruneRecommendations(ctx, p.ID, in.Cap)
			if err != nil {
				return nil, err
			}
			candidates[p.ID] = len(recs)
			total += len(recs)
		}
		return map[string]any{"total_candidates": total, "by_persona": candidates}, nil
	})

	d.Register("memory.shared_stats", func(ctx context.Context, _ json.RawMessage) (any, error) {
		personas, err := svc.Personas.List(ctx)
		if err != nil {
			return nil, err
		}
		sharedCount, publicCount := 0, 0
		for _, p := range personas {
			mems, err := svc.Memories.ListByPersona(ctx, p.ID)
			if err != nil {
				continue
			}
			for _, m := range mems {
				switch m.Visibility {
				case domain.VisibilityShared:
					sharedCount++
				case domain.VisibilityPublic:
					publicCount++
				}
			}
		}
		return map[string]int{"shared": sharedCount, "public": publicCount}, nil
	})

	d.Register("relationship.stats", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in struct {
			Persona1 string `json:"persona1_id"`
			Persona2 string `json:"persona2_id"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.Persona1 == "" || in.Persona2 == "" {
			return nil, fmt.Errorf("%w: persona1_id and persona2_id are required", domain.ErrInputInvalid)
		}
		rel, err := svc.Relationships.GetOrCreate(ctx, in.Persona1, in.Persona2, time.Now())
		if err != nil {
			return nil, err
		}
		strength, err := svc.Relationships.GetRelationshipStrength(ctx, in.Persona1, in.Persona2)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"relationship_type": rel.RelationshipType,
			"strength":          strength,
			"interaction_count": rel.InteractionCount,
			"last_interaction":  rel.LastInteraction,
		}, nil
	})

	d.RegisterStream("persona.chat_stream", func(ctx context.Context, params json.RawMessage, streamID string, emit func(StreamEvent)) error {
		var in struct {
			ConversationID string `json:"conversation_id"`
			PersonaID      string `json:"persona_id"`
			Message        string `json:"message"`
		}
		if err := json.Unmarshal(params, &in); err != nil || in.ConversationID == "" || in.Message == "" {
			return fmt.Errorf("%w: conversation_id and message are required", domain.ErrInputInvalid)
		}

		var totalLength int
		turn, err := svc.Conversations.ProcessTurnStream(ctx, in.ConversationID, in.PersonaID, in.Message, func(text string, chunkNumber int, done bool) {
			totalLength += len(text)
			emit(StreamEvent{
				EventType:   EventStreamChunk,
				StreamID:    streamID,
				Timestamp:   time.Now(),
				PersonaID:   in.PersonaID,
				Chunk:       text,
				ChunkNumber: chunkNumber,
				TotalLength: totalLength,
			})
		})
		if err != nil {
			return err
		}

		svc.Sessions.IncrementTurnCount(connectionID(ctx), in.PersonaID, time.Now())
		emit(StreamEvent{
			EventType:      EventStreamComplete,
			StreamID:       streamID,
			Timestamp:      time.Now(),
			PersonaID:      in.PersonaID,
			FullResponse:   turn.Content,
			TokensUsed:     turn.TokensUsed,
			ProcessingTime: turn.ProcessingTime.Seconds(),
		})
		return nil
	})
}
