// cmd/simulate is a standalone self-play driver: it seeds two personas,
// runs a scripted multi-turn conversation between them through
// the same conversation engine the dispatcher uses, and prints the
// resulting transcript plus the final relationship and engagement state.
// Grounded on the teacher's cmd/cli_chat entrypoint shape (load env, wire
// repositories directly against a store, drive the domain service from a
// small main loop) adapted from its interactive questionnaire+REPL onto a
// fixed scripted run with no stdin.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/config"
	"github.com/saltydev0331/persona-mcp-sub000/internal/conversation"
	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
	"github.com/saltydev0331/persona-mcp-sub000/internal/llm"
	"github.com/saltydev0331/persona-mcp-sub000/internal/memory"
	"github.com/saltydev0331/persona-mcp-sub000/internal/relationship"
	"github.com/saltydev0331/persona-mcp-sub000/internal/scoring"
	"github.com/saltydev0331/persona-mcp-sub000/internal/store"
	"github.com/saltydev0331/persona-mcp-sub000/internal/vectorstore"
)

// script is one scripted opening line a persona contributes on its turn;
// turns after the script run the gateway on the prior turn's content.
var script = []string{
	"Have you given any more thought to the proposal we discussed?",
	"I have, though I keep circling back to the resourcing question.",
	"That's fair. What would it take to get you comfortable with it?",
}

func main() {
	turns := flag.Int("turns", 8, "number of conversation turns to run")
	topic := flag.String("topic", "the quarterly roadmap", "conversation topic")
	dbPath := flag.String("db", "", "override the configured sqlite path (defaults to an ephemeral file)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *dbPath != "" {
		cfg.Database.SQLitePath = *dbPath
	} else {
		cfg.Database.SQLitePath = filepath.Join(os.TempDir(), fmt.Sprintf("persona-simulate-%s.db", uuid.NewString()))
	}

	logger := zap.NewNop()

	db, err := store.Open(cfg.Database.SQLitePath, cfg.Database.EnableWAL)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer db.Close()
	if *dbPath == "" {
		defer os.Remove(cfg.Database.SQLitePath)
	}

	personaRepo := store.NewSQLitePersonaRepository(db)
	relationshipRepo := store.NewSQLiteRelationshipRepository(db)
	emotionalRepo := store.NewSQLiteEmotionalStateRepository(db)
	conversationRepo := store.NewSQLiteConversationRepository(db)
	memoryRepo := store.NewSQLiteMemoryRepository(db)

	gateway := &llm.MockGateway{Response: "That's an interesting point, let me think about it for a moment."}
	vectors := vectorstore.New(memoryRepo, gateway)
	scorer := scoring.NewEngine(cfg.Conversation)
	memories := memory.NewManager(memoryRepo, vectors, gateway, logger)
	relationships := relationship.NewManager(relationshipRepo, personaRepo, logger)
	engine := conversation.NewEngine(personaRepo, emotionalRepo, conversationRepo, scorer, gateway, memories, relationships, logger)

	ctx := context.Background()
	now := time.Now()

	alex := seedPersona(ctx, personaRepo, "Alex", "A pragmatic product lead who weighs tradeoffs out loud.",
		map[string]float64{"conscientiousness": 0.8, "extraversion": 0.6, "agreeableness": 0.5},
		map[string]float64{"the quarterly roadmap": 80, "budgets": 60}, 14, 15, "senior", now)
	priya := seedPersona(ctx, personaRepo, "Priya", "A skeptical engineering lead who pushes back on scope creep.",
		map[string]float64{"conscientiousness": 0.9, "extraversion": 0.3, "neuroticism": 0.4},
		map[string]float64{"the quarterly roadmap": 70, "architecture": 85}, 10, 18, "senior", now)

	conv, err := engine.Initiate(ctx, alex.ID, priya.ID, *topic, 1800, 6000, now)
	if err != nil {
		log.Fatalf("initiating conversation: %v", err)
	}
	if conv == nil {
		log.Fatal("personas are not available to converse right now")
	}

	fmt.Printf("=== conversation %s: %s and %s on %q ===\n\n", conv.ID, alex.Name, priya.Name, *topic)

	speakers := []string{alex.ID, priya.ID}
	names := map[string]string{alex.ID: alex.Name, priya.ID: priya.Name}

	lastContent := ""
	for i := 0; i < *turns; i++ {
		speaker := speakers[i%2]
		input := lastContent
		if i < len(script) {
			input = script[i]
		}

		turn, err := engine.ProcessTurn(ctx, conv.ID, speaker, input)
		if err != nil {
			fmt.Printf("[turn %d] %s: error: %v\n", i+1, names[speaker], err)
			break
		}

		fmt.Printf("[turn %d] %s (%s, score=%d): %s\n", turn.TurnNumber, names[speaker], turn.ResponseType, turn.ContinueScore, turn.Content)
		lastContent = turn.Content

		conv, err = conversationRepo.Get(ctx, conv.ID)
		if err != nil {
			log.Fatalf("reloading conversation: %v", err)
		}
		if conv.EndedAt != nil {
			fmt.Printf("\nconversation ended: %s\n", conv.ExitReason)
			break
		}
	}

	printFinalState(ctx, relationships, alex.ID, priya.ID)
}

func seedPersona(ctx context.Context, repo *store.SQLitePersonaRepository, name, description string, traits, topics map[string]float64, charisma, intelligence int, rank string, now time.Time) *domain.Persona {
	p := &domain.Persona{
		ID:                uuid.NewString(),
		Name:              name,
		Description:       description,
		PersonalityTraits: traits,
		TopicPreferences:  topics,
		Charisma:          charisma,
		Intelligence:      intelligence,
		SocialRank:        rank,
		CreatedAt:         now,
		Interaction: domain.InteractionState{
			InterestLevel:   70,
			AvailableTime:   3600,
			SocialEnergy:    150,
			CurrentPriority: domain.PriorityCasual,
			LastUpdated:     now,
		},
	}
	if err := repo.Create(ctx, p); err != nil {
		log.Fatalf("creating persona %s: %v", name, err)
	}
	p.Interaction.PersonaID = p.ID
	if err := repo.SaveInteractionState(ctx, p.Interaction); err != nil {
		log.Fatalf("saving interaction state for %s: %v", name, err)
	}
	return p
}

func printFinalState(ctx context.Context, relationships *relationship.Manager, a, b string) {
	rel, err := relationships.GetOrCreate(ctx, a, b, time.Now())
	if err != nil {
		fmt.Printf("\ncould not load final relationship state: %v\n", err)
		return
	}
	fmt.Printf("\n--- final relationship state ---\n")
	fmt.Printf("type=%s affinity=%.2f trust=%.2f respect=%.2f intimacy=%.2f interactions=%d\n",
		rel.RelationshipType, rel.Affinity, rel.Trust, rel.Respect, rel.Intimacy, rel.InteractionCount)
}
