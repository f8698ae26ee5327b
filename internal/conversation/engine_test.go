package conversation

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/config"
	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
	"github.com/saltydev0331/persona-mcp-sub000/internal/llm"
	"github.com/saltydev0331/persona-mcp-sub000/internal/memory"
	"github.com/saltydev0331/persona-mcp-sub000/internal/relationship"
	"github.com/saltydev0331/persona-mcp-sub000/internal/scoring"
	"github.com/saltydev0331/persona-mcp-sub000/internal/vectorstore"
)

// --- fakes satisfying the engine's narrow consumer-side interfaces ---

type fakePersonas struct {
	byID map[string]*domain.Persona
}

func (f *fakePersonas) Get(ctx context.Context, id string) (*domain.Persona, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakePersonas) SaveInteractionState(ctx context.Context, s domain.InteractionState) error {
	if p, ok := f.byID[s.PersonaID]; ok {
		p.Interaction = s
	}
	return nil
}

type fakeEmotional struct {
	byPersona map[string]domain.EmotionalState
}

func (f *fakeEmotional) Get(ctx context.Context, personaID string) (*domain.EmotionalState, error) {
	s, ok := f.byPersona[personaID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (f *fakeEmotional) Upsert(ctx context.Context, s domain.EmotionalState) error {
	f.byPersona[s.PersonaID] = s
	return nil
}

type fakeConversations struct {
	byID map[string]*domain.Conversation
	turns []domain.ConversationTurn
}

func (f *fakeConversations) Create(ctx context.Context, c domain.Conversation) error {
	cp := c
	f.byID[c.ID] = &cp
	return nil
}

func (f *fakeConversations) Save(ctx context.Context, c domain.Conversation) error {
	cp := c
	f.byID[c.ID] = &cp
	return nil
}

func (f *fakeConversations) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConversations) AppendTurn(ctx context.Context, t domain.ConversationTurn) error {
	f.turns = append(f.turns, t)
	return nil
}

type fakeRelRepo struct {
	byPair map[string]domain.Relationship
}

func relKey(a, b string) string {
	pa, pb := domain.CanonicalPair(a, b)
	return pa + "|" + pb
}

func (f *fakeRelRepo) Get(ctx context.Context, a, b string) (*domain.Relationship, error) {
	rel, ok := f.byPair[relKey(a, b)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rel, nil
}

func (f *fakeRelRepo) Upsert(ctx context.Context, rel domain.Relationship) error {
	f.byPair[relKey(rel.PersonaA, rel.PersonaB)] = rel
	return nil
}

func (f *fakeRelRepo) List(ctx context.Context, personaID string) ([]*domain.Relationship, error) {
	return nil, nil
}

func (f *fakeRelRepo) AppendHistory(ctx context.Context, entry domain.InteractionHistoryEntry) error {
	return nil
}

type fakeMemRepo struct {
	byPersona map[string][]domain.Memory
}

func (f *fakeMemRepo) Insert(ctx context.Context, m domain.Memory) error {
	f.byPersona[m.PersonaID] = append(f.byPersona[m.PersonaID], m)
	return nil
}
func (f *fakeMemRepo) Get(ctx context.Context, id string) (*domain.Memory, error) { return nil, domain.ErrNotFound }
func (f *fakeMemRepo) ListByPersona(ctx context.Context, personaID string) ([]domain.Memory, error) {
	return f.byPersona[personaID], nil
}
func (f *fakeMemRepo) ListVisibleTo(ctx context.Context, excludePersonaID string, visibilities []domain.Visibility) ([]domain.Memory, error) {
	return nil, nil
}
func (f *fakeMemRepo) Touch(ctx context.Context, id string, when time.Time) error { return nil }
func (f *fakeMemRepo) UpdateImportance(ctx context.Context, id string, importance float64, decayedAt time.Time) error {
	return nil
}
func (f *fakeMemRepo) Delete(ctx context.Context, id string) error                 { return nil }
func (f *fakeMemRepo) DeleteByPersona(ctx context.Context, personaID string) error { return nil }

// --- test harness ---

func available(now time.Time) domain.InteractionState {
	return domain.InteractionState{
		InterestLevel: 70,
		AvailableTime: 600,
		SocialEnergy:  150,
		CurrentPriority: domain.PriorityCasual,
		LastUpdated:   now,
	}
}

type harness struct {
	engine    *Engine
	personas  *fakePersonas
	emotional *fakeEmotional
	conversations *fakeConversations
	gateway   *llm.MockGateway
}

func newHarness(now time.Time) *harness {
	alex := &domain.Persona{ID: "alex", Name: "Alex", Charisma: 14, SocialRank: "senior", Interaction: available(now)}
	priya := &domain.Persona{ID: "priya", Name: "Priya", Charisma: 12, SocialRank: "senior", Interaction: available(now)}

	personas := &fakePersonas{byID: map[string]*domain.Persona{"alex": alex, "priya": priya}}
	emotional := &fakeEmotional{byPersona: make(map[string]domain.EmotionalState)}
	conversations := &fakeConversations{byID: make(map[string]*domain.Conversation)}
	relRepo := &fakeRelRepo{byPair: make(map[string]domain.Relationship)}
	memRepo := &fakeMemRepo{byPersona: make(map[string][]domain.Memory)}

	gateway := &llm.MockGateway{Response: "That sounds reasonable to me."}
	vectors := vectorstore.New(memRepo, gateway)
	memories := memory.NewManager(memRepo, vectors, gateway, zap.NewNop())
	relationships := relationship.NewManager(relRepo, personas, zap.NewNop())
	scorer := scoring.NewEngine(config.ConversationConfig{
		MaxTimeScore: 30, MaxTopicScore: 25, MaxSocialScore: 20, MaxFatiguePenalty: 15, MaxResourceScore: 10,
		UrgentDecayRate: 60, ImportantDecayRate: 180, CasualDecayRate: 600,
		StatusHierarchy: []string{"junior", "senior"}, SameStatusCompatibility: 10,
	})

	engine := NewEngine(personas, emotional, conversations, scorer, gateway, memories, relationships, zap.NewNop())
	return &harness{engine: engine, personas: personas, emotional: emotional, conversations: conversations, gateway: gateway}
}

func TestInitiate_CreatesConversationBetweenAvailablePersonas(t *testing.T) {
	now := time.Now()
	h := newHarness(now)

	conv, err := h.engine.Initiate(context.Background(), "alex", "priya", "the roadmap", 1800, 4000, now)
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if conv == nil {
		t.Fatal("expected a conversation for two available personas")
	}
	if conv.CurrentSpeaker != "alex" {
		t.Fatalf("expected alex to speak first, got %s", conv.CurrentSpeaker)
	}
	if conv.ContinueScore != 100 {
		t.Fatalf("expected a fresh continue score of 100, got %d", conv.ContinueScore)
	}
}

func TestInitiate_RejectsUnavailablePersona(t *testing.T) {
	now := time.Now()
	h := newHarness(now)
	h.personas.byID["alex"].Interaction.SocialEnergy = 0 // below availability threshold

	conv, err := h.engine.Initiate(context.Background(), "alex", "priya", "topic", 1800, 4000, now)
	if err != nil {
		t.Fatalf("Initiate returned unexpected error: %v", err)
	}
	if conv != nil {
		t.Fatal("expected nil conversation when a participant is unavailable")
	}
}

func TestInitiate_UnknownPersonaFails(t *testing.T) {
	h := newHarness(time.Now())
	_, err := h.engine.Initiate(context.Background(), "alex", "ghost", "topic", 1800, 4000, time.Now())
	if err == nil {
		t.Fatal("expected an error for an unknown participant")
	}
}

func TestProcessTurn_HighScoreProducesFullLLMResponse(t *testing.T) {
	now := time.Now()
	h := newHarness(now)
	conv, err := h.engine.Initiate(context.Background(), "alex", "priya", "topic", 1800, 4000, now)
	if err != nil || conv == nil {
		t.Fatalf("setup: Initiate failed: %v", err)
	}

	turn, err := h.engine.ProcessTurn(context.Background(), conv.ID, "alex", "what do you think?")
	if err != nil {
		t.Fatalf("ProcessTurn returned error: %v", err)
	}
	if turn.ResponseType != domain.ResponseFullLLM {
		t.Fatalf("expected a full_llm response for a fresh high-score conversation, got %s", turn.ResponseType)
	}
	if turn.Content != h.gateway.Response {
		t.Fatalf("expected the gateway's response to be used, got %q", turn.Content)
	}
	if turn.TurnNumber != 1 {
		t.Fatalf("expected turn number 1, got %d", turn.TurnNumber)
	}
}

func TestProcessTurn_GatewayFailureFallsBackToTemplate(t *testing.T) {
	now := time.Now()
	h := newHarness(now)
	h.gateway.Err = context.DeadlineExceeded
	conv, _ := h.engine.Initiate(context.Background(), "alex", "priya", "topic", 1800, 4000, now)

	turn, err := h.engine.ProcessTurn(context.Background(), conv.ID, "alex", "hello")
	if err != nil {
		t.Fatalf("ProcessTurn returned error: %v", err)
	}
	if turn.ResponseType != domain.ResponseTemplate {
		t.Fatalf("expected a template fallback after gateway failure, got %s", turn.ResponseType)
	}
	if turn.Content == "" {
		t.Fatal("expected a non-empty fallback response")
	}
}

func TestProcessTurn_AdvancesConversationState(t *testing.T) {
	now := time.Now()
	h := newHarness(now)
	conv, _ := h.engine.Initiate(context.Background(), "alex", "priya", "topic", 1800, 4000, now)

	if _, err := h.engine.ProcessTurn(context.Background(), conv.ID, "alex", "hi"); err != nil {
		t.Fatalf("ProcessTurn returned error: %v", err)
	}

	updated, err := h.conversations.Get(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if updated.TurnCount != 1 {
		t.Fatalf("expected turn count 1, got %d", updated.TurnCount)
	}
	if updated.CurrentSpeaker != "priya" {
		t.Fatalf("expected speaker to flip to priya, got %s", updated.CurrentSpeaker)
	}
	if len(h.conversations.turns) != 1 {
		t.Fatalf("expected one turn appended, got %d", len(h.conversations.turns))
	}
}

func TestProcessTurn_LowScoreEndsConversation(t *testing.T) {
	now := time.Now()
	h := newHarness(now)
	// Force a low continue score: high fatigue and a nearly exhausted token budget.
	h.personas.byID["alex"].Interaction.AvailableTime = 600
	h.personas.byID["alex"].Interaction.SocialEnergy = 150
	h.personas.byID["alex"].Interaction.InteractionFatigue = 500
	conv, _ := h.engine.Initiate(context.Background(), "alex", "priya", "topic", 1800, 4000, now)
	conv.TokenBudget = 60
	conv.TokensUsed = 55
	h.conversations.byID[conv.ID] = conv

	turn, err := h.engine.ProcessTurn(context.Background(), conv.ID, "alex", "hi")
	if err != nil {
		t.Fatalf("ProcessTurn returned error: %v", err)
	}
	_ = turn

	updated, _ := h.conversations.Get(context.Background(), conv.ID)
	if updated.EndedAt == nil {
		t.Fatal("expected the conversation to auto-end once resources are nearly exhausted")
	}
}

func TestProcessTurnStream_AccumulatesChunksAndCallsOnChunk(t *testing.T) {
	now := time.Now()
	h := newHarness(now)
	h.gateway.StreamChunks = []string{"Hello", ", ", "there."}
	conv, _ := h.engine.Initiate(context.Background(), "alex", "priya", "topic", 1800, 4000, now)

	var chunks []string
	turn, err := h.engine.ProcessTurnStream(context.Background(), conv.ID, "alex", "hi", func(text string, chunkNumber int, done bool) {
		chunks = append(chunks, text)
	})
	if err != nil {
		t.Fatalf("ProcessTurnStream returned error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 emitted chunks, got %d: %v", len(chunks), chunks)
	}
	if turn.Content != "Hello, there." {
		t.Fatalf("expected accumulated content %q, got %q", "Hello, there.", turn.Content)
	}
}

func TestProcessTurnStream_ErrorFallsBackToTemplate(t *testing.T) {
	now := time.Now()
	h := newHarness(now)
	h.gateway.Err = context.DeadlineExceeded
	conv, _ := h.engine.Initiate(context.Background(), "alex", "priya", "topic", 1800, 4000, now)

	var gotDone bool
	turn, err := h.engine.ProcessTurnStream(context.Background(), conv.ID, "alex", "hi", func(text string, chunkNumber int, done bool) {
		gotDone = gotDone || done
	})
	if err != nil {
		t.Fatalf("ProcessTurnStream returned error: %v", err)
	}
	if turn.ResponseType != domain.ResponseTemplate {
		t.Fatalf("expected template fallback on stream setup error, got %s", turn.ResponseType)
	}
	if !gotDone {
		t.Fatal("expected the synthetic fallback chunk to be marked done")
	}
}

func TestEnd_AppliesCooldownScaledByScoreAndFatigue(t *testing.T) {
	now := time.Now()
	h := newHarness(now)
	conv, _ := h.engine.Initiate(context.Background(), "alex", "priya", "topic", 1800, 4000, now)
	conv.ContinueScore = 80 // high score -> shortened cooldown

	if err := h.engine.End(context.Background(), conv, "ended_by_test", now); err != nil {
		t.Fatalf("End returned error: %v", err)
	}
	if conv.ExitReason != "ended_by_test" {
		t.Fatalf("expected exit reason to be recorded, got %q", conv.ExitReason)
	}
	alex := h.personas.byID["alex"]
	if !alex.Interaction.CooldownUntil.After(now) {
		t.Fatal("expected a future cooldown to be set")
	}
	if alex.Interaction.CooldownUntil.Sub(now) >= 300*time.Second {
		t.Fatal("expected a high continue score to shorten the base cooldown below 300s")
	}
}

func TestSelectTier_Thresholds(t *testing.T) {
	cases := []struct {
		score    int
		expected domain.ResponseType
	}{
		{90, domain.ResponseFullLLM},
		{80, domain.ResponseFullLLM},
		{65, domain.ResponseFullLLM},
		{50, domain.ResponseConstrained},
		{39, domain.ResponseTemplate},
		{0, domain.ResponseTemplate},
	}
	for _, c := range cases {
		rt, _ := SelectTier(c.score)
		if rt != c.expected {
			t.Errorf("SelectTier(%d) = %s, want %s", c.score, rt, c.expected)
		}
	}
}
