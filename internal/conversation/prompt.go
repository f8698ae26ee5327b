// Prompt assembly for the LLM gateway, grounded on the teacher's
// clone_prompt_builder.go ClonePromptBuilder: a strings.Builder walking
// fixed, labeled sections in order, closing with the user's message.
// Adapted from the teacher's single hardcoded-persona narrative sections
// into the spec's persona/state/topic/turn/constraints preamble (§4.4).
package conversation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
	"github.com/saltydev0331/persona-mcp-sub000/internal/llm"
)

// PromptBuilder assembles the system preamble sent to the LLM gateway.
type PromptBuilder struct{}

// Build assembles persona identity, traits, interaction-state snapshot,
// topic, turn number, and constraints guidance into one system preamble.
func (PromptBuilder) Build(p *domain.Persona, state *domain.EmotionalState, topic string, turnNumber int, constraints llm.Constraints) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You are %s. %s\n\n", p.Name, p.Description))

	sb.WriteString("=== PERSONALITY TRAITS ===\n")
	for _, trait := range sortedKeys(p.PersonalityTraits) {
		sb.WriteString(fmt.Sprintf("- %s: %.0f/100\n", trait, p.PersonalityTraits[trait]))
	}
	sb.WriteString("\n")

	if state != nil {
		sb.WriteString("=== CURRENT EMOTIONAL STATE ===\n")
		sb.WriteString(fmt.Sprintf("mood %.2f, energy %.2f, stress %.2f, curiosity %.2f, social battery %.2f\n\n",
			state.Mood, state.EnergyLevel, state.StressLevel, state.Curiosity, state.SocialBattery))
	}

	sb.WriteString("=== INTERACTION STATE ===\n")
	sb.WriteString(fmt.Sprintf("priority %s, interest %.0f, fatigue %.0f, social energy %.0f\n\n",
		p.Interaction.CurrentPriority, p.Interaction.InterestLevel, p.Interaction.InteractionFatigue, p.Interaction.SocialEnergy))

	if topic != "" {
		sb.WriteString(fmt.Sprintf("=== CONVERSATION TOPIC ===\n%s\n\n", topic))
	}

	sb.WriteString(fmt.Sprintf("This is turn %d of the conversation.\n\n", turnNumber))

	sb.WriteString("=== RESPONSE GUIDANCE ===\n")
	sb.WriteString(fmt.Sprintf("- Keep your response under roughly %d tokens.\n", constraints.TokenCap()))
	if constraints.Concise {
		sb.WriteString("- Be concise; prefer short, direct sentences.\n")
	}
	if constraints.PrepareExit {
		sb.WriteString("- Begin steering the conversation toward a natural close.\n")
	}
	for _, topic := range constraints.AvoidTopics {
		sb.WriteString(fmt.Sprintf("- Avoid discussing: %s.\n", topic))
	}
	sb.WriteString("- Stay in character; never mention that you are an AI, a model, or a simulation.\n\n")

	return sb.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
