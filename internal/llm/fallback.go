package llm

import "github.com/saltydev0331/persona-mcp-sub000/internal/domain"

// Fallback chooses a short canned response when the backend is
// unavailable, keyed by the speaker's current priority and remaining
// energy, per §4.4/§7 (BackendFailure degrades to response_type=template
// rather than aborting the turn).
func Fallback(priority domain.Priority, energyLevel float64) string {
	if energyLevel < 0.25 {
		return tiredLines[priority]
	}
	if line, ok := cannedLines[priority]; ok {
		return line
	}
	return cannedLines[domain.PriorityNone]
}

var cannedLines = map[domain.Priority]string{
	domain.PriorityUrgent:    "I need a moment — can we pick this back up shortly?",
	domain.PriorityImportant: "Let me think that through properly before I answer.",
	domain.PriorityCasual:    "Hm, good question — give me a second.",
	domain.PrioritySocial:    "Ha, I hear you. One sec.",
	domain.PriorityAcademic:  "That's worth getting right — let me gather my thoughts.",
	domain.PriorityBusiness:  "Noted. Let me get back to you on that shortly.",
	domain.PriorityNone:      "Sorry, could you say that again?",
}

var tiredLines = map[domain.Priority]string{
	domain.PriorityUrgent:    "I'm running low — can this wait just a bit?",
	domain.PriorityImportant: "I want to give this real attention, but I'm fading. Can we continue later?",
	domain.PriorityCasual:    "I'm pretty worn out right now, sorry.",
	domain.PrioritySocial:    "I'm low on energy, might need to rest soon.",
	domain.PriorityAcademic:  "I'm too tired to do this justice right now.",
	domain.PriorityBusiness:  "I'm at capacity for today — let's resume tomorrow.",
	domain.PriorityNone:      "I'm pretty tired right now.",
}
