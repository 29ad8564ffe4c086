package aigen

import (
	"fmt"

	"idea-auction/internal/persona"
)

// Template lines substituted when generation fails, keyed by phase. Picked
// deterministically so a fully offline session still reads coherently.
var fallbackByPhase = map[string][]string{
	"warmup": {
		"Interesting idea. I want to hear more before I commit to anything.",
		"I've seen this space before. Let's see if this version is different.",
		"First impressions: there is something here worth digging into.",
	},
	"discussion": {
		"The real question is who pays for this twice. %s",
		"Execution will decide this one, not the concept. %s",
		"I'd want to see the numbers behind that claim. %s",
	},
	"bidding": {
		"I'm watching the price before I move.",
		"Not ready to raise yet. The current bid already prices in the upside.",
		"Tempting, but I hold for now.",
	},
	"prediction": {
		"Twelve months out, this lives or dies on distribution.",
		"I expect a slow start and a sharp inflection if they survive year one.",
		"The market will be smaller than the pitch says, and that's fine.",
	},
	"result": {
		"A fair outcome. The winner paid for conviction.",
		"That closing price tells you everything about today's appetite.",
		"Good auction. I'll be watching where this idea lands.",
	},
}

func fallbackLine(p persona.Persona, phase string, round int) string {
	lines := fallbackByPhase[phase]
	if len(lines) == 0 {
		lines = fallbackByPhase["discussion"]
	}
	pick := lines[(round+len(p.ID))%len(lines)]
	if hasFormatSlot(pick) {
		return fmt.Sprintf(pick, p.Catchphrase)
	}
	return pick
}

func hasFormatSlot(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '%' && s[i+1] == 's' {
			return true
		}
	}
	return false
}
