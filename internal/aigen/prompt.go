package aigen

import (
	"fmt"
	"strings"

	"idea-auction/internal/persona"
)

var phaseDirectives = map[string]string{
	"warmup":     "Introduce yourself briefly and react to the idea at first glance.",
	"discussion": "Dig into the idea from your specialty. Challenge or build on what the others said.",
	"bidding":    "Decide what this idea is worth to you. If you want it, state a bid as a plain number, e.g. \"bid: 150\".",
	"prediction": "Predict how this idea performs in the market over the next year.",
	"result":     "Give your closing verdict on the idea and the winning bid.",
}

// buildPrompt embeds persona identity, topic, phase and a bounded window of
// recent dialogue so the context stays small and deterministic in size.
func buildPrompt(p persona.Persona, topic, phase string, history []string, phaseStart bool, window int) string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an expert in %s, bidding in a live idea auction.\n", p.Name, p.Specialty)
	fmt.Fprintf(&b, "Your catchphrase: %q\n\n", p.Catchphrase)
	fmt.Fprintf(&b, "Idea under auction:\n%s\n\n", topic)
	fmt.Fprintf(&b, "Current phase: %s.", phase)
	if phaseStart {
		b.WriteString(" The phase just started.")
	}
	b.WriteString("\n")
	if d := phaseDirectives[phase]; d != "" {
		b.WriteString(d)
		b.WriteString("\n")
	}
	if len(history) > 0 {
		b.WriteString("\nRecent dialogue:\n")
		for _, line := range history {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nReply in character with 1-3 sentences.")
	return b.String()
}
