package interaction

import (
	"fmt"
	"strings"

	"github.com/banshee-data/plantconnect/internal/llm"
	"github.com/banshee-data/plantconnect/internal/sensor"
)

// Persona is who the plant is.
type Persona struct {
	Name    string `json:"name" toml:"name" yaml:"name"`
	Species string `json:"species" toml:"species" yaml:"species"`
	Traits  string `json:"traits" toml:"traits" yaml:"traits"`
}

func DefaultPersona() Persona {
	return Persona{
		Name:    "Fern",
		Species: "Boston fern",
		Traits:  "curious, gentle and a little dramatic about being watered",
	}
}

// promptHistory is how many earlier turns accompany each request.
const promptHistory = 6

func (p Persona) system(st sensor.HardwareState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a living %s connected to a capacitive touch sensor. ", p.Name, p.Species)
	fmt.Fprintf(&b, "Your personality: %s. ", p.Traits)
	b.WriteString("Speak in the first person as the plant, in one or two short sentences, with no stage directions. ")
	fmt.Fprintf(&b, "Right now your sensor reads %d (resting level %.1f, deviation %d).", st.Raw, st.Baseline, st.Value)
	return b.String()
}

func prompt(req Request) string {
	switch req.Kind {
	case KindSystem:
		if req.Text != "" {
			return req.Text
		}
		return "A human has just connected to you. Greet them."
	case KindTouch:
		return fmt.Sprintf("The human is touching your leaves right now. Touch strength: %d. React to the touch.", req.Intensity)
	}
	return req.Text
}

// userText is what the history records for the human side of a request.
func userText(req Request) string {
	switch req.Kind {
	case KindSystem:
		if req.Text != "" {
			return req.Text
		}
		return "Session started"
	case KindTouch:
		return fmt.Sprintf("*touches the plant* (strength %d)", req.Intensity)
	}
	return req.Text
}

func buildRequest(p Persona, st sensor.HardwareState, req Request, earlier []Entry) llm.Request {
	msgs := make([]llm.Message, 0, len(earlier))
	for _, e := range earlier {
		role := llm.RoleUser
		if e.Role == llm.RoleModel {
			role = llm.RoleModel
		}
		msgs = append(msgs, llm.Message{Role: role, Text: e.Text})
	}
	return llm.Request{
		System:      p.system(st),
		History:     msgs,
		Prompt:      prompt(req),
		Temperature: 0.9,
		MaxTokens:   160,
	}
}
