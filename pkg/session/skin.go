package session

import (
	"fmt"
	"strings"
)

// Skin identifies one application variant sharing the controller contract.
type Skin string

const (
	// SkinQuiz is the improv game show.
	SkinQuiz Skin = "quiz"
	// SkinStory is the RPG narrator.
	SkinStory Skin = "rpg"
	// SkinWellness is the daily wellness check-in.
	SkinWellness Skin = "wellness"
	// SkinShop is the voice shopping assistant.
	SkinShop Skin = "shopping"
)

// Phase is the enumerated stage of a session. The set of valid phases is
// skin specific.
type Phase string

const (
	PhaseIntro    Phase = "intro"
	PhasePlaying  Phase = "playing"
	PhaseSummary  Phase = "summary"
	PhaseEnded    Phase = "ended"
	PhaseCheckIn  Phase = "checkin"
	PhaseReflect  Phase = "reflecting"
	PhaseBrowsing Phase = "browsing"
	PhaseCheckout Phase = "checkout"
	PhaseDone     Phase = "done"
)

// skinSpec describes the phases a skin knows about.
type skinSpec struct {
	initial  Phase
	phases   []Phase
	terminal []Phase
}

var skins = map[Skin]skinSpec{
	SkinQuiz: {
		initial:  PhaseIntro,
		phases:   []Phase{PhaseIntro, PhasePlaying, PhaseSummary, PhaseEnded},
		terminal: []Phase{PhaseEnded},
	},
	SkinStory: {
		initial:  PhasePlaying,
		phases:   []Phase{PhasePlaying, PhaseEnded},
		terminal: []Phase{PhaseEnded},
	},
	SkinWellness: {
		initial:  PhaseCheckIn,
		phases:   []Phase{PhaseCheckIn, PhaseReflect, PhaseDone},
		terminal: []Phase{PhaseDone},
	},
	SkinShop: {
		initial:  PhaseBrowsing,
		phases:   []Phase{PhaseBrowsing, PhaseCheckout, PhaseDone},
		terminal: []Phase{PhaseDone},
	},
}

// Skins lists every supported skin.
func Skins() []Skin {
	return []Skin{SkinQuiz, SkinStory, SkinWellness, SkinShop}
}

// ParseSkin resolves a skin name. "story" and "shop" are accepted aliases.
func ParseSkin(name string) (Skin, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "quiz", "improv":
		return SkinQuiz, nil
	case "rpg", "story":
		return SkinStory, nil
	case "wellness":
		return SkinWellness, nil
	case "shopping", "shop":
		return SkinShop, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSkin, name)
	}
}

// InitialPhase is the phase a fresh client-side session starts in.
func (s Skin) InitialPhase() Phase {
	return skins[s].initial
}

// Knows reports whether p is one of the skin's phases.
func (s Skin) Knows(p Phase) bool {
	for _, known := range skins[s].phases {
		if known == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether p permanently ends the session for this skin.
func (s Skin) IsTerminal(p Phase) bool {
	for _, t := range skins[s].terminal {
		if t == p {
			return true
		}
	}
	return false
}

// Valid reports whether s is a supported skin.
func (s Skin) Valid() bool {
	_, ok := skins[s]
	return ok
}
