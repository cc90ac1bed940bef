// Package session mirrors the backend-authoritative conversation state.
//
// A Session is a tagged union keyed by skin and phase: the phase is lifted
// out of the payload, the skin's field set is decoded into a typed Fields
// value, and the payload itself is kept byte-for-byte so it can be sent back
// to the backend unchanged. The client never derives or mutates domain
// fields; every successful turn that carries a state replaces the Session
// wholesale (see Apply).
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Session is the client-held mirror of backend state.
type Session struct {
	Skin   Skin
	Phase  Phase
	Fields Fields

	raw       json.RawMessage
	defaulted []string
}

// New returns the client-side session used before the backend has seeded
// one: {"phase": <initial phase>}.
func New(skin Skin) Session {
	phase := skin.InitialPhase()
	raw, _ := json.Marshal(map[string]string{"phase": string(phase)})
	s, err := Parse(skin, raw)
	if err != nil {
		// unreachable for a marshalled object
		return Session{Skin: skin, Phase: phase, raw: raw}
	}
	return s
}

// Parse validates a backend payload at the boundary and decodes it into a
// Session. Missing or mistyped fields take documented defaults and are
// reported by Defaulted; only a payload that is not a JSON object is
// rejected.
func Parse(skin Skin, raw []byte) (Session, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Session{}, &ParseError{Skin: skin, Err: ErrEmptyState}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil || obj == nil {
		return Session{}, &ParseError{Skin: skin, Err: ErrNotObject}
	}

	d := decoder{obj: obj}
	phase := Phase(d.str("phase", string(skin.InitialPhase())))

	s := Session{
		Skin:  skin,
		Phase: phase,
		raw:   append(json.RawMessage(nil), trimmed...),
	}

	switch skin {
	case SkinQuiz:
		s.Fields = QuizFields{
			PlayerName:      d.str("player_name", ""),
			Round:           d.integer("round", 0),
			MaxRounds:       d.positive("max_rounds", DefaultMaxRounds),
			CurrentScenario: d.str("current_scenario", ""),
			History:         d.entries("history"),
		}
		if phase == PhasePlaying {
			d.expect("round", "max_rounds", "current_scenario")
		}
	case SkinStory:
		s.Fields = StoryFields{History: d.entries("history")}
	case SkinWellness:
		s.Fields = WellnessFields{
			Mood:   d.str("mood", ""),
			Energy: d.scalar("energy"),
			Goals:  d.strings("goals"),
		}
		if phase == PhaseReflect {
			d.expect("mood", "energy")
		}
	case SkinShop:
		f := ShopFields{}
		d.into("last_search_results", &f.LastSearchResults)
		d.into("cart", &f.Cart)
		var order Order
		if d.into("last_order", &order) {
			f.LastOrder = &order
		}
		s.Fields = f
		if phase == PhaseDone {
			d.expect("last_order")
		}
	default:
		return Session{}, &ParseError{Skin: skin, Err: ErrUnknownSkin}
	}

	sort.Strings(d.defaulted)
	s.defaulted = d.defaulted
	return s, nil
}

// Apply is the merge protocol. A nil update leaves current untouched; a
// present update replaces it wholesale, including fields current had and
// the update lacks.
func Apply(current Session, update *Session) Session {
	if update == nil {
		return current
	}
	return *update
}

// Raw returns a copy of the verbatim backend payload.
func (s Session) Raw() json.RawMessage {
	return append(json.RawMessage(nil), s.raw...)
}

// MarshalJSON emits the verbatim backend payload.
func (s Session) MarshalJSON() ([]byte, error) {
	if len(s.raw) == 0 {
		return []byte("{}"), nil
	}
	return s.Raw(), nil
}

// Terminal reports whether the session has reached a phase that ends it.
func (s Session) Terminal() bool {
	return s.Skin.IsTerminal(s.Phase)
}

// Defaulted lists fields that were expected for the phase (or present with
// the wrong type) and fell back to defaults.
func (s Session) Defaulted() []string {
	return append([]string(nil), s.defaulted...)
}

// Quiz returns the quiz fields, if this is a quiz session.
func (s Session) Quiz() (QuizFields, bool) {
	f, ok := s.Fields.(QuizFields)
	return f, ok
}

// Story returns the RPG fields, if this is an RPG session.
func (s Session) Story() (StoryFields, bool) {
	f, ok := s.Fields.(StoryFields)
	return f, ok
}

// Wellness returns the wellness fields, if this is a wellness session.
func (s Session) Wellness() (WellnessFields, bool) {
	f, ok := s.Fields.(WellnessFields)
	return f, ok
}

// Shop returns the shopping fields, if this is a shopping session.
func (s Session) Shop() (ShopFields, bool) {
	f, ok := s.Fields.(ShopFields)
	return f, ok
}

// String is used in logs.
func (s Session) String() string {
	return fmt.Sprintf("%s/%s", s.Skin, s.Phase)
}

// decoder reads loosely-typed fields out of a JSON object.
type decoder struct {
	obj       map[string]json.RawMessage
	defaulted []string
}

func (d *decoder) mark(key string) {
	for _, k := range d.defaulted {
		if k == key {
			return
		}
	}
	d.defaulted = append(d.defaulted, key)
}

func (d *decoder) present(key string) (json.RawMessage, bool) {
	v, ok := d.obj[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

// expect marks keys that the current phase is supposed to carry.
func (d *decoder) expect(keys ...string) {
	for _, k := range keys {
		if _, ok := d.present(k); !ok {
			d.mark(k)
		}
	}
}

func (d *decoder) str(key, def string) string {
	v, ok := d.present(key)
	if !ok {
		return def
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		d.mark(key)
		return def
	}
	return s
}

// scalar renders a string, number or bool as display text.
func (d *decoder) scalar(key string) string {
	v, ok := d.present(key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return strconv.FormatBool(b)
	}
	d.mark(key)
	return ""
}

// integer accepts JSON numbers and numeric strings.
func (d *decoder) integer(key string, def int) int {
	v, ok := d.present(key)
	if !ok {
		return def
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		if f >= math.MinInt32 && f <= math.MaxInt32 {
			return int(f)
		}
		d.mark(key)
		return def
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	d.mark(key)
	return def
}

// positive is integer with zero and negatives treated as absent.
func (d *decoder) positive(key string, def int) int {
	n := d.integer(key, def)
	if n <= 0 {
		return def
	}
	return n
}

func (d *decoder) strings(key string) []string {
	var out []string
	d.into(key, &out)
	return out
}

// entries decodes a history list, skipping items that are not role/content
// objects.
func (d *decoder) entries(key string) []Entry {
	var items []json.RawMessage
	if !d.into(key, &items) {
		return nil
	}
	out := make([]Entry, 0, len(items))
	for _, item := range items {
		var e Entry
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

// into decodes key into dst, reporting whether it was present and valid.
func (d *decoder) into(key string, dst any) bool {
	v, ok := d.present(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(v, dst); err != nil {
		d.mark(key)
		return false
	}
	return true
}
