package session

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartsInInitialPhase(t *testing.T) {
	for _, skin := range Skins() {
		s := New(skin)
		assert.Equal(t, skin.InitialPhase(), s.Phase, "skin %s", skin)
		assert.NotNil(t, s.Fields, "skin %s", skin)
		assert.False(t, s.Terminal())
	}

	raw, err := json.Marshal(New(SkinQuiz))
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase":"intro"}`, string(raw))
}

func TestParseQuizPlaying(t *testing.T) {
	s, err := Parse(SkinQuiz, []byte(`{"phase":"playing","round":1,"max_rounds":3,"current_scenario":"A customer complains","player_name":"Ada"}`))
	require.NoError(t, err)

	assert.Equal(t, PhasePlaying, s.Phase)
	q, ok := s.Quiz()
	require.True(t, ok)
	assert.Equal(t, 1, q.Round)
	assert.Equal(t, 3, q.MaxRounds)
	assert.Equal(t, "A customer complains", q.CurrentScenario)
	assert.Equal(t, "Ada", q.PlayerName)
	assert.Empty(t, s.Defaulted())
}

func TestParseAppliesDefaults(t *testing.T) {
	s, err := Parse(SkinQuiz, []byte(`{"phase":"playing"}`))
	require.NoError(t, err)

	q, _ := s.Quiz()
	assert.Equal(t, 0, q.Round)
	assert.Equal(t, DefaultMaxRounds, q.MaxRounds)
	assert.Equal(t, []string{"current_scenario", "max_rounds", "round"}, s.Defaulted())
}

func TestParseToleratesLooseTypes(t *testing.T) {
	s, err := Parse(SkinQuiz, []byte(`{"phase":"playing","round":"2","max_rounds":0,"current_scenario":42,"history":[{"role":"user","content":"hi"},"junk"]}`))
	require.NoError(t, err)

	q, _ := s.Quiz()
	assert.Equal(t, 2, q.Round)
	assert.Equal(t, DefaultMaxRounds, q.MaxRounds)
	assert.Equal(t, "", q.CurrentScenario)
	assert.Equal(t, []Entry{{Role: "user", Content: "hi"}}, q.History)
	assert.Contains(t, s.Defaulted(), "current_scenario")
}

func TestParseOutOfRangeNumbers(t *testing.T) {
	s, err := Parse(SkinQuiz, []byte(`{"phase":"playing","round":1e20,"max_rounds":-1e300,"current_scenario":"x"}`))
	require.NoError(t, err)

	q, _ := s.Quiz()
	assert.Equal(t, 0, q.Round)
	assert.Equal(t, DefaultMaxRounds, q.MaxRounds)
	assert.Equal(t, []string{"max_rounds", "round"}, s.Defaulted())
}

func TestParseMissingPhaseUsesInitial(t *testing.T) {
	s, err := Parse(SkinStory, []byte(`{"history":[{"role":"user","content":"open the door"},{"role":"model","content":"It creaks."}]}`))
	require.NoError(t, err)

	assert.Equal(t, PhasePlaying, s.Phase)
	st, ok := s.Story()
	require.True(t, ok)
	assert.Len(t, st.History, 2)
}

func TestParseRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{``, `null`, `[]`, `"playing"`, `{broken`} {
		_, err := Parse(SkinQuiz, []byte(raw))
		require.Error(t, err, "payload %q", raw)

		var pe *ParseError
		assert.True(t, errors.As(err, &pe))
	}

	_, err := Parse(SkinQuiz, []byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrNotObject)
	_, err = Parse(SkinQuiz, []byte(`null`))
	assert.ErrorIs(t, err, ErrEmptyState)
}

func TestParseUnknownSkin(t *testing.T) {
	_, err := Parse(Skin("karaoke"), []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownSkin)
}

func TestParseWellnessEnergyScalar(t *testing.T) {
	s, err := Parse(SkinWellness, []byte(`{"phase":"reflecting","mood":"calm","energy":7,"goals":["walk","read"]}`))
	require.NoError(t, err)

	w, ok := s.Wellness()
	require.True(t, ok)
	assert.Equal(t, "calm", w.Mood)
	assert.Equal(t, "7", w.Energy)
	assert.Equal(t, []string{"walk", "read"}, w.Goals)
}

func TestParseShop(t *testing.T) {
	payload := `{
		"phase":"done",
		"last_search_results":[{"id":"p1","name":"Classic White Tee","price":800,"currency":"INR","image":"1.png"}],
		"last_order":{"order_id":"ORD-ABC123","items":[{"product_name":"Classic White Tee","quantity":2,"price":800,"subtotal":1600}],"total_amount":1600,"currency":"INR","status":"confirmed"}
	}`
	s, err := Parse(SkinShop, []byte(payload))
	require.NoError(t, err)

	shop, ok := s.Shop()
	require.True(t, ok)
	require.Len(t, shop.LastSearchResults, 1)
	assert.Equal(t, "1.png", shop.LastSearchResults[0].Image)
	require.NotNil(t, shop.LastOrder)
	assert.Equal(t, "ORD-ABC123", shop.LastOrder.ID)
	assert.Equal(t, 1600.0, shop.LastOrder.TotalAmount)
	assert.True(t, s.Terminal())
}

func TestRawRoundTripsUnknownKeys(t *testing.T) {
	payload := `{"phase":"intro","secret_sauce":{"a":[1,2,3]}}`
	s, err := Parse(SkinQuiz, []byte(payload))
	require.NoError(t, err)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(out))
}

func TestApply(t *testing.T) {
	current, err := Parse(SkinQuiz, []byte(`{"phase":"playing","round":1,"current_scenario":"old","player_name":"Ada"}`))
	require.NoError(t, err)

	t.Run("absent update keeps current", func(t *testing.T) {
		assert.Equal(t, current, Apply(current, nil))
	})

	t.Run("present update replaces wholesale", func(t *testing.T) {
		update, err := Parse(SkinQuiz, []byte(`{"phase":"summary"}`))
		require.NoError(t, err)

		next := Apply(current, &update)
		assert.Equal(t, update, next)

		q, _ := next.Quiz()
		assert.Empty(t, q.PlayerName, "fields are not carried over from the old session")
		assert.Empty(t, q.CurrentScenario)
	})
}

func TestSkinTerminalPhases(t *testing.T) {
	assert.True(t, SkinQuiz.IsTerminal(PhaseEnded))
	assert.False(t, SkinQuiz.IsTerminal(PhaseSummary))
	assert.True(t, SkinWellness.IsTerminal(PhaseDone))
	assert.True(t, SkinShop.IsTerminal(PhaseDone))
	assert.False(t, SkinStory.IsTerminal(PhasePlaying))
}

func TestParseSkin(t *testing.T) {
	s, err := ParseSkin("Shop")
	require.NoError(t, err)
	assert.Equal(t, SkinShop, s)

	s, err = ParseSkin("story")
	require.NoError(t, err)
	assert.Equal(t, SkinStory, s)

	_, err = ParseSkin("karaoke")
	assert.ErrorIs(t, err, ErrUnknownSkin)
}
