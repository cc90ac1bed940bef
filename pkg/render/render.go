// Package render turns a session into what the user sees.
//
// Render is a pure function of the latest Session: every widget's visibility
// and text is decided by the phase and its fields, never by client flags.
// Absent fields take the same defaults the session decoder documents.
package render

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/teslashibe/parley/pkg/session"
)

// DefaultImageBase is where product images are served from when the
// renderer is not told otherwise. The dashboard serves this path.
const DefaultImageBase = "/products/"

// DefaultHistoryLines is how many story entries the transcript log keeps.
const DefaultHistoryLines = 6

// Widget is a piece of text that is either shown or hidden.
type Widget struct {
	Visible bool   `json:"visible"`
	Text    string `json:"text,omitempty"`
}

// Line is one entry of the story transcript.
type Line struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WellnessPanel shows the check-in summary.
type WellnessPanel struct {
	Mood   string   `json:"mood"`
	Energy string   `json:"energy"`
	Goals  []string `json:"goals"`
}

// ProductCard is one search result.
type ProductCard struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Details  string `json:"details,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// CartLine is one pending cart item.
type CartLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Size     string `json:"size,omitempty"`
	Price    string `json:"price"`
}

// OrderSummary is the confirmation card for the last order.
type OrderSummary struct {
	ID     string   `json:"id"`
	Lines  []string `json:"lines"`
	Total  string   `json:"total"`
	Status string   `json:"status"`
}

// ShopPanel groups the shopping widgets.
type ShopPanel struct {
	Products []ProductCard `json:"products"`
	Cart     []CartLine    `json:"cart"`
	Order    *OrderSummary `json:"order,omitempty"`
}

// View is the phase-dependent part of the screen. Only the panel matching
// the session's skin is set.
type View struct {
	Skin  session.Skin  `json:"skin"`
	Phase session.Phase `json:"phase"`

	Scenario   Widget `json:"scenario"`
	RoundBadge Widget `json:"round_badge"`

	Transcript []Line         `json:"transcript,omitempty"`
	Wellness   *WellnessPanel `json:"wellness,omitempty"`
	Shop       *ShopPanel     `json:"shop,omitempty"`
}

// Renderer holds display settings. The zero value is usable.
type Renderer struct {
	// ImageBase is prefixed to relative product image names.
	ImageBase string
	// HistoryLines caps the story transcript. Zero means DefaultHistoryLines.
	HistoryLines int
}

// Render renders s with default settings.
func Render(s session.Session) View {
	return Renderer{}.Render(s)
}

// Render builds the View for s.
func (r Renderer) Render(s session.Session) View {
	v := View{Skin: s.Skin, Phase: s.Phase}

	switch f := s.Fields.(type) {
	case session.QuizFields:
		v.Scenario, v.RoundBadge = quiz(s.Phase, f)
	case session.StoryFields:
		v.Transcript = r.story(f)
	case session.WellnessFields:
		v.Wellness = wellness(f)
	case session.ShopFields:
		v.Shop = r.shop(f)
	}
	return v
}

func quiz(phase session.Phase, f session.QuizFields) (scenario, badge Widget) {
	switch phase {
	case session.PhaseIntro, session.PhaseSummary, session.PhaseEnded:
	default:
		if f.CurrentScenario != "" {
			scenario = Widget{Visible: true, Text: quote(f.CurrentScenario)}
		}
	}

	if phase == session.PhasePlaying {
		rounds := f.MaxRounds
		if rounds <= 0 {
			rounds = session.DefaultMaxRounds
		}
		badge = Widget{Visible: true, Text: fmt.Sprintf("Round %d / %d", f.Round+1, rounds)}
	}
	return scenario, badge
}

func (r Renderer) story(f session.StoryFields) []Line {
	n := r.HistoryLines
	if n <= 0 {
		n = DefaultHistoryLines
	}
	history := f.History
	if len(history) > n {
		history = history[len(history)-n:]
	}

	lines := make([]Line, 0, len(history))
	for _, e := range history {
		role := e.Role
		if role == "" {
			role = "narrator"
		}
		lines = append(lines, Line{Role: role, Content: e.Content})
	}
	return lines
}

func wellness(f session.WellnessFields) *WellnessPanel {
	p := &WellnessPanel{
		Mood:   orUnknown(f.Mood),
		Energy: orUnknown(f.Energy),
		Goals:  []string{},
	}
	for _, g := range f.Goals {
		if g = strings.TrimSpace(g); g != "" {
			p.Goals = append(p.Goals, g)
		}
	}
	return p
}

func (r Renderer) shop(f session.ShopFields) *ShopPanel {
	p := &ShopPanel{
		Products: make([]ProductCard, 0, len(f.LastSearchResults)),
		Cart:     make([]CartLine, 0, len(f.Cart)),
	}

	for _, prod := range f.LastSearchResults {
		card := ProductCard{
			Name:     prod.Name,
			Price:    price(prod.Price, prod.Currency),
			ImageURL: r.imageURL(prod.Image),
		}
		var details []string
		if prod.Color != "" {
			details = append(details, prod.Color)
		}
		if len(prod.Sizes) > 0 {
			details = append(details, "sizes "+strings.Join(prod.Sizes, "/"))
		}
		card.Details = strings.Join(details, ", ")
		p.Products = append(p.Products, card)
	}

	// Cart items carry no currency of their own.
	currency := ""
	if len(f.LastSearchResults) > 0 {
		currency = f.LastSearchResults[0].Currency
	}
	for _, item := range f.Cart {
		p.Cart = append(p.Cart, CartLine{
			Name:     item.Name,
			Quantity: max(item.Quantity, 1),
			Size:     item.Size,
			Price:    price(item.Price, currency),
		})
	}

	if o := f.LastOrder; o != nil {
		sum := &OrderSummary{
			ID:     o.ID,
			Total:  price(o.TotalAmount, o.Currency),
			Status: o.Status,
			Lines:  make([]string, 0, len(o.Items)),
		}
		if sum.Status == "" {
			sum.Status = "confirmed"
		}
		for _, it := range o.Items {
			line := fmt.Sprintf("%d x %s", max(it.Quantity, 1), it.ProductName)
			if it.Size != "" {
				line += " (" + it.Size + ")"
			}
			line += " " + price(it.Subtotal, o.Currency)
			sum.Lines = append(sum.Lines, line)
		}
		p.Order = sum
	}
	return p
}

// imageURL resolves a product image name against the image base. Absolute
// URLs are kept.
func (r Renderer) imageURL(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if u, err := url.Parse(name); err == nil && u.Scheme != "" {
		return name
	}

	base := r.ImageBase
	if base == "" {
		base = DefaultImageBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + url.PathEscape(strings.TrimPrefix(name, "/"))
}

func price(amount float64, currency string) string {
	s := strconv.FormatFloat(amount, 'f', -1, 64)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

func quote(s string) string {
	return `"` + s + `"`
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
