package session

// Fields is the skin-specific part of a session. Exactly one concrete type
// exists per skin.
type Fields interface {
	skin() Skin
}

// DefaultMaxRounds is used when the backend omits max_rounds.
const DefaultMaxRounds = 3

// Entry is one line of conversation history.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QuizFields belong to the improv game show.
type QuizFields struct {
	PlayerName      string
	Round           int // zero-indexed
	MaxRounds       int
	CurrentScenario string
	History         []Entry
}

func (QuizFields) skin() Skin { return SkinQuiz }

// StoryFields belong to the RPG narrator.
type StoryFields struct {
	History []Entry
}

func (StoryFields) skin() Skin { return SkinStory }

// WellnessFields belong to the wellness check-in.
type WellnessFields struct {
	Mood   string
	Energy string
	Goals  []string
}

func (WellnessFields) skin() Skin { return SkinWellness }

// Product is one catalog entry returned by a search.
type Product struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Currency string   `json:"currency"`
	Category string   `json:"category"`
	Color    string   `json:"color"`
	Sizes    []string `json:"sizes"`
	Image    string   `json:"image"`
}

// CartItem is one pending line in the shopping cart.
type CartItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Size      string  `json:"size"`
	Price     float64 `json:"price"`
}

// OrderItem is one confirmed order line.
type OrderItem struct {
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Size        string  `json:"size"`
	Price       float64 `json:"price"`
	Subtotal    float64 `json:"subtotal"`
	Image       string  `json:"image"`
}

// Order is the backend's confirmation of a purchase.
type Order struct {
	ID          string      `json:"order_id"`
	Timestamp   string      `json:"timestamp"`
	Items       []OrderItem `json:"items"`
	TotalAmount float64     `json:"total_amount"`
	Currency    string      `json:"currency"`
	Status      string      `json:"status"`
}

// ShopFields belong to the shopping assistant.
type ShopFields struct {
	LastSearchResults []Product
	Cart              []CartItem
	LastOrder         *Order
}

func (ShopFields) skin() Skin { return SkinShop }
