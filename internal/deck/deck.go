package deck

import "slices"

// Deck is the ordered set of labels a room currently accepts as votes.
type Deck struct {
	Type  string
	Cards []string
}

const TypeCustom = "custom"

// Preset ids match the deck selector shipped with the frontend.
var presets = map[string][]string{
	"fibonacci":          {"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89", "?", "☕️"},
	"modified-fibonacci": {"0", "½", "1", "2", "3", "5", "8", "13", "20", "40", "100", "?", "☕️"},
	"t-shirt":            {"XS", "S", "M", "L", "XL", "?", "☕️"},
	"powers":             {"0", "1", "2", "4", "8", "16", "32", "64", "?", "☕️"},
	"sequential":         {"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "?", "☕️"},
}

var defaultCards = []string{"1", "2", "3", "5", "8", "13", "21", "?", "∞"}

// Default is the deck every new room starts with.
func Default() Deck {
	return Deck{Type: "default", Cards: slices.Clone(defaultCards)}
}

// Preset looks up a named deck. The returned cards are a copy; callers may
// not mutate catalog state through it.
func Preset(id string) (Deck, bool) {
	cards, ok := presets[id]
	if !ok {
		return Deck{}, false
	}
	return Deck{Type: id, Cards: slices.Clone(cards)}, true
}

// Custom builds a deck from caller-supplied labels.
func Custom(cards []string) Deck {
	return Deck{Type: TypeCustom, Cards: slices.Clone(cards)}
}

func (d Deck) Contains(label string) bool {
	return slices.Contains(d.Cards, label)
}
