package nutrition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultSource tags items produced by a vision model.
	DefaultSource = "ai"
	// DefaultUnit is used when a shopping list item comes without a unit.
	DefaultUnit = "pieza"
	// DefaultQuantity is used when a shopping list item comes without a quantity.
	DefaultQuantity = 1.0
)

// ErrMissingName is returned when a food or shopping item has no name.
var ErrMissingName = errors.New("missing name")

// PerServing holds the macros of one serving. All values are non-negative.
type PerServing struct {
	Calories     float64 `json:"calories"`
	ProteinGrams float64 `json:"proteinGrams"`
	CarbsGrams   float64 `json:"carbsGrams"`
	FatGrams     float64 `json:"fatGrams"`
}

// FoodItem is one recognised food with its estimated nutrition.
type FoodItem struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	ServingDescription string     `json:"servingDescription"`
	Nutrition          PerServing `json:"nutrition"`
	Source             string     `json:"source"`
}

// ShoppingListItem is a suggested purchase derived from the photo.
type ShoppingListItem struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Quantity    float64   `json:"quantity"`
	Unit        string    `json:"unit"`
	IsPurchased bool      `json:"isPurchased"`
}

// Result is the canonical shape every provider output is coerced into.
type Result struct {
	FoodItems    []FoodItem         `json:"foodItems"`
	ShoppingList []ShoppingListItem `json:"shoppingList"`
	Notes        string             `json:"notes"`
}

// Empty returns a result with no items and the given notes.
func Empty(notes string) Result {
	return Result{FoodItems: []FoodItem{}, ShoppingList: []ShoppingListItem{}, Notes: notes}
}

// IsEmpty reports whether the result carries neither food nor shopping items.
func (r Result) IsEmpty() bool { return len(r.FoodItems) == 0 && len(r.ShoppingList) == 0 }

// TotalNutrition sums the per-serving macros of every food item.
func (r Result) TotalNutrition() PerServing {
	var total PerServing
	for _, item := range r.FoodItems {
		total.Calories += item.Nutrition.Calories
		total.ProteinGrams += item.Nutrition.ProteinGrams
		total.CarbsGrams += item.Nutrition.CarbsGrams
		total.FatGrams += item.Nutrition.FatGrams
	}
	return total
}

// Decode parses canonical JSON leniently: absent optional keys take their defaults.
func Decode(data []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, err
	}
	return r, nil
}

// Encode renders the result as canonical JSON.
func Encode(r Result) ([]byte, error) { return json.Marshal(r) }

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		FoodItems    []FoodItem         `json:"foodItems"`
		ShoppingList []ShoppingListItem `json:"shoppingList"`
		Notes        *string            `json:"notes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.FoodItems = raw.FoodItems
	if r.FoodItems == nil {
		r.FoodItems = []FoodItem{}
	}
	r.ShoppingList = raw.ShoppingList
	if r.ShoppingList == nil {
		r.ShoppingList = []ShoppingListItem{}
	}
	r.Notes = ""
	if raw.Notes != nil {
		r.Notes = *raw.Notes
	}
	return nil
}

func (p *PerServing) UnmarshalJSON(data []byte) error {
	var raw struct {
		Calories     flexNumber `json:"calories"`
		ProteinGrams flexNumber `json:"proteinGrams"`
		CarbsGrams   flexNumber `json:"carbsGrams"`
		FatGrams     flexNumber `json:"fatGrams"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Calories = raw.Calories.nonNegative()
	p.ProteinGrams = raw.ProteinGrams.nonNegative()
	p.CarbsGrams = raw.CarbsGrams.nonNegative()
	p.FatGrams = raw.FatGrams.nonNegative()
	return nil
}

func (f *FoodItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID                 *string     `json:"id"`
		Name               *string     `json:"name"`
		ServingDescription *string     `json:"servingDescription"`
		Nutrition          *PerServing `json:"nutrition"`
		Source             *string     `json:"source"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	name, ok := requiredName(raw.Name)
	if !ok {
		return fmt.Errorf("food item: %w", ErrMissingName)
	}
	*f = FoodItem{
		ID:     identity(raw.ID),
		Name:   name,
		Source: DefaultSource,
	}
	if raw.ServingDescription != nil {
		f.ServingDescription = strings.TrimSpace(*raw.ServingDescription)
	}
	if raw.Nutrition != nil {
		f.Nutrition = *raw.Nutrition
	}
	if raw.Source != nil && strings.TrimSpace(*raw.Source) != "" {
		f.Source = strings.TrimSpace(*raw.Source)
	}
	return nil
}

func (s *ShoppingListItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          *string    `json:"id"`
		Name        *string    `json:"name"`
		Quantity    flexNumber `json:"quantity"`
		Unit        *string    `json:"unit"`
		IsPurchased *bool      `json:"isPurchased"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	name, ok := requiredName(raw.Name)
	if !ok {
		return fmt.Errorf("shopping list item: %w", ErrMissingName)
	}
	*s = ShoppingListItem{
		ID:       identity(raw.ID),
		Name:     name,
		Quantity: DefaultQuantity,
		Unit:     DefaultUnit,
	}
	if raw.Quantity.set {
		s.Quantity = raw.Quantity.value
	}
	if raw.Unit != nil && strings.TrimSpace(*raw.Unit) != "" {
		s.Unit = strings.TrimSpace(*raw.Unit)
	}
	if raw.IsPurchased != nil {
		s.IsPurchased = *raw.IsPurchased
	}
	return nil
}

func requiredName(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	name := strings.TrimSpace(*v)
	return name, name != ""
}

// identity keeps a well-formed id from the payload and generates one otherwise.
func identity(v *string) uuid.UUID {
	if v != nil {
		if id, err := uuid.Parse(strings.TrimSpace(*v)); err == nil {
			return id
		}
	}
	return uuid.New()
}

// flexNumber accepts JSON numbers, numeric strings and null.
type flexNumber struct {
	value float64
	set   bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("invalid number %s", s)
		}
		s = strings.TrimSpace(unquoted)
		if s == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	n.value, n.set = v, true
	return nil
}

func (n flexNumber) nonNegative() float64 {
	if n.value < 0 {
		return 0
	}
	return n.value
}
