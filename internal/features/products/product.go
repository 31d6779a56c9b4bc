package products

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Display limits.
const (
	maxDisplayName      = 50
	maxShortDescription = 100
)

// Rating is the Fake Store rating block.
type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// APIProduct is one product as returned by the Fake Store API.
type APIProduct struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Rating      Rating  `json:"rating"`
}

// Product is the view model kept in the products slice.
type Product struct {
	ID                  int     `json:"id"`
	Title               string  `json:"title"`
	DisplayName         string  `json:"displayName"`
	Price               float64 `json:"price"`
	Description         string  `json:"description"`
	ShortDescription    string  `json:"shortDescription"`
	Category            string  `json:"category"`
	CategoryDisplayName string  `json:"categoryDisplayName"`
	Image               string  `json:"image"`
	Rating              float64 `json:"rating"`
	RatingCount         int     `json:"ratingCount"`
}

// Category is a known Fake Store category.
type Category struct {
	ID          string
	Name        string
	DisplayName string
}

// Categories lists the Fake Store categories.
var Categories = []Category{
	{ID: "electronics", Name: "Electronics", DisplayName: "Electronics"},
	{ID: "jewelery", Name: "Jewelery", DisplayName: "Jewelry"},
	{ID: "men's clothing", Name: "Men's Clothing", DisplayName: "Men's Fashion"},
	{ID: "women's clothing", Name: "Women's Clothing", DisplayName: "Women's Fashion"},
}

// NewProduct builds the view model of an API product.
func NewProduct(p APIProduct) Product {
	return Product{
		ID:                  p.ID,
		Title:               p.Title,
		DisplayName:         truncate(p.Title, maxDisplayName),
		Price:               round(p.Price, 2),
		Description:         p.Description,
		ShortDescription:    truncate(p.Description, maxShortDescription),
		Category:            p.Category,
		CategoryDisplayName: FormatCategoryName(p.Category),
		Image:               p.Image,
		Rating:              round(p.Rating.Rate, 1),
		RatingCount:         p.Rating.Count,
	}
}

// FromAPI converts a list of API products.
func FromAPI(items []APIProduct) []Product {
	out := make([]Product, 0, len(items))
	for _, p := range items {
		out = append(out, NewProduct(p))
	}
	return out
}

// CategoryDisplayName returns the display name of a known category, and id
// unchanged otherwise.
func CategoryDisplayName(id string) string {
	for _, c := range Categories {
		if c.ID == id {
			return c.DisplayName
		}
	}
	return id
}

// FormatCategoryName title-cases every word of a category id.
func FormatCategoryName(id string) string {
	words := strings.Split(id, " ")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size > 0 {
			words[i] = string(unicode.ToUpper(r)) + w[size:]
		}
	}
	return strings.Join(words, " ")
}

// FormattedPrice renders the price as dollars.
func (p Product) FormattedPrice() string {
	return fmt.Sprintf("$%.2f", p.Price)
}

// HighRating reports a rating of at least 4.
func (p Product) HighRating() bool {
	return p.Rating >= 4.0
}

// StarRating renders the rating as five stars, full stars first.
func (p Product) StarRating() string {
	rating := math.Max(0, math.Min(5, p.Rating))
	full := int(math.Floor(rating))
	half := rating-float64(full) >= 0.5
	empty := 5 - full
	if half {
		empty--
	}

	var b strings.Builder
	b.WriteString(strings.Repeat("★", full))
	if half {
		b.WriteString("☆")
	}
	b.WriteString(strings.Repeat("☆", empty))
	return b.String()
}

// ReviewSummary renders "4.1 (259 reviews)".
func (p Product) ReviewSummary() string {
	return fmt.Sprintf("%g (%d reviews)", p.Rating, p.RatingCount)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
