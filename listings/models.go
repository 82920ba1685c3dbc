package listings

import (
	"io"
	"net/url"
	"strconv"
	"time"
)

// Page is the paginated envelope returned by list endpoints.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

func (p *Page[T]) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}

type Car struct {
	ID          string    `json:"id"`
	Make        string    `json:"make"`
	Model       string    `json:"model"`
	Year        int       `json:"year"`
	Price       float64   `json:"price"`
	Mileage     int       `json:"mileage"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Images      []string  `json:"images"`
	Seller      string    `json:"seller"`
	CreatedAt   time.Time `json:"created_at"`
}

// CarFilter narrows GET /api/cars/. Zero values are not sent.
type CarFilter struct {
	Search   string
	Make     string
	Model    string
	MinYear  int
	MaxYear  int
	MinPrice float64
	MaxPrice float64
	Page     int
}

func (f CarFilter) Values() url.Values {
	v := url.Values{}
	setString(v, "search", f.Search)
	setString(v, "make", f.Make)
	setString(v, "model", f.Model)
	setInt(v, "min_year", f.MinYear)
	setInt(v, "max_year", f.MaxYear)
	if f.MinPrice > 0 {
		v.Set("min_price", strconv.FormatFloat(f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice > 0 {
		v.Set("max_price", strconv.FormatFloat(f.MaxPrice, 'f', -1, 64))
	}
	setInt(v, "page", f.Page)
	return v
}

// CarInput is the form sent when creating a listing.
type CarInput struct {
	Make        string  `json:"make" validate:"required,max=100"`
	Model       string  `json:"model" validate:"required,max=100"`
	Year        int     `json:"year" validate:"required,gte=1900,lte=2100"`
	Price       float64 `json:"price" validate:"gt=0"`
	Mileage     int     `json:"mileage" validate:"gte=0"`
	Location    string  `json:"location" validate:"max=200"`
	Description string  `json:"description"`
}

// Fields renders the input as multipart form fields.
func (in CarInput) Fields() map[string]string {
	fields := map[string]string{
		"make":    in.Make,
		"model":   in.Model,
		"year":    strconv.Itoa(in.Year),
		"price":   strconv.FormatFloat(in.Price, 'f', 2, 64),
		"mileage": strconv.Itoa(in.Mileage),
	}
	if in.Location != "" {
		fields["location"] = in.Location
	}
	if in.Description != "" {
		fields["description"] = in.Description
	}
	return fields
}

// Image is a photo attached to a new car listing.
type Image struct {
	Name    string
	Content io.Reader
}

type Fundraiser struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Goal        float64    `json:"goal"`
	Raised      float64    `json:"raised"`
	Organizer   string     `json:"organizer"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

// Progress is the fraction of the goal raised, capped at 1.
func (f *Fundraiser) Progress() float64 {
	if f.Goal <= 0 {
		return 0
	}
	return min(f.Raised/f.Goal, 1)
}

type Donation struct {
	Amount    float64 `json:"amount" validate:"gt=0"`
	Message   string  `json:"message,omitempty" validate:"max=500"`
	Anonymous bool    `json:"anonymous"`
}

type DonationReceipt struct {
	ID           string    `json:"id"`
	FundraiserID string    `json:"fundraiser"`
	Amount       float64   `json:"amount"`
	Raised       float64   `json:"raised"`
	CreatedAt    time.Time `json:"created_at"`
}

func setString(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func setInt(v url.Values, key string, value int) {
	if value > 0 {
		v.Set(key, strconv.Itoa(value))
	}
}
