package matching

import "time"

// StatusAvailable is the only listing status that makes a property a
// matching candidate.
const StatusAvailable = "available"

// Location is the structured address of a listing. Any field may be empty.
type Location struct {
	Area     string `json:"area,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city,omitempty"`
}

// Features holds the countable attributes checked against client minimums.
type Features struct {
	Bedrooms  int `json:"bedrooms"`
	Bathrooms int `json:"bathrooms"`
}

// Property is a listing as read from the catalog. Price and Size are nil
// when the listing does not state them.
type Property struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Price     *float64  `json:"price,omitempty"`
	Type      string    `json:"type"`
	Location  Location  `json:"location"`
	Size      *float64  `json:"area,omitempty"`
	Features  Features  `json:"features"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Available reports whether the listing can be offered.
func (p Property) Available() bool { return p.Status == StatusAvailable }
