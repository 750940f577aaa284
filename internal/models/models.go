package models

import "time"

// MaxGuestItems caps the number of items in a guest list.
const MaxGuestItems = 20

// Auth structs
type AuthRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Session SessionResponse `json:"session"`
	Message string          `json:"message"`
}

type SessionResponse struct {
	ExpiresIn int    `json:"expires_in"`
	TokenType string `json:"token_type"`
	User      User   `json:"user"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// TokenPair is only meaningful when both tokens are set.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

type Session struct {
	TokenPair
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	ExpiresAt int64  `json:"expires_at"`
	User      User   `json:"user"`
}

// Authenticated list structs
type GearList struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	UserID      string    `json:"user_id"`
	ItemCount   int       `json:"item_count"`
	TotalWeight float64   `json:"total_weight"`
}

type Category struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type Item struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Name        string    `json:"name" validate:"required_without=ID,max=200"`
	Description *string   `json:"description,omitempty"`
	Weight      float64   `json:"weight" validate:"gte=0"`
	WeightUnit  string    `json:"weight_unit,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	CategoryID  *string   `json:"category_id,omitempty"`
	Category    *Category `json:"categories,omitempty"`
	ImageURL    *string   `json:"image_url,omitempty"`
	Link        *string   `json:"link,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// ListItem joins a list to an item with list specific fields.
type ListItem struct {
	ID         string `json:"id"`
	ListID     string `json:"list_id"`
	ItemID     string `json:"item_id"`
	Worn       bool   `json:"worn"`
	Consumable bool   `json:"consumable"`
	Quantity   int    `json:"quantity"`
	Item       Item   `json:"item"`
}

// CategoryName returns the joined category name or "".
func (li ListItem) CategoryName() string {
	if li.Item.Category == nil {
		return ""
	}
	return li.Item.Category.Name
}

type ListItemOptions struct {
	Worn       bool `json:"worn"`
	Consumable bool `json:"consumable"`
	Quantity   int  `json:"quantity" validate:"gte=0"`
}

type ListPatch struct {
	Name  *string    `json:"name,omitempty"`
	Items []ListItem `json:"items,omitempty"`
}

// Guest structs
type GuestList struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	ItemCount   int       `json:"item_count"`
	TotalWeight float64   `json:"total_weight"`
}

type GuestItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Weight      float64   `json:"weight"`
	WeightUnit  string    `json:"weight_unit"`
	Price       *float64  `json:"price,omitempty"`
	Link        *string   `json:"link,omitempty"`
	Worn        bool      `json:"worn"`
	Consumable  bool      `json:"consumable"`
	CreatedAt   time.Time `json:"created_at"`
}

type GuestItemInput struct {
	Name        string   `json:"name" validate:"required,notblank,max=200"`
	Description *string  `json:"description,omitempty"`
	Weight      float64  `json:"weight" validate:"gte=0"`
	WeightUnit  string   `json:"weight_unit"`
	Price       *float64 `json:"price,omitempty"`
	Link        *string  `json:"link,omitempty"`
	Worn        bool     `json:"worn"`
	Consumable  bool     `json:"consumable"`
}

// GuestItemPatch only applies non-nil fields.
type GuestItemPatch struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Weight      *float64 `json:"weight,omitempty" validate:"omitempty,gte=0"`
	WeightUnit  *string  `json:"weight_unit,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Link        *string  `json:"link,omitempty"`
	Worn        *bool    `json:"worn,omitempty"`
	Consumable  *bool    `json:"consumable,omitempty"`
}
