package model

import (
	"strings"
	"time"
)

// DefaultCountry is used when the source profile carries no country.
const DefaultCountry = "DZ"

// PlayerIdentity is a player known to the store.
type PlayerIdentity struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	Country       string    `json:"country"`
	CurrentRating *int      `json:"current_rating,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NormalizeUsername lower-cases and trims a username for storage and lookup.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ProfileInfo is the subset of the source profile the pipeline keeps.
type ProfileInfo struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	ProfileURL  string `json:"profile_url,omitempty"`
}

// RatingInfo holds the last known rating per time class.
type RatingInfo struct {
	Rapid  *int `json:"rapid,omitempty"`
	Blitz  *int `json:"blitz,omitempty"`
	Bullet *int `json:"bullet,omitempty"`
	Daily  *int `json:"daily,omitempty"`
}

// Primary returns the rating shown as the player's current rating,
// preferring rapid, then blitz, bullet and daily.
func (r *RatingInfo) Primary() *int {
	if r == nil {
		return nil
	}
	for _, v := range []*int{r.Rapid, r.Blitz, r.Bullet, r.Daily} {
		if v != nil {
			return v
		}
	}
	return nil
}
