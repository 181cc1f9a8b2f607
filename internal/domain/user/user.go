// Package user provides the User profile domain entity.
package user

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	defaultName        = "Explorer"
	defaultEmailLocal  = "guest"
	emailDomain        = "moodmelody.co"
	defaultDescription = "Searching for the perfect soundscape to match life's moments."
)

// User represents the signed-in listener profile.
type User struct {
	ID          string   // "u_<unix millis>"
	Name        string   // Display name
	Email       string   // Derived from the display name at login
	Description string   // Free-form bio
	JoinedDate  string   // e.g. "October 2026"
	Favorites   []string // Favorite song IDs (unique, insertion order)
}

// New creates a new user profile for the given display name.
func New(name string, now time.Time) *User {
	name = strings.TrimSpace(name)
	local := defaultEmailLocal
	if name != "" {
		local = emailLocal(name)
	} else {
		name = defaultName
	}

	return &User{
		ID:          fmt.Sprintf("u_%d", now.UnixMilli()),
		Name:        name,
		Email:       local + "@" + emailDomain,
		Description: defaultDescription,
		JoinedDate:  now.Format("January 2006"),
		Favorites:   make([]string, 0),
	}
}

// IsFavorite checks if the song is in the favorites set.
func (u *User) IsFavorite(songID string) bool {
	for _, id := range u.Favorites {
		if id == songID {
			return true
		}
	}
	return false
}

// ToggleFavorite flips membership of songID in the favorites set.
// Returns true if the song is a favorite after the call.
func (u *User) ToggleFavorite(songID string) bool {
	for i, id := range u.Favorites {
		if id == songID {
			u.Favorites = append(u.Favorites[:i:i], u.Favorites[i+1:]...)
			return false
		}
	}
	u.Favorites = append(u.Favorites, songID)
	return true
}

// UpdateProfile applies profile edits. Empty name keeps the current one.
func (u *User) UpdateProfile(name, description string) {
	if name = strings.TrimSpace(name); name != "" {
		u.Name = name
	}
	u.Description = description
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	c.Favorites = append(make([]string, 0, len(u.Favorites)), u.Favorites...)
	return &c
}

// emailLocal lower-cases name and turns every whitespace character into a dot.
func emailLocal(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '.'
		}
		return r
	}, strings.ToLower(name))
}
