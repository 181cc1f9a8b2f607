// Package session provides the signed-in user lifecycle backed by durable storage.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/moodmelody/internal/domain/user"
	"github.com/osa030/moodmelody/internal/infra/store"
	zlog "github.com/rs/zerolog/log"
)

// StorageKey is the fixed key the user record is stored under.
const StorageKey = "moodmelody_user_v2"

// ErrNoUser is returned when an operation needs a signed-in user.
var ErrNoUser = errors.New("no user signed in")

// Repo persists string values under fixed keys.
type Repo interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// record is the persisted form of the user.
type record struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Description string   `json:"description"`
	JoinedDate  string   `json:"joinedDate"`
	Favorites   []string `json:"favorites"`
}

func toRecord(u *user.User) record {
	return record{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Description: u.Description,
		JoinedDate:  u.JoinedDate,
		Favorites:   u.Favorites,
	}
}

func (r record) toUser() *user.User {
	favorites := r.Favorites
	if favorites == nil {
		favorites = make([]string, 0)
	}
	return &user.User{
		ID:          r.ID,
		Name:        r.Name,
		Email:       r.Email,
		Description: r.Description,
		JoinedDate:  r.JoinedDate,
		Favorites:   favorites,
	}
}

// Store owns the current user. Every mutation is written through to the repo.
type Store struct {
	mu       sync.RWMutex
	repo     Repo
	user     *user.User
	onLogout []func()
	now      func() time.Time
}

// NewStore creates a new session store. Call Load once before use.
func NewStore(repo Repo) *Store {
	return &Store{
		repo: repo,
		now:  time.Now,
	}
}

// OnLogout registers a hook run after the user record is removed.
func (s *Store) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// Load reads the persisted user. A missing or unreadable record leaves no user signed in.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.repo.Get(ctx, StorageKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read user record")
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		zlog.Warn().Msgf("session: ignoring unreadable user record: error=%v", err)
		return nil
	}

	s.mu.Lock()
	s.user = rec.toUser()
	s.mu.Unlock()

	zlog.Info().Msgf("session: user restored: id=%s name=%s", rec.ID, rec.Name)
	return nil
}

// Login creates a new user for name, replacing any current one.
func (s *Store) Login(ctx context.Context, name string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := user.New(name, s.now())
	if err := s.saveLocked(ctx, u); err != nil {
		return nil, err
	}
	s.user = u

	zlog.Info().Msgf("session: user logged in: id=%s name=%s", u.ID, u.Name)
	return u.Clone(), nil
}

// UpdateProfile edits the display name and bio.
func (s *Store) UpdateProfile(ctx context.Context, name, description string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return nil, ErrNoUser
	}

	u := s.user.Clone()
	u.UpdateProfile(name, description)
	if err := s.saveLocked(ctx, u); err != nil {
		return nil, err
	}
	s.user = u

	return u.Clone(), nil
}

// ToggleFavorite flips songID in the favorites set.
// Without a user it does nothing and reports false.
func (s *Store) ToggleFavorite(ctx context.Context, songID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return false, nil
	}

	u := s.user.Clone()
	favorite := u.ToggleFavorite(songID)
	if err := s.saveLocked(ctx, u); err != nil {
		return s.user.IsFavorite(songID), err
	}
	s.user = u

	return favorite, nil
}

// Logout removes the user record and runs the logout hooks.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	if err := s.repo.Delete(ctx, StorageKey); err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "failed to remove user record")
	}
	had := s.user != nil
	s.user = nil
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	if had {
		zlog.Info().Msg("session: user logged out")
	}
	return nil
}

// Current returns a copy of the signed-in user.
func (s *Store) Current() (*user.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil, false
	}
	return s.user.Clone(), true
}

// LoggedIn reports whether a user is signed in.
func (s *Store) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

func (s *Store) saveLocked(ctx context.Context, u *user.User) error {
	data, err := json.Marshal(toRecord(u))
	if err != nil {
		return errors.Wrap(err, "failed to encode user record")
	}
	if err := s.repo.Set(ctx, StorageKey, string(data)); err != nil {
		return errors.Wrap(err, "failed to write user record")
	}
	return nil
}
