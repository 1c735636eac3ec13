package notification

import (
	"context"
	"sync"
	"time"
)

// Preferences records which channels a user accepts.
type Preferences struct {
	UserID    string    `json:"user_id"`
	Email     bool      `json:"email"`
	SMS       bool      `json:"sms"`
	WhatsApp  bool      `json:"whatsapp"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPreferences is what a user without stored preferences gets: email only.
func DefaultPreferences(userID string) Preferences {
	return Preferences{UserID: userID, Email: true}
}

func (p Preferences) Enabled(c Channel) bool {
	switch c {
	case ChannelEmail:
		return p.Email
	case ChannelSMS:
		return p.SMS
	case ChannelWhatsApp:
		return p.WhatsApp
	}
	return false
}

// EnabledChannels returns the enabled channels in a stable order.
func (p Preferences) EnabledChannels() []Channel {
	var out []Channel
	for _, c := range Channels {
		if p.Enabled(c) {
			out = append(out, c)
		}
	}
	return out
}

// PreferencesStore persists user preferences.
// Get returns DefaultPreferences for users without a stored record.
type PreferencesStore interface {
	Get(ctx context.Context, userID string) (Preferences, error)
	Save(ctx context.Context, p Preferences) error
	Reset(ctx context.Context, userID string) error
}

type MemoryPreferences struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
}

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{prefs: make(map[string]Preferences)}
}

func (s *MemoryPreferences) Get(_ context.Context, userID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.prefs[userID]; ok {
		return p, nil
	}
	return DefaultPreferences(userID), nil
}

func (s *MemoryPreferences) Save(_ context.Context, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = time.Now().UTC()
	s.prefs[p.UserID] = p
	return nil
}

func (s *MemoryPreferences) Reset(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.prefs, userID)
	return nil
}
