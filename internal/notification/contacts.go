package notification

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNoDestination   = errors.New("no destination for channel")
	ErrContactNotFound = errors.New("contact not found")
)

// Contact holds a user's delivery addresses.
type Contact struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

// Destination returns the address used for channel c.
func (c Contact) Destination(ch Channel) (string, error) {
	var dest string
	switch ch {
	case ChannelEmail:
		dest = c.Email
	case ChannelSMS, ChannelWhatsApp:
		dest = c.Phone
	}
	if dest == "" {
		return "", ErrNoDestination
	}
	return dest, nil
}

// ContactDirectory resolves user ids to delivery addresses.
type ContactDirectory interface {
	Lookup(ctx context.Context, userID string) (Contact, error)
}

// ContactBook is a ContactDirectory that can also record addresses.
type ContactBook interface {
	ContactDirectory
	Put(ctx context.Context, c Contact) error
}

type MemoryContacts struct {
	mu       sync.RWMutex
	contacts map[string]Contact
}

func NewMemoryContacts(contacts ...Contact) *MemoryContacts {
	m := &MemoryContacts{contacts: make(map[string]Contact, len(contacts))}
	for _, c := range contacts {
		m.contacts[c.UserID] = c
	}
	return m
}

// Put stores c, keeping previously known addresses that c leaves empty.
func (m *MemoryContacts) Put(_ context.Context, c Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.contacts[c.UserID]
	if c.Email == "" {
		c.Email = prev.Email
	}
	if c.Phone == "" {
		c.Phone = prev.Phone
	}
	m.contacts[c.UserID] = c
	return nil
}

func (m *MemoryContacts) Lookup(_ context.Context, userID string) (Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contacts[userID]
	if !ok {
		return Contact{}, ErrContactNotFound
	}
	return c, nil
}
