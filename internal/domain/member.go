// Package domain contains entities without transport or lifecycle logic.
package domain

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

const (
	MaxMemberNameLen = 36
	DefaultName      = "guest"
)

var (
	ErrNameTooLong = errors.New("name too long")
	ErrNameEmpty   = errors.New("name empty")
)

// MemberID is an ephemeral per-connection identifier.
type MemberID string

func NewMemberID() MemberID { return MemberID(uuid.NewString()) }

// Member represents a connected participant. No transport here.
// The name may change while rooms read it, hence the lock.
type Member struct {
	ID MemberID

	mu   sync.RWMutex
	name string
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id MemberID, name string) (*Member, error) {
	if name == "" {
		name = DefaultName
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &Member{ID: id, name: name}, nil
}

func (m *Member) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

func (m *Member) SetName(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	m.mu.Lock()
	m.name = name
	m.mu.Unlock()
	return nil
}

func validateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxMemberNameLen {
		return ErrNameTooLong
	}
	return nil
}
