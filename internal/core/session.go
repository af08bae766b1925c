package core

import "github.com/mellivod/Lounge/internal/domain"

// Frame is a marshaled event ready for the wire.
type Frame []byte

// Sink abstracts a live connection's outbound half.
// Owned by the adapter; the adapter must Close() it.
type Sink interface {
	TrySend(Frame) error
	Close()
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Avatar   string        `json:"avatar,omitempty"`
}
