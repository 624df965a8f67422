package notify

import (
	"context"
	"fmt"
)

// Unconfigured stands in for a channel that lacks credentials. Every alert
// still makes one attempt, which fails with ErrNotConfigured and is logged
// and counted like any other delivery failure.
type Unconfigured struct {
	name   string
	reason error
}

// NewUnconfigured returns a placeholder for channel name. reason, when
// non-nil, is the constructor error that disabled the channel.
func NewUnconfigured(name string, reason error) *Unconfigured {
	return &Unconfigured{name: name, reason: reason}
}

func (u *Unconfigured) Name() string { return u.name }

// Notify always fails.
func (u *Unconfigured) Notify(ctx context.Context, message string) error {
	if u.reason != nil {
		return u.reason
	}
	return fmt.Errorf("%s: %w", u.name, ErrNotConfigured)
}
