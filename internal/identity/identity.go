// Package identity supplies the buyer's display name for orders.
package identity

import (
	"context"
	"errors"
	"strings"
)

// Guest is the display name used when no identity is available.
const Guest = "Guest"

// ErrNoIdentity is returned by providers that have nothing to offer.
var ErrNoIdentity = errors.New("no identity available")

// Provider supplies a display name for the current buyer.
type Provider interface {
	DisplayName(ctx context.Context) (string, error)
}

// Static is a fixed display name. An empty Static reports ErrNoIdentity.
type Static string

// DisplayName implements Provider.
func (s Static) DisplayName(ctx context.Context) (string, error) {
	name := strings.TrimSpace(string(s))
	if name == "" {
		return "", ErrNoIdentity
	}
	return name, nil
}

// Chain tries providers in order and returns the first non-blank name.
type Chain []Provider

// DisplayName implements Provider.
func (c Chain) DisplayName(ctx context.Context) (string, error) {
	var errs []error
	for _, p := range c {
		if p == nil {
			continue
		}
		name, err := p.DisplayName(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			return name, nil
		}
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return "", ErrNoIdentity
}

// Resolve asks p for a display name and falls back to Guest on any failure,
// so a missing identity never blocks an order.
func Resolve(ctx context.Context, p Provider) string {
	if p == nil {
		return Guest
	}
	name, err := p.DisplayName(ctx)
	if err != nil {
		return Guest
	}
	if name = strings.TrimSpace(name); name == "" {
		return Guest
	}
	return name
}
