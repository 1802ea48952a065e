package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/port"
)

// ResolveProfile picks the tenant the process serves: the configured id when
// set, otherwise the oldest profile. It runs once at startup.
func ResolveProfile(ctx context.Context, store port.Reader, configuredID string) (*domain.Profile, error) {
	var (
		p   *domain.Profile
		err error
	)
	if configuredID != "" {
		p, err = store.GetProfile(ctx, configuredID)
	} else {
		p, err = store.FirstProfile(ctx)
	}

	if errors.Is(err, port.ErrNoRows) {
		if configuredID != "" {
			return nil, &domain.ErrSetup{Message: fmt.Sprintf("profile %s does not exist", configuredID)}
		}
		return nil, &domain.ErrSetup{Message: "no profile found; run the seed command first"}
	}
	if err != nil {
		return nil, fmt.Errorf("resolving profile: %w", err)
	}
	return p, nil
}
