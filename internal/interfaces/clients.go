// Package interfaces defines service contracts for PAGR
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/pagr/internal/models"
)

// ReferenceProvider supplies issuer reference data and prices
type ReferenceProvider interface {
	// LookupProfile returns issuer and classification data for one identifier
	LookupProfile(ctx context.Context, id models.Identifier) (*models.Profile, error)

	// LookupPrices requests prices for a batch of identifiers as of a date.
	// The response is complete or pending with a job to poll.
	LookupPrices(ctx context.Context, ids []models.Identifier, asOf time.Time) (*models.PriceResponse, error)

	// PollPrices checks a pending price calculation
	PollPrices(ctx context.Context, jobID string) (*models.PriceResponse, error)

	// LookupOfficers returns the officers of an issuer. An issuer the
	// provider has no officers for returns an empty slice.
	LookupOfficers(ctx context.Context, issuerID string) ([]models.Officer, error)
}
