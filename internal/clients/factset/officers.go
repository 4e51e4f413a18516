package factset

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/bobmcallan/pagr/internal/models"
)

type officersResponse struct {
	Data []officerRecord `json:"data"`
}

type officerRecord struct {
	EntityID  string `json:"entityId"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	StartDate string `json:"startDate"`
}

// LookupOfficers returns the officers of one issuer entity. A 404 means the
// provider holds no officers for it.
func (c *Client) LookupOfficers(ctx context.Context, issuerID string) ([]models.Officer, error) {
	params := url.Values{}
	params.Set("ids", issuerID)

	var resp officersResponse
	if _, _, err := c.do(ctx, http.MethodGet, officersPath, params, nil, &resp); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return []models.Officer{}, nil
		}
		return nil, err
	}

	officers := make([]models.Officer, 0, len(resp.Data))
	for _, rec := range resp.Data {
		if rec.EntityID != "" && !strings.EqualFold(rec.EntityID, issuerID) {
			continue
		}
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			continue
		}
		officers = append(officers, models.Officer{
			Name:      name,
			Title:     strings.TrimSpace(rec.Title),
			StartDate: strings.TrimSpace(rec.StartDate),
		})
	}
	return officers, nil
}
