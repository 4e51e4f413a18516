package factset

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bobmcallan/pagr/internal/models"
)

type profileResponse struct {
	Data []profileRecord `json:"data"`
}

type profileRecord struct {
	RequestID           string   `json:"requestId"`
	SecurityName        string   `json:"securityName"`
	SecurityType        string   `json:"securityType"`
	IssuerEntityID      string   `json:"issuerEntityId"`
	IssuerName          string   `json:"issuerName"`
	Sector              string   `json:"sector"`
	Industry            string   `json:"industry"`
	CountryOfOperations string   `json:"countryOfOperations"`
	CountryOfRisk       string   `json:"countryOfRisk"`
	Ticker              string   `json:"ticker"`
	ISIN                string   `json:"isin"`
	CUSIP               string   `json:"cusip"`
	CouponRate          *float64 `json:"couponRate"`
	Currency            string   `json:"currency"`
	MaturityDate        string   `json:"maturityDate"`
}

// LookupProfile returns issuer and classification data for one identifier
func (c *Client) LookupProfile(ctx context.Context, id models.Identifier) (*models.Profile, error) {
	params := url.Values{}
	params.Set("ids", id.Value)
	params.Set("idType", string(id.Type))

	var resp profileResponse
	if _, _, err := c.do(ctx, http.MethodGet, profilesPath, params, nil, &resp); err != nil {
		return nil, err
	}

	var rec *profileRecord
	for i := range resp.Data {
		if strings.EqualFold(resp.Data[i].RequestID, id.Value) || len(resp.Data) == 1 {
			rec = &resp.Data[i]
			break
		}
	}
	if rec == nil {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "no profile for " + id.Key(), Endpoint: profilesPath}
	}

	profile := &models.Profile{
		Identifier:        id,
		SecurityName:      rec.SecurityName,
		SecurityType:      rec.SecurityType,
		IssuerID:          strings.TrimSpace(rec.IssuerEntityID),
		IssuerName:        rec.IssuerName,
		Sector:            rec.Sector,
		Industry:          rec.Industry,
		OperationsCountry: rec.CountryOfOperations,
		DomicileCountry:   rec.CountryOfRisk,
		Ticker:            models.CleanIdentifier(rec.Ticker),
		ISIN:              models.CleanIdentifier(rec.ISIN),
		CUSIP:             models.CleanIdentifier(rec.CUSIP),
		CouponRate:        rec.CouponRate,
		Currency:          rec.Currency,
	}
	if rec.MaturityDate != "" {
		if t, err := time.Parse("2006-01-02", rec.MaturityDate); err == nil {
			profile.Maturity = &t
		}
	}
	return profile, nil
}
