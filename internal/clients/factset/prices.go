package factset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bobmcallan/pagr/internal/models"
)

type priceRequest struct {
	IDs  []string `json:"ids"`
	Date string   `json:"date"`
}

type priceRecord struct {
	RequestID string  `json:"requestId"`
	Price     float64 `json:"price"`
	Date      string  `json:"date"`
}

type priceError struct {
	RequestID string `json:"requestId"`
	Title     string `json:"title"`
}

type calculationStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// priceEnvelope covers both shapes: a 200 with price records and a 202
// with the calculation status in data.
type priceEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []priceError     `json:"errors"`
}

// LookupPrices requests prices for a batch of identifiers as of a date.
// Large batches may be accepted as an asynchronous calculation.
func (c *Client) LookupPrices(ctx context.Context, ids []models.Identifier, asOf time.Time) (*models.PriceResponse, error) {
	body := priceRequest{Date: asOf.Format("2006-01-02")}
	for _, id := range ids {
		body.IDs = append(body.IDs, id.Value)
	}

	var env priceEnvelope
	status, header, err := c.do(ctx, http.MethodPost, pricesPath, nil, body, &env)
	if err != nil {
		return nil, err
	}

	resp, err := c.decodePrices(status, header, &env, ids, pricesPath)
	if err != nil {
		return nil, err
	}
	if resp.Pending {
		c.mu.Lock()
		c.jobs[resp.JobID] = ids
		c.mu.Unlock()
	}
	return resp, nil
}

// PollPrices checks a pending calculation started by LookupPrices
func (c *Client) PollPrices(ctx context.Context, jobID string) (*models.PriceResponse, error) {
	c.mu.Lock()
	ids, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "unknown calculation " + jobID, Endpoint: pricesPath}
	}

	path := pricesPath + "/" + url.PathEscape(jobID)
	var env priceEnvelope
	status, header, err := c.do(ctx, http.MethodGet, path, nil, nil, &env)
	if err != nil {
		return nil, err
	}

	resp, err := c.decodePrices(status, header, &env, ids, path)
	if err != nil {
		return nil, err
	}
	if !resp.Pending {
		c.mu.Lock()
		delete(c.jobs, jobID)
		c.mu.Unlock()
	} else {
		resp.JobID = jobID
	}
	return resp, nil
}

func (c *Client) decodePrices(status int, header http.Header, env *priceEnvelope, ids []models.Identifier, path string) (*models.PriceResponse, error) {
	if status == http.StatusAccepted {
		var calc calculationStatus
		if err := decodeData(env.Data, &calc); err != nil {
			return nil, fmt.Errorf("failed to decode calculation status: %w", err)
		}
		if calc.ID == "" {
			return nil, &APIError{StatusCode: status, Message: "calculation accepted without an id", Endpoint: path}
		}
		return &models.PriceResponse{
			Pending:         true,
			JobID:           calc.ID,
			MinPollInterval: parseRetryAfter(header.Get("Retry-After"), time.Now()),
		}, nil
	}

	var records []priceRecord
	if err := decodeData(env.Data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode prices: %w", err)
	}

	byValue := make(map[string]string, len(ids))
	for _, id := range ids {
		byValue[strings.ToUpper(id.Value)] = id.Key()
	}

	resp := &models.PriceResponse{
		Quotes: make(map[string]models.Quote, len(records)),
		Errors: make(map[string]string),
	}
	for _, rec := range records {
		key, ok := byValue[strings.ToUpper(rec.RequestID)]
		if !ok {
			continue
		}
		q := models.Quote{Key: key, Price: rec.Price}
		if d, err := time.Parse("2006-01-02", rec.Date); err == nil {
			q.Date = d
		}
		resp.Quotes[key] = q
	}
	for _, e := range env.Errors {
		if key, ok := byValue[strings.ToUpper(e.RequestID)]; ok {
			resp.Errors[key] = e.Title
		}
	}
	return resp, nil
}

func decodeData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
