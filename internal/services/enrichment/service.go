// Package enrichment resolves securities against the reference provider
// under rate, concurrency, retry and deadline limits
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/interfaces"
	"github.com/bobmcallan/pagr/internal/models"
)

// Service fans lookups out to the provider. Every request passes through
// one rate limiter and an in-flight semaphore. Waits between attempts and
// polls hold neither.
type Service struct {
	provider interfaces.ReferenceProvider
	logger   *common.Logger
	limiter  *rate.Limiter
	slots    chan struct{}

	maxAttempts     int
	batchSize       int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	maxThrottleWait time.Duration
	pollInitial     time.Duration
	pollMultiplier  float64
	pollMaxInterval time.Duration
	pollTimeout     time.Duration
	deadline        time.Duration
	officers        bool
}

// NewService creates an enrichment service
func NewService(provider interfaces.ReferenceProvider, config common.EnrichmentConfig, logger *common.Logger) *Service {
	rps := config.RateLimit
	if rps <= 0 {
		rps = 10
	}
	inFlight := config.MaxInFlight
	if inFlight <= 0 {
		inFlight = rps
	}
	attempts := config.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	batch := config.BatchSize
	if batch <= 0 {
		batch = 10
	}
	mult := config.PollMultiplier
	if mult < 1 {
		mult = 1.5
	}

	return &Service{
		provider:        provider,
		logger:          logger,
		limiter:         rate.NewLimiter(rate.Limit(rps), rps),
		slots:           make(chan struct{}, inFlight),
		maxAttempts:     attempts,
		batchSize:       batch,
		initialBackoff:  config.GetInitialBackoff(),
		maxBackoff:      config.GetMaxBackoff(),
		maxThrottleWait: config.GetMaxThrottleWait(),
		pollInitial:     config.GetPollInitial(),
		pollMultiplier:  mult,
		pollMaxInterval: config.GetPollMaxInterval(),
		pollTimeout:     config.GetPollTimeout(),
		deadline:        config.GetDeadline(),
		officers:        config.Officers,
	}
}

// Enrich looks up profile and price data for each distinct identifier. It
// never fails as a whole: lookups that do not succeed are recorded as
// failures and their fields stay absent. When ctx or the configured
// deadline expires, outstanding lookups are abandoned and the partial
// result is returned.
func (s *Service) Enrich(ctx context.Context, ids []models.Identifier, asOf time.Time) *models.EnrichmentResult {
	ids = distinct(ids)
	if len(ids) == 0 {
		return models.NewEnrichmentResult()
	}

	if s.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}

	started := time.Now()
	col := newCollector(ids)

	var wg sync.WaitGroup
	for _, id := range ids {
		s.safeGo(&wg, "profile "+id.Key(), func() { s.enrichProfile(ctx, id, col) })
	}
	for _, batch := range batches(ids, s.batchSize) {
		s.safeGo(&wg, fmt.Sprintf("prices %s+%d", batch[0].Key(), len(batch)-1), func() { s.enrichPrices(ctx, batch, asOf, col) })
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().
			Int("securities", len(ids)).
			Dur("elapsed", time.Since(started)).
			Msg("Enrichment deadline reached, returning partial results")
	}

	result := col.seal(abandonReason(ctx))
	for _, f := range result.CompanyFailures {
		s.logger.Warn().
			Str("issuer", f.Key).
			Int("attempts", f.Attempts).
			Str("reason", f.Reason).
			Msg("Officer lookup failed, CEO unavailable")
	}
	for _, f := range result.Failures {
		s.logger.Warn().
			Str("security", f.Key).
			Str("stage", string(f.Stage)).
			Int("attempts", f.Attempts).
			Str("reason", f.Reason).
			Msg("Enrichment failed, data unavailable")
	}

	s.logger.Info().
		Int("securities", len(ids)).
		Int("failures", len(result.Failures)).
		Int("companies", len(result.Companies)).
		Int("company_failures", len(result.CompanyFailures)).
		Dur("elapsed", time.Since(started)).
		Msg("Enrichment complete")

	return result
}

func (s *Service) enrichProfile(ctx context.Context, id models.Identifier, col *collector) {
	var profile *models.Profile
	attempts, err := s.call(ctx, func(ctx context.Context) error {
		p, err := s.provider.LookupProfile(ctx, id)
		profile = p
		return err
	})
	if err != nil {
		col.fail(models.EnrichmentFailure{Key: id.Key(), Stage: models.StageProfile, Reason: s.reason(ctx, err), Attempts: attempts})
		return
	}
	if profile == nil {
		col.fail(models.EnrichmentFailure{Key: id.Key(), Stage: models.StageProfile, Reason: "empty profile", Attempts: attempts})
		return
	}
	col.profile(id.Key(), profile)

	if s.officers && profile.IssuerID != "" && col.claimIssuer(profile.IssuerID) {
		s.enrichOfficers(ctx, profile.IssuerID, col)
	}
}

// enrichOfficers looks up an issuer's officers. An issuer the provider
// does not know has no officers rather than a failed lookup.
func (s *Service) enrichOfficers(ctx context.Context, issuerID string, col *collector) {
	var officers []models.Officer
	attempts, err := s.call(ctx, func(ctx context.Context) error {
		o, err := s.provider.LookupOfficers(ctx, issuerID)
		officers = o
		return err
	})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		col.failCompany(models.EnrichmentFailure{Key: issuerID, Stage: models.StageOfficers, Reason: s.reason(ctx, err), Attempts: attempts})
		return
	}
	col.officers(issuerID, officers)
}

func (s *Service) enrichPrices(ctx context.Context, batch []models.Identifier, asOf time.Time, col *collector) {
	var resp *models.PriceResponse
	attempts, err := s.call(ctx, func(ctx context.Context) error {
		r, err := s.provider.LookupPrices(ctx, batch, asOf)
		resp = r
		return err
	})
	if err == nil && resp != nil && resp.Pending {
		var polls int
		resp, polls, err = s.poll(ctx, resp)
		attempts += polls
	}
	if err == nil && resp == nil {
		err = fmt.Errorf("empty price response")
	}
	if err != nil {
		reason := s.reason(ctx, err)
		for _, id := range batch {
			col.fail(models.EnrichmentFailure{Key: id.Key(), Stage: models.StagePrice, Reason: reason, Attempts: attempts})
		}
		return
	}

	for _, id := range batch {
		key := id.Key()
		if q, ok := resp.Quotes[key]; ok {
			col.quote(key, q)
			continue
		}
		reason := resp.Errors[key]
		if reason == "" {
			reason = "no price returned"
		}
		col.fail(models.EnrichmentFailure{Key: key, Stage: models.StagePrice, Reason: reason, Attempts: attempts})
	}
}

// reason describes a failed lookup, reporting abandonment rather than the
// context error text
func (s *Service) reason(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return abandonReason(ctx)
	}
	return err.Error()
}

func abandonReason(ctx context.Context) string {
	if ctx.Err() == context.Canceled {
		return "cancelled"
	}
	return "deadline exceeded"
}

// safeGo launches a goroutine with panic recovery and logging
func (s *Service) safeGo(wg *sync.WaitGroup, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in enrichment goroutine")
			}
		}()
		fn()
	}()
}

func distinct(ids []models.Identifier) []models.Identifier {
	seen := make(map[string]bool, len(ids))
	out := make([]models.Identifier, 0, len(ids))
	for _, id := range ids {
		k := id.Key()
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, id)
	}
	return out
}

func batches(ids []models.Identifier, size int) [][]models.Identifier {
	var out [][]models.Identifier
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
