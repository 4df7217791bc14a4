// internal/chaos/experiments.go
package chaos

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"lostfound/internal/apperr"
	"lostfound/internal/claims"
	"lostfound/internal/evidence"
	"lostfound/internal/items"
	"lostfound/internal/notify"
	"lostfound/internal/platform/db"
	"lostfound/internal/platform/lock"
)

// probeCampus keeps experiment data out of real campus listings.
const probeCampus = 9999

// Env is the deployment an experiment runs against.
type Env struct {
	DB       *db.DB
	Locks    *lock.Keyed
	Items    items.Service
	Claims   claims.Service
	Resolver claims.Resolver
}

// Settings sizes the default experiments.
type Settings struct {
	Concurrency int
	Observe     time.Duration
	DeadWebhook string
}

// RegisterDefaults registers the predefined experiments.
func (e *Engine) RegisterDefaults(s Settings) {
	e.Register(e.ApprovalRaceExperiment(s.Concurrency, s.Observe))
	e.Register(e.SubmitStormExperiment(s.Concurrency, s.Observe))
	if s.DeadWebhook != "" {
		e.Register(e.NotificationOutageExperiment(s.DeadWebhook, s.Concurrency, s.Observe))
	}
}

// ApprovalRaceExperiment approves every conflicted claim on one item at
// once, half through dispute resolution and half through direct decisions.
func (e *Engine) ApprovalRaceExperiment(concurrency int, observe time.Duration) Experiment {
	var (
		probe      atomic.Value
		unexpected atomic.Int64
	)
	probe.Store(uuid.Nil)

	return Experiment{
		Name:       "concurrent-approval-race",
		Hypothesis: "At most one claim per found item is ever approved when staff resolve the same dispute simultaneously",
		SteadyState: []Metric{
			e.multipleWinners(),
			{
				Name: "probe_item_winners",
				Query: func(ctx context.Context) (float64, error) {
					return e.count(ctx, `SELECT COUNT(*) FROM claims WHERE found_item_id = ? AND status IN ('approved', 'returned')`, probe.Load())
				},
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
			counterMetric("unexpected_errors", &unexpected),
		},
		Method: []Action{
			{
				Type:   "concurrent-approvals",
				Target: "claims",
				Execute: func(ctx context.Context) error {
					item, err := e.storedProbe(ctx, e.env.Items)
					if err != nil {
						return err
					}
					probe.Store(item.ID)

					ids := make([]uuid.UUID, 0, concurrency)
					for i := range max(concurrency, 2) {
						c, err := e.env.Claims.SubmitClaim(ctx, probeClaim(item.ID, i))
						if err != nil {
							return err
						}
						ids = append(ids, c.ID)
					}

					var wg sync.WaitGroup
					for i, id := range ids {
						wg.Add(1)
						go func() {
							defer wg.Done()
							staff := fmt.Sprintf("chaos-staff-%d", i)
							var err error
							if i%2 == 0 {
								_, err = e.env.Resolver.Resolve(ctx, item.ID, id, staff, "chaos approval race")
							} else {
								_, err = e.env.Claims.Decide(ctx, id, staff, claims.Approve, "chaos approval race")
							}
							if !expected(err) {
								unexpected.Add(1)
								e.logger.Error().Err(err).Str("claim_id", id.String()).Msg("unexpected approval failure")
							}
						}()
					}
					wg.Wait()
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "probe_item_winners",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one racing approval should win",
			},
			{
				Metric:    "items_with_multiple_winners",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "No found item may have two approved claims",
			},
			{
				Metric:    "unexpected_errors",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Losing approvals should fail with a business error",
			},
		},
		Duration:    observe,
		BlastRadius: 0.1,
	}
}

// SubmitStormExperiment has many claimants claim the same item at once.
func (e *Engine) SubmitStormExperiment(concurrency int, observe time.Duration) Experiment {
	var unexpected atomic.Int64

	return Experiment{
		Name:       "claim-submission-storm",
		Hypothesis: "Simultaneous claims on one item all end up conflicted and the item stays claimed",
		SteadyState: []Metric{
			{
				Name: "pending_on_contested_items",
				Query: func(ctx context.Context) (float64, error) {
					return e.count(ctx, `
						SELECT COUNT(*) FROM claims c
						WHERE c.status = 'pending'
						  AND (SELECT COUNT(*) FROM claims o
						       WHERE o.found_item_id = c.found_item_id
						         AND o.status IN ('pending', 'conflicted')) > 1`)
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			{
				Name: "claimed_items_without_live_claims",
				Query: func(ctx context.Context) (float64, error) {
					return e.count(ctx, `
						SELECT COUNT(*) FROM found_items f
						WHERE f.status = 'claimed'
						  AND NOT EXISTS (SELECT 1 FROM claims c
						                  WHERE c.found_item_id = f.id
						                    AND c.status IN ('pending', 'conflicted', 'approved'))`)
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			counterMetric("unexpected_errors", &unexpected),
		},
		Method: []Action{
			{
				Type:   "concurrent-submissions",
				Target: "claims",
				Execute: func(ctx context.Context) error {
					item, err := e.storedProbe(ctx, e.env.Items)
					if err != nil {
						return err
					}
					var wg sync.WaitGroup
					for i := range concurrency {
						wg.Add(1)
						go func() {
							defer wg.Done()
							if _, err := e.env.Claims.SubmitClaim(ctx, probeClaim(item.ID, i)); !expected(err) {
								unexpected.Add(1)
								e.logger.Error().Err(err).Int("claimant", i).Msg("unexpected submission failure")
							}
						}()
					}
					wg.Wait()
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "pending_on_contested_items",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Every claim on a contested item should be conflicted",
			},
			{
				Metric:    "claimed_items_without_live_claims",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "A claimed item must carry at least one live claim",
			},
			{
				Metric:    "unexpected_errors",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Rejected submissions should fail with a business error",
			},
		},
		Duration:    observe,
		BlastRadius: 0.1,
	}
}

// NotificationOutageExperiment points claimant notifications at a dead
// endpoint and keeps deciding claims.
func (e *Engine) NotificationOutageExperiment(deadURL string, decisions int, observe time.Duration) Experiment {
	webhook := notify.NewWebhook(deadURL, 500*time.Millisecond, e.logger)
	processor := claims.NewService(e.env.DB, e.env.Locks, webhook, nil, e.logger)
	var failures atomic.Int64

	return Experiment{
		Name:       "notification-outage",
		Hypothesis: "Claim decisions keep succeeding while the notification endpoint is down and the breaker opens",
		SteadyState: []Metric{
			counterMetric("decision_failures", &failures),
			{
				Name: "breaker_open",
				Query: func(context.Context) (float64, error) {
					if webhook.State() == gobreaker.StateOpen {
						return 1, nil
					}
					return 0, nil
				},
				Threshold: Threshold{Operator: ">=", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "kill-endpoint",
				Target: "notify-webhook",
				Execute: func(ctx context.Context) error {
					for i := range decisions {
						item, err := e.storedProbe(ctx, e.env.Items)
						if err != nil {
							return err
						}
						c, err := processor.SubmitClaim(ctx, probeClaim(item.ID, i))
						if err == nil {
							_, err = processor.Decide(ctx, c.ID, "chaos-staff", claims.Approve, "")
						}
						if err != nil {
							failures.Add(1)
							e.logger.Error().Err(err).Msg("decision failed during notification outage")
						}
					}
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "decision_failures",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Decisions must not depend on notification delivery",
			},
			{
				Metric:    "breaker_open",
				Condition: func(v float64) bool { return v == 1 || decisions < 5 },
				Message:   "The webhook breaker should open after repeated failures",
			},
		},
		Duration:    observe,
		BlastRadius: 0.3,
	}
}

func (e *Engine) multipleWinners() Metric {
	return Metric{
		Name: "items_with_multiple_winners",
		Query: func(ctx context.Context) (float64, error) {
			return e.count(ctx, `
				SELECT COUNT(*) FROM (
					SELECT found_item_id FROM claims
					WHERE status IN ('approved', 'returned')
					GROUP BY found_item_id
					HAVING COUNT(*) > 1
				) w`)
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

func (e *Engine) count(ctx context.Context, query string, args ...any) (float64, error) {
	var n int64
	if err := e.env.DB.GetContext(ctx, &n, e.env.DB.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to sample metric: %w", err)
	}
	return float64(n), nil
}

func counterMetric(name string, c *atomic.Int64) Metric {
	return Metric{
		Name:      name,
		Query:     func(context.Context) (float64, error) { return float64(c.Load()), nil },
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

func (e *Engine) storedProbe(ctx context.Context, svc items.Service) (*items.FoundItem, error) {
	item, err := svc.CreateFoundItem(ctx, "chaos-finder", items.NewFoundItem{
		Category:  "chaos-probe",
		Campus:    probeCampus,
		Title:     "chaos probe",
		FoundDate: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create probe item: %w", err)
	}
	return svc.StoreFoundItem(ctx, item.ID, "chaos-staff", "chaos shelf")
}

func probeClaim(foundItemID uuid.UUID, i int) claims.SubmitClaimRequest {
	return claims.SubmitClaimRequest{
		FoundItemID: foundItemID,
		Claimant:    fmt.Sprintf("chaos-claimant-%d", i),
		Evidence:    []evidence.Submission{{Title: "probe", Description: "chaos experiment claim"}},
	}
}

// expected reports whether err is nil or an ordinary business refusal.
func expected(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindConflict, apperr.KindInvalidState, apperr.KindInvalidArgument, apperr.KindBusy:
		return true
	}
	return err == nil
}
