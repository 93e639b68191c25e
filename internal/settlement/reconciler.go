package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/domain/ports/adapter"
	"membership-checkout/internal/infra/metrics"
)

// Reconciler periodically scans stale unresolved intents and asks the
// processor what actually happened to them. This covers the client that
// crashed after the charge was captured but before settlement: the grant is
// recorded here, so the user's next status check finds it. Abandoned intents
// are resolved so the (user, resource) slot frees up for a fresh checkout.
type Reconciler struct {
	store      Store
	processor  adapter.ProcessorGateway
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old an unresolved intent must be
	log        *zerolog.Logger
}

func NewReconciler(store Store, processor adapter.ProcessorGateway, interval, staleAfter time.Duration, logger *zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Reconciler{store: store, processor: processor, interval: interval, staleAfter: staleAfter, log: logger}
}

func (w *Reconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *Reconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.store.ListUnresolvedOlderThan(ctx, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list unresolved intents")
		return
	}
	for _, intent := range stale {
		status, err := w.processor.RetrieveIntentStatus(ctx, intent.ID)
		if err != nil {
			w.log.Warn().Err(err).Str("intent_id", intent.ID).Msg("reconciler: processor status check failed")
			continue
		}
		switch status {
		case model.IntentStatusSucceeded:
			w.grant(ctx, intent)
		case model.IntentStatusCanceled, model.IntentStatusFailed:
			if err := w.store.MarkIntentStatus(ctx, intent.ID, status); err != nil {
				w.log.Error().Err(err).Str("intent_id", intent.ID).Msg("reconciler: mark intent")
			}
		}
	}
}

// grant records the settlement for a charge the client never confirmed with
// us. Idempotent against a concurrent confirm through the unique index.
func (w *Reconciler) grant(ctx context.Context, intent *model.PaymentIntent) {
	rec := &model.SettlementRecord{
		ID:         ulid.Make().String(),
		IntentID:   intent.ID,
		UserID:     intent.UserID,
		ResourceID: intent.ResourceID,
		Kind:       intent.Kind,
		GrantID:    grantID(intent.Kind),
		Amount:     intent.Amount,
		CreatedAt:  time.Now(),
	}
	err := w.store.InsertSettlement(ctx, rec)
	if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		w.log.Error().Err(err).Str("intent_id", intent.ID).Msg("reconciler: insert settlement")
		return
	}
	if err := w.store.MarkIntentStatus(ctx, intent.ID, model.IntentStatusSucceeded); err != nil {
		w.log.Error().Err(err).Str("intent_id", intent.ID).Msg("reconciler: mark intent")
	}
	if err == nil {
		metrics.IncSettlement(string(intent.Kind))
		w.log.Info().Str("intent_id", intent.ID).Str("settlement_id", rec.ID).Msg("reconciler: recovered captured charge")
	}
}
