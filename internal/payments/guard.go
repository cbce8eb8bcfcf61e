package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

const defaultCallbackTTL = 24 * time.Hour

// MarkerStore is the subset of the redis client the guard needs.
type MarkerStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CallbackKey(parts ...string) string
}

// CallbackGuard short-circuits provider retries for callbacks that already
// succeeded. Markers are written only after success, so a failed or in-flight
// callback is never reported as handled. The service stays idempotent without it.
type CallbackGuard struct {
	store MarkerStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewCallbackGuard(store MarkerStore, ttl time.Duration, logg *logger.Logger) (*CallbackGuard, error) {
	if store == nil {
		return nil, fmt.Errorf("marker store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ttl <= 0 {
		ttl = defaultCallbackTTL
	}
	return &CallbackGuard{store: store, ttl: ttl, logg: logg}, nil
}

// ApprovalKey scopes an approval marker to the order and the relaying user, so
// a payment id replayed against another order or by another user is not a
// duplicate.
func ApprovalKey(event ApprovalEvent) []string {
	return []string{phaseApprove, event.OrderID.String(), event.ActorID.String(), event.ExternalPaymentID}
}

func CompletionKey(event CompletionEvent) []string {
	return []string{phaseComplete, event.OrderID.String(), event.ActorID.String(), event.ExternalPaymentID, event.TransactionID}
}

// Run executes fn unless a success marker for keyParts exists. The returned
// bool reports whether the call was skipped as a duplicate.
func (g *CallbackGuard) Run(ctx context.Context, keyParts []string, fn func(ctx context.Context) error) (bool, error) {
	key := g.store.CallbackKey(keyParts...)
	_, err := g.store.Get(ctx, key)
	switch {
	case err == nil:
		g.logg.Info(g.logg.WithField(ctx, "key", key), "duplicate callback skipped")
		return true, nil
	case !errors.Is(err, redis.ErrNotFound):
		g.logg.Warn(g.logg.WithFields(ctx, map[string]any{"key": key, "error": err.Error()}), "callback marker unavailable")
	}

	if err := fn(ctx); err != nil {
		return false, err
	}
	if err := g.store.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl); err != nil {
		g.logg.Warn(g.logg.WithFields(ctx, map[string]any{"key": key, "error": err.Error()}), "failed to write callback marker")
	}
	return false, nil
}
