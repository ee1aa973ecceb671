package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/lineflow/scheduler/internal/domain"
	lferrors "github.com/lineflow/scheduler/internal/errors"
)

var errCircuitOpen = errors.New("gateway: circuit breaker open")

// TokenSource refreshes the bearer token used to authenticate against the
// manufacturing API. The retrying Gateway calls Refresh exactly once, and
// only after an auth-expired error, per spec.md §7.
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) error
}

// Retrying wraps a Gateway with the propagation policy spec.md §7 describes:
// transient errors retry with capped exponential backoff (max 3 attempts),
// auth-expired errors trigger one silent token refresh and retry, and
// permanent errors and PlanningErrors pass straight through.
type Retrying struct {
	inner   Gateway
	tokens  TokenSource
	timeout time.Duration
	breaker *circuitBreaker
}

// NewRetrying wraps inner with the default 30s per-call timeout from
// spec.md §5.
func NewRetrying(inner Gateway, tokens TokenSource) *Retrying {
	return &Retrying{inner: inner, tokens: tokens, timeout: 30 * time.Second}
}

// WithTimeout overrides the default per-call timeout.
func (r *Retrying) WithTimeout(d time.Duration) *Retrying {
	r.timeout = d
	return r
}

// WithCircuitBreaker stops calling inner after failureThreshold consecutive
// failures, rejecting calls outright for cooldownPeriod before probing
// again. Disabled by default: nil breaker means every call is attempted.
func (r *Retrying) WithCircuitBreaker(failureThreshold int, cooldownPeriod time.Duration) *Retrying {
	r.breaker = newCircuitBreaker(failureThreshold, cooldownPeriod)
	return r
}

// call runs fn with the configured timeout and the retry/auth-refresh
// policy. fn should be a thin closure over one Gateway method.
func (r *Retrying) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if r.breaker != nil && !r.breaker.allow() {
		return &lferrors.GatewayError{Op: op, Transient: true, Err: errCircuitOpen}
	}

	refreshedOnce := false

	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			err := fn(callCtx)
			if err == nil {
				return nil
			}

			var gwErr *lferrors.GatewayError
			if errors.As(err, &gwErr) {
				if gwErr.AuthExpired && !refreshedOnce {
					refreshedOnce = true
					if refreshErr := r.tokens.Refresh(ctx); refreshErr != nil {
						return retry.Unrecoverable(refreshErr)
					}
					// One retry against the refreshed token; a second
					// auth-expired is treated as permanent.
					return err
				}
				if gwErr.AuthExpired || gwErr.Permanent {
					return retry.Unrecoverable(err)
				}
				return err // transient: let retry-go's backoff handle it
			}
			// Unknown error shape: treat as permanent, don't spin on it.
			return retry.Unrecoverable(err)
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("gateway: retrying %s after attempt %d: %v", op, n+1, err)
		}),
	)

	if r.breaker != nil {
		if err != nil {
			r.breaker.recordFailure()
		} else {
			r.breaker.recordSuccess()
		}
	}
	return err
}

func (r *Retrying) ListSalesOrders(ctx context.Context, status domain.SalesOrderStatus) ([]domain.SalesOrder, error) {
	var out []domain.SalesOrder
	err := r.call(ctx, "ListSalesOrders", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.inner.ListSalesOrders(ctx, status)
		return innerErr
	})
	return out, err
}

func (r *Retrying) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	var out domain.Product
	err := r.call(ctx, "GetProduct", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.inner.GetProduct(ctx, productID)
		return innerErr
	})
	return out, err
}

func (r *Retrying) UpdateSalesOrder(ctx context.Context, id string, update SalesOrderUpdate) error {
	return r.call(ctx, "UpdateSalesOrder", func(ctx context.Context) error {
		return r.inner.UpdateSalesOrder(ctx, id, update)
	})
}

func (r *Retrying) CreateProductionOrder(ctx context.Context, po NewProductionOrder) (string, error) {
	var id string
	err := r.call(ctx, "CreateProductionOrder", func(ctx context.Context) error {
		var innerErr error
		id, innerErr = r.inner.CreateProductionOrder(ctx, po)
		return innerErr
	})
	return id, err
}

func (r *Retrying) ScheduleProductionOrder(ctx context.Context, poID string) ([]domain.ProductionPhase, error) {
	var phases []domain.ProductionPhase
	err := r.call(ctx, "ScheduleProductionOrder", func(ctx context.Context) error {
		var innerErr error
		phases, innerErr = r.inner.ScheduleProductionOrder(ctx, poID)
		return innerErr
	})
	return phases, err
}

func (r *Retrying) UpdatePhaseWindow(ctx context.Context, phaseID string, startsAt, endsAt time.Time) error {
	return r.call(ctx, "UpdatePhaseWindow", func(ctx context.Context) error {
		return r.inner.UpdatePhaseWindow(ctx, phaseID, startsAt, endsAt)
	})
}

func (r *Retrying) UpdatePOWindow(ctx context.Context, poID string, startsAt, endsAt time.Time) error {
	return r.call(ctx, "UpdatePOWindow", func(ctx context.Context) error {
		return r.inner.UpdatePOWindow(ctx, poID, startsAt, endsAt)
	})
}

func (r *Retrying) ConfirmProductionOrder(ctx context.Context, poID string) error {
	return r.call(ctx, "ConfirmProductionOrder", func(ctx context.Context) error {
		return r.inner.ConfirmProductionOrder(ctx, poID)
	})
}

func (r *Retrying) DeleteProductionOrder(ctx context.Context, poID string) error {
	return r.call(ctx, "DeleteProductionOrder", func(ctx context.Context) error {
		return r.inner.DeleteProductionOrder(ctx, poID)
	})
}

func (r *Retrying) GetProductionOrder(ctx context.Context, poID string) (domain.ProductionOrder, error) {
	var out domain.ProductionOrder
	err := r.call(ctx, "GetProductionOrder", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.inner.GetProductionOrder(ctx, poID)
		return innerErr
	})
	return out, err
}

func (r *Retrying) ListProductionOrders(ctx context.Context, statuses ...domain.ProductionOrderStatus) ([]domain.ProductionOrder, error) {
	var out []domain.ProductionOrder
	err := r.call(ctx, "ListProductionOrders", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.inner.ListProductionOrders(ctx, statuses...)
		return innerErr
	})
	return out, err
}

var _ Gateway = (*Retrying)(nil)
