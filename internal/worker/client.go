package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/slidecraft/orchestrator/internal/apperr"
	"github.com/slidecraft/orchestrator/internal/domain"
)

// Client is the single entry point the engine uses to invoke a worker; it
// layers timeout, retry, circuit breaking and budget enforcement over a
// set of per-kind Transports (§4.2).
type Client struct {
	transports map[string]Transport
	breakers   *Registry
	retry      RetryPolicy
	log        zerolog.Logger
}

// NewClient builds a dispatcher over the given kind->Transport map.
func NewClient(transports map[string]Transport, breakerCfg CircuitBreakerConfig, retry RetryPolicy, log zerolog.Logger) *Client {
	return &Client{
		transports: transports,
		breakers:   NewRegistry(breakerCfg),
		retry:      retry,
		log:        log.With().Str("component", "worker_client").Logger(),
	}
}

// Breakers exposes the circuit breaker registry for the debug endpoint.
func (c *Client) Breakers() *Registry { return c.breakers }

// Invoke dispatches one worker call through the full reliability envelope.
// budget, when non-nil, gates the call on the session's remaining token
// allowance before it is attempted.
func (c *Client) Invoke(ctx context.Context, workerName string, input any, meta CallMeta, budget *domain.Budget) (Result, error) {
	transport, ok := c.transports[workerName]
	if !ok {
		return Result{}, apperr.Validation(meta.StepID, "no transport registered for worker "+workerName, nil)
	}

	breaker := c.breakers.For(workerName)
	if !breaker.Allow() {
		return Result{}, apperr.WorkerUnavailable(workerName, meta.StepID, "circuit open", nil)
	}

	if budget != nil {
		projected := estimateProjectedTokens(input)
		if !budget.ReserveTokens(projected) {
			return Result{}, apperr.BudgetExceeded(meta.StepID, "tokens", budget.TokensRemaining(), projected)
		}
	}

	timeout := TimeoutFor(workerName)
	start := time.Now()

	var lastErr error
	attempts := 0
	for attempts = 1; attempts <= c.retry.MaxAttempts; attempts++ {
		if attempts > 1 {
			select {
			case <-ctx.Done():
				return Result{}, apperr.Cancelled(meta.StepID, "cancelled during retry backoff for worker "+workerName)
			case <-time.After(c.retry.DelayForAttempt(attempts)):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := transport.Call(callCtx, workerName, input, meta)
		cancel()

		if err == nil {
			breaker.RecordSuccess()
			result.DurationMS = time.Since(start).Milliseconds()
			result.Attempts = attempts
			if budget != nil {
				budget.RecordActualTokens(estimateProjectedTokens(input), result.Usage.TotalTokens)
			}
			return result, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return Result{}, apperr.Cancelled(meta.StepID, "cancelled during worker call "+workerName)
		}

		ce, ok := err.(*CallError)
		if !ok || !ce.Retryable {
			breaker.RecordFailure()
			return Result{}, translateCallError(err, workerName, meta.StepID)
		}

		c.log.Warn().Str("worker", workerName).Int("attempt", attempts).Err(err).Msg("worker call failed, retrying")
	}

	breaker.RecordFailure()
	return Result{}, translateCallError(lastErr, workerName, meta.StepID)
}

func translateCallError(err error, workerName, stepID string) error {
	ce, ok := err.(*CallError)
	if !ok {
		return apperr.Internal("worker "+workerName+": "+err.Error(), err)
	}
	switch ce.Code {
	case ErrBadRequest, ErrSchema:
		return apperr.Validation(stepID, ce.Message, ce)
	case ErrAuth:
		return apperr.WorkerUnavailable(workerName, stepID, "auth failure: "+ce.Message, ce)
	case ErrTimeout, ErrRateLimit, ErrTransient:
		return apperr.WorkerTransient(workerName, stepID, ce.Message, ce)
	default:
		return apperr.Internal(ce.Message, ce)
	}
}

// estimateProjectedTokens is a conservative pre-call budget projection; it
// is reconciled against actual usage once the call returns.
func estimateProjectedTokens(input any) int64 {
	if s, ok := input.(string); ok {
		return EstimateTokens(s)
	}
	return EstimateTokens(jsonApprox(input))
}

func jsonApprox(v any) string {
	if v == nil {
		return ""
	}
	if m, ok := v.(map[string]any); ok {
		total := 0
		for k, val := range m {
			total += len(k)
			if s, ok := val.(string); ok {
				total += len(s)
			} else {
				total += 16
			}
		}
		return string(make([]byte, total))
	}
	return ""
}
