package array

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/circuitbreaker"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/observability"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/security"
)

// ConnectionManagerConfig holds configuration for ConnectionManager.
type ConnectionManagerConfig struct {
	// Registry resolves array types to Mediator factories (required)
	Registry *Registry

	// RateLimit bounds how many new array sessions are opened per second (default: 10)
	RateLimit rate.Limit

	// Burst is the limiter burst size (default: 20)
	Burst int

	// BreakerFailures is the number of consecutive failed logins before an endpoint is skipped (default: 3)
	BreakerFailures uint32

	// BreakerTimeout is how long a failing endpoint is skipped (default: 30s)
	BreakerTimeout time.Duration

	// Metrics is optional Prometheus metrics recorder (may be nil)
	Metrics *observability.Metrics
}

// ConnectionManager hands out request-scoped Mediator sessions.
// Sessions are never pooled: every WithMediator call opens one session and closes it before returning.
type ConnectionManager struct {
	registry *Registry
	limiter  *rate.Limiter
	breaker  *circuitbreaker.EndpointBreaker
	metrics  *observability.Metrics
}

// NewConnectionManager creates a new ConnectionManager with the given configuration.
// Validates config and sets defaults for zero values.
func NewConnectionManager(config ConnectionManagerConfig) (*ConnectionManager, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("Registry is required")
	}

	if config.RateLimit == 0 {
		config.RateLimit = 10
	}
	if config.Burst == 0 {
		config.Burst = 20
	}

	metrics := config.Metrics
	breaker := circuitbreaker.NewEndpointBreaker(circuitbreaker.Config{
		ConsecutiveFailures: config.BreakerFailures,
		Timeout:             config.BreakerTimeout,
		// A refused login means the endpoint answered. A cancelled or expired
		// request says nothing about the endpoint.
		IsSuccessful: func(err error) bool {
			return IsKind(err, KindPermissionDenied) || isContextError(err)
		},
		OnStateChange: func(endpoint string, from, to gobreaker.State) {
			if metrics != nil {
				metrics.RecordBreakerState(endpoint, to.String())
			}
			if to == gobreaker.StateOpen {
				security.GetLogger().LogCircuitBreakerOpen(endpoint)
			}
		},
	})

	return &ConnectionManager{
		registry: config.Registry,
		limiter:  rate.NewLimiter(config.RateLimit, config.Burst),
		breaker:  breaker,
		metrics:  metrics,
	}, nil
}

// WithMediator opens a session for arrayType, runs fn with it and closes the session
// on every exit path. The session never outlives the call.
func (cm *ConnectionManager) WithMediator(ctx context.Context, arrayType string, creds Credentials, fn func(Mediator) error) error {
	mediator, err := cm.acquire(ctx, arrayType, creds)
	if cm.metrics != nil {
		cm.metrics.RecordMediatorAcquire(arrayType, err)
	}
	if err != nil {
		return err
	}

	defer func() {
		if cerr := mediator.Close(); cerr != nil {
			klog.Warningf("Failed to close %s session: %v", arrayType, cerr)
		}
		if cm.metrics != nil {
			cm.metrics.RecordMediatorRelease()
		}
		klog.V(4).Infof("Released %s session", arrayType)
	}()

	return fn(mediator)
}

// BreakerState returns the breaker state for one management endpoint
func (cm *ConnectionManager) BreakerState(endpoint string) string {
	return cm.breaker.State(endpoint)
}

// SupportedArrayTypes lists the families this manager can open sessions for
func (cm *ConnectionManager) SupportedArrayTypes() []string {
	return cm.registry.Types()
}

func (cm *ConnectionManager) acquire(ctx context.Context, arrayType string, creds Credentials) (Mediator, error) {
	factory, ok := cm.registry.Lookup(arrayType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedArrayType, arrayType)
	}

	if len(creds.ManagementAddresses) == 0 {
		return nil, NewError(KindConnectionFailed, "no management address configured")
	}

	if err := cm.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, NewError(KindConnectionFailed, "rate limiter rejected session").Wrap(err)
	}

	audit := security.GetLogger()
	var lastErr error
	allOpen := true

	for _, addr := range creds.ManagementAddresses {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		target := Target{Address: addr, Username: creds.Username, Password: creds.Password}
		var mediator Mediator

		audit.LogArrayLoginAttempt(creds.Username, addr)
		err := cm.breaker.Execute(addr, func() error {
			var ferr error
			mediator, ferr = factory(ctx, target)
			return ferr
		})

		if err == nil {
			audit.LogArrayLoginSuccess(creds.Username, addr)
			klog.V(2).Infof("Opened %s session on %s as %s", arrayType, addr, creds.Username)
			return mediator, nil
		}

		if errors.Is(err, circuitbreaker.ErrOpen) {
			klog.V(4).Infof("Skipping %s endpoint %s: %v", arrayType, addr, err)
			lastErr = err
			continue
		}
		if isContextError(err) {
			return nil, err
		}
		allOpen = false

		audit.LogArrayLoginFailure(creds.Username, addr, err)
		if IsKind(err, KindPermissionDenied) {
			// Other endpoints belong to the same array and would refuse the same credentials
			return nil, err
		}

		klog.Warningf("Failed to open %s session on %s: %v", arrayType, addr, err)
		lastErr = err
	}

	if allOpen {
		return nil, fmt.Errorf("%w: %v", ErrArrayUnavailable, lastErr)
	}
	if _, ok := KindOf(lastErr); ok {
		return nil, lastErr
	}
	return nil, NewError(KindConnectionFailed, "no management endpoint accepted a session").Wrap(lastErr)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
