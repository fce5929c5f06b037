package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"k8s.io/klog/v2"
)

const (
	// DefaultConsecutiveFailures is the number of failed logins before an endpoint is skipped
	DefaultConsecutiveFailures = 3

	// DefaultTimeout is how long an endpoint stays open before one probe is allowed
	DefaultTimeout = 30 * time.Second

	// DefaultInterval is the cyclic period of closed state to clear failure counts
	DefaultInterval = 1 * time.Minute
)

// ErrOpen is returned when the endpoint's breaker rejects the call
var ErrOpen = errors.New("circuit breaker open")

// Config tunes EndpointBreaker
type Config struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration
	Interval            time.Duration

	// IsSuccessful classifies errors that must not count as endpoint failures,
	// e.g. the array answered but rejected the credentials (optional)
	IsSuccessful func(err error) bool

	// OnStateChange is invoked after every transition (optional)
	OnStateChange func(endpoint string, from, to gobreaker.State)
}

// EndpointBreaker manages one circuit breaker per array management endpoint
type EndpointBreaker struct {
	config   Config
	breakers map[string]*gobreaker.CircuitBreaker
	mu       sync.RWMutex
}

// NewEndpointBreaker creates a per-endpoint breaker manager, filling zero values with defaults
func NewEndpointBreaker(config Config) *EndpointBreaker {
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = DefaultConsecutiveFailures
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	return &EndpointBreaker{
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// getBreaker returns or creates the circuit breaker for an endpoint
func (eb *EndpointBreaker) getBreaker(endpoint string) *gobreaker.CircuitBreaker {
	eb.mu.RLock()
	cb, exists := eb.breakers[endpoint]
	eb.mu.RUnlock()

	if exists {
		return cb
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, exists := eb.breakers[endpoint]; exists {
		return cb
	}

	threshold := eb.config.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1, // Only 1 request allowed in half-open state
		Interval:    eb.config.Interval,
		Timeout:     eb.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if eb.config.IsSuccessful != nil {
				return eb.config.IsSuccessful(err)
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			klog.Infof("Circuit breaker for array endpoint %s: %s -> %s", name, from, to)
			if eb.config.OnStateChange != nil {
				eb.config.OnStateChange(name, from, to)
			}
		},
	}

	cb = gobreaker.NewCircuitBreaker(settings)
	eb.breakers[endpoint] = cb
	klog.V(4).Infof("Created circuit breaker for array endpoint %s", endpoint)
	return cb
}

// Execute runs fn under the endpoint's breaker.
// Returns ErrOpen (wrapped) when the breaker is open or a half-open probe is already running.
func (eb *EndpointBreaker) Execute(endpoint string, fn func() error) error {
	cb := eb.getBreaker(endpoint)

	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &OpenError{Endpoint: endpoint, State: cb.State()}
	}
	return err
}

// Reset forgets the breaker state of an endpoint
func (eb *EndpointBreaker) Reset(endpoint string) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.breakers[endpoint]; exists {
		delete(eb.breakers, endpoint)
		klog.Infof("Circuit breaker reset for array endpoint %s", endpoint)
		return true
	}
	return false
}

// State returns the current state of the breaker for an endpoint.
// Returns "closed" if no breaker exists (default safe state).
func (eb *EndpointBreaker) State(endpoint string) string {
	eb.mu.RLock()
	cb, exists := eb.breakers[endpoint]
	eb.mu.RUnlock()

	if !exists {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}

// OpenError reports a call rejected by an open or half-open breaker
type OpenError struct {
	Endpoint string
	State    gobreaker.State
}

func (e *OpenError) Error() string {
	return "array endpoint " + e.Endpoint + " circuit breaker is " + e.State.String()
}

func (e *OpenError) Unwrap() error {
	return ErrOpen
}
