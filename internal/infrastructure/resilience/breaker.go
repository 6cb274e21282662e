package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrOpen       = errors.New("circuit breaker is open")
	ErrProbeLimit = errors.New("circuit breaker is probing, too many requests")
)

// State is a breaker position.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText reports the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Policy configures a breaker. Zero fields take the defaults noted.
type Policy struct {
	Probes   uint32        // trial requests while half-open; 1
	Window   time.Duration // closed-state counting window; 60s
	Cooldown time.Duration // time spent open before probing; 60s

	// Trip decides, after a failure while closed, whether to open. The
	// default trips after five consecutive failures.
	Trip func(Counts) bool

	// OnChange observes transitions. It runs with the breaker locked and
	// must not call back into it.
	OnChange func(key string, from, to State)

	Now func() time.Time
}

func (p Policy) withDefaults() Policy {
	if p.Probes == 0 {
		p.Probes = 1
	}
	if p.Window <= 0 {
		p.Window = 60 * time.Second
	}
	if p.Cooldown <= 0 {
		p.Cooldown = 60 * time.Second
	}
	if p.Trip == nil {
		p.Trip = func(c Counts) bool { return c.ConsecutiveFailures >= 5 }
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return p
}

// Counts are the outcomes seen in the current window.
type Counts struct {
	Requests             uint32
	Successes            uint32
	Failures             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) record(success bool) {
	if success {
		c.Successes++
		c.ConsecutiveSuccesses++
		c.ConsecutiveFailures = 0
		return
	}
	c.Failures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker stops calls to a failing dependency for a cooldown, then lets a
// few probes through before closing again.
type Breaker struct {
	key    string
	policy Policy

	mu     sync.Mutex
	state  State
	epoch  uint64 // bumped on every transition and window reset
	counts Counts
	until  time.Time
}

// New creates a closed breaker.
func New(key string, policy Policy) *Breaker {
	policy = policy.withDefaults()
	return &Breaker{
		key:    key,
		policy: policy,
		until:  policy.Now().Add(policy.Window),
	}
}

func (b *Breaker) Key() string { return b.key }

// State returns the current state, applying any due time-based transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(b.policy.Now())
	return b.state
}

// Counts returns a copy of the current window's counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Allow reserves a request slot. The caller reports the outcome by calling
// done; calls after the first are ignored, as are outcomes that arrive
// after the breaker has moved on.
func (b *Breaker) Allow() (done func(success bool), err error) {
	b.mu.Lock()
	b.advance(b.policy.Now())
	switch {
	case b.state == StateOpen:
		b.mu.Unlock()
		return nil, ErrOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.policy.Probes:
		b.mu.Unlock()
		return nil, ErrProbeLimit
	}
	b.counts.Requests++
	epoch := b.epoch
	b.mu.Unlock()

	var once sync.Once
	return func(success bool) {
		once.Do(func() { b.report(epoch, success) })
	}, nil
}

// Do runs fn if the breaker admits it. A panic counts as a failure and is
// re-raised.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	done, err := b.Allow()
	if err != nil {
		var zero T
		return zero, err
	}
	defer func() {
		if r := recover(); r != nil {
			done(false)
			panic(r)
		}
	}()

	v, err := fn()
	done(err == nil)
	return v, err
}

func (b *Breaker) report(epoch uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.policy.Now()
	b.advance(now)
	if b.epoch != epoch {
		return
	}
	b.counts.record(success)

	switch b.state {
	case StateClosed:
		if !success && b.policy.Trip(b.counts) {
			b.moveTo(StateOpen, now)
		}
	case StateHalfOpen:
		if !success {
			b.moveTo(StateOpen, now)
		} else if b.counts.ConsecutiveSuccesses >= b.policy.Probes {
			b.moveTo(StateClosed, now)
		}
	}
}

// advance applies window expiry while closed and cooldown expiry while open.
func (b *Breaker) advance(now time.Time) {
	switch {
	case b.state == StateClosed && now.After(b.until):
		b.reset(now)
	case b.state == StateOpen && now.After(b.until):
		b.moveTo(StateHalfOpen, now)
	}
}

func (b *Breaker) moveTo(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.reset(now)
	if b.policy.OnChange != nil {
		b.policy.OnChange(b.key, from, to)
	}
}

func (b *Breaker) reset(now time.Time) {
	b.epoch++
	b.counts = Counts{}
	switch b.state {
	case StateClosed:
		b.until = now.Add(b.policy.Window)
	case StateOpen:
		b.until = now.Add(b.policy.Cooldown)
	default:
		b.until = time.Time{} // half-open lasts until the probes decide
	}
}
