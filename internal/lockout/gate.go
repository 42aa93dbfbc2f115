package lockout

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"taskvoice/internal/domain"
)

// Config controls the unlock gate.
type Config struct {
	Enabled         bool
	Secret          string
	Level1Duration  time.Duration
	Level2Duration  time.Duration
	LockoutDuration time.Duration
	CountdownStep   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Level1Duration <= 0 {
		c.Level1Duration = 3 * time.Second
	}
	if c.Level2Duration <= 0 {
		c.Level2Duration = time.Second
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = 60 * time.Second
	}
	if c.CountdownStep <= 0 {
		c.CountdownStep = time.Second
	}
	return c
}

// Gate requires a spoken passphrase before the assistant accepts input.
// Misses escalate from a short soft failure to a timed lockout.
type Gate struct {
	cfg      Config
	secret   string
	onChange func(domain.LockState)

	mu         sync.Mutex
	locked     bool
	status     domain.LockStatus
	attempts   int
	countdown  int
	generation uint64
	timer      *time.Timer
	stopTicker chan struct{}
}

// NewGate builds a gate. It starts locked only when enabled with a non-empty
// secret. onChange may be nil.
func NewGate(cfg Config, onChange func(domain.LockState)) *Gate {
	cfg = cfg.withDefaults()
	secret := NormalizeAttempt(cfg.Secret)
	return &Gate{
		cfg:      cfg,
		secret:   secret,
		onChange: onChange,
		locked:   cfg.Enabled && secret != "",
		status:   domain.LockStatusIdle,
	}
}

// NormalizeAttempt lowercases text and drops everything except ASCII letters
// and single spaces.
func NormalizeAttempt(text string) string {
	stripped := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, text)
	return strings.Join(strings.Fields(stripped), " ")
}

// Locked reports whether the passphrase is still required.
func (g *Gate) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked
}

// Blocked reports whether a failure indicator or lockout is active.
func (g *Gate) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status != domain.LockStatusIdle
}

// State returns a snapshot for the UI.
func (g *Gate) State() domain.LockState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

// Attempt checks a committed transcript against the secret phrase. It returns
// true when the gate is (now) unlocked. Attempts made while blocked are
// ignored.
func (g *Gate) Attempt(text string) bool {
	g.mu.Lock()
	if !g.locked {
		g.mu.Unlock()
		return true
	}
	if g.status != domain.LockStatusIdle {
		g.mu.Unlock()
		return false
	}

	g.generation++
	g.stopTimersLocked()

	if strings.Contains(NormalizeAttempt(text), g.secret) {
		g.locked = false
		g.status = domain.LockStatusIdle
		g.attempts = 0
		g.countdown = 0
		state := g.stateLocked()
		g.mu.Unlock()
		g.notify(state)
		return true
	}

	g.attempts++
	gen := g.generation
	switch g.attempts {
	case 1:
		g.status = domain.LockStatusLevel1
		g.timer = time.AfterFunc(g.cfg.Level1Duration, func() { g.release(gen) })
	case 2:
		g.status = domain.LockStatusLevel2
		g.timer = time.AfterFunc(g.cfg.Level2Duration, func() { g.release(gen) })
	default:
		g.status = domain.LockStatusLockout
		g.countdown = int(g.cfg.LockoutDuration / g.cfg.CountdownStep)
		stop := make(chan struct{})
		g.stopTicker = stop
		go g.countDown(gen, stop)
		g.timer = time.AfterFunc(g.cfg.LockoutDuration, func() { g.release(gen) })
	}
	state := g.stateLocked()
	g.mu.Unlock()

	g.notify(state)
	return false
}

// Close stops all pending timers.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generation++
	g.stopTimersLocked()
}

func (g *Gate) release(gen uint64) {
	g.mu.Lock()
	if gen != g.generation {
		g.mu.Unlock()
		return
	}
	if g.status == domain.LockStatusLockout {
		g.attempts = 0
		g.countdown = 0
		if g.stopTicker != nil {
			close(g.stopTicker)
			g.stopTicker = nil
		}
	}
	g.status = domain.LockStatusIdle
	g.timer = nil
	state := g.stateLocked()
	g.mu.Unlock()

	g.notify(state)
}

func (g *Gate) countDown(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(g.cfg.CountdownStep)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		g.mu.Lock()
		if gen != g.generation || g.status != domain.LockStatusLockout {
			g.mu.Unlock()
			return
		}
		if g.countdown > 0 {
			g.countdown--
		}
		state := g.stateLocked()
		g.mu.Unlock()

		g.notify(state)
	}
}

func (g *Gate) stopTimersLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.stopTicker != nil {
		close(g.stopTicker)
		g.stopTicker = nil
	}
}

func (g *Gate) stateLocked() domain.LockState {
	return domain.LockState{
		Enabled:   g.cfg.Enabled,
		Locked:    g.locked,
		Status:    g.status,
		Attempts:  g.attempts,
		Countdown: g.countdown,
	}
}

func (g *Gate) notify(state domain.LockState) {
	if g.onChange != nil {
		g.onChange(state)
	}
}
