package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"go.uber.org/zap"
)

// Source is one configured credential value.
type Source struct {
	Label string
	Value string
}

// Lease is the client handed out by GetCurrentClient. It remembers the entry
// it came from so that failures are attributed to the right credential.
type Lease[C any] struct {
	Index  int
	Label  string
	Client C
}

type entry[C any] struct {
	label         string
	client        C
	status        domain.CredentialStatus
	lastError     string
	markedAt      *time.Time
	cooldownUntil time.Time
}

// PoolOptions tune failure handling.
type PoolOptions struct {
	// QuotaCooldown parks quota-limited entries in COOLDOWN for this long
	// instead of marking them EXHAUSTED. Zero keeps the one-way behaviour.
	QuotaCooldown time.Duration
	Metrics       ports.MetricsCollector
	Logger        *zap.Logger
}

// Pool is a prioritized, liveness-tracked set of backend clients.
type Pool[C any] struct {
	provider string
	opts     PoolOptions
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries []*entry[C]

	modelSelector
}

// NewPool builds a pool from every non-empty source, in order.
func NewPool[C any](provider string, sources []Source, build func(value string) (C, error), opts PoolOptions) (*Pool[C], error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool[C]{
		provider: provider,
		opts:     opts,
		logger:   logger.With(zap.String("provider", provider)),
		now:      time.Now,
	}

	for _, src := range sources {
		if src.Value == "" {
			continue
		}
		client, err := build(src.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to build client for %s: %w", src.Label, err)
		}
		p.entries = append(p.entries, &entry[C]{
			label:  src.Label,
			client: client,
			status: domain.CredentialAlive,
		})
	}

	p.logger.Info("credential pool created", zap.Int("entries", len(p.entries)))
	p.recordStatus()
	return p, nil
}

// Provider returns the provider name of the pool.
func (p *Pool[C]) Provider() string {
	return p.provider
}

// Len returns the number of entries.
func (p *Pool[C]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// GetCurrentClient returns the first ALIVE entry in pool order.
func (p *Pool[C]) GetCurrentClient() (Lease[C], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i, e := range p.entries {
		if e.status == domain.CredentialCooldown && !now.Before(e.cooldownUntil) {
			e.status = domain.CredentialAlive
			p.logger.Info("credential cooldown elapsed", zap.String("label", e.label))
		}
		if e.status == domain.CredentialAlive {
			return Lease[C]{Index: i, Label: e.label, Client: e.client}, nil
		}
	}

	var zero Lease[C]
	return zero, fmt.Errorf("%s: %w", p.provider, domain.ErrPoolExhausted)
}

// MarkExhausted flips the leased entry to EXHAUSTED. It reports whether this
// call performed the transition; concurrent markers of one entry see false.
func (p *Pool[C]) MarkExhausted(lease Lease[C], cause error) bool {
	return p.mark(lease, domain.CredentialExhausted, 0, cause)
}

// MarkCooldown parks the leased entry until d has elapsed.
func (p *Pool[C]) MarkCooldown(lease Lease[C], d time.Duration, cause error) bool {
	return p.mark(lease, domain.CredentialCooldown, d, cause)
}

func (p *Pool[C]) mark(lease Lease[C], status domain.CredentialStatus, cooldown time.Duration, cause error) bool {
	p.mu.Lock()
	if lease.Index < 0 || lease.Index >= len(p.entries) {
		p.mu.Unlock()
		return false
	}
	e := p.entries[lease.Index]
	if e.status != domain.CredentialAlive {
		p.mu.Unlock()
		return false
	}

	now := p.now()
	e.status = status
	e.markedAt = &now
	if cause != nil {
		e.lastError = cause.Error()
	}
	if status == domain.CredentialCooldown {
		e.cooldownUntil = now.Add(cooldown)
	}
	p.mu.Unlock()

	p.logger.Warn("credential marked",
		zap.String("label", lease.Label),
		zap.String("status", string(status)),
		zap.Error(cause))
	p.recordStatus()
	return true
}

// Reset restores every entry to ALIVE.
func (p *Pool[C]) Reset() {
	p.mu.Lock()
	for _, e := range p.entries {
		e.status = domain.CredentialAlive
		e.lastError = ""
		e.markedAt = nil
		e.cooldownUntil = time.Time{}
	}
	p.mu.Unlock()

	p.logger.Info("credential pool reset")
	p.recordStatus()
}

// GetPoolStatus returns one record per entry. It never mutates the pool; an
// entry whose cooldown has elapsed is reported ALIVE.
func (p *Pool[C]) GetPoolStatus() []domain.EntryStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	statuses := make([]domain.EntryStatus, 0, len(p.entries))
	for i, e := range p.entries {
		status := e.status
		if status == domain.CredentialCooldown && !now.Before(e.cooldownUntil) {
			status = domain.CredentialAlive
		}
		st := domain.EntryStatus{
			Index:     i,
			Label:     e.label,
			Status:    status,
			LastError: e.lastError,
		}
		if e.markedAt != nil {
			t := *e.markedAt
			st.MarkedAt = &t
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// Available reports whether any entry can currently be leased.
func (p *Pool[C]) Available() bool {
	_, err := p.GetCurrentClient()
	return err == nil
}

// Do runs fn with the current client. Quota and auth failures mark the entry
// and fn is retried with the next ALIVE entry; any other error is returned
// as is. When no entry is left the pool-exhaustion error is returned.
func (p *Pool[C]) Do(ctx context.Context, fn func(ctx context.Context, client C) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		lease, err := p.GetCurrentClient()
		if err != nil {
			return err
		}

		err = fn(ctx, lease.Client)
		if err == nil {
			return nil
		}
		if !domain.IsCredentialError(err) {
			return err
		}

		if p.opts.QuotaCooldown > 0 && isQuota(err) {
			p.MarkCooldown(lease, p.opts.QuotaCooldown, err)
		} else {
			p.MarkExhausted(lease, err)
		}
	}
}

func (p *Pool[C]) recordStatus() {
	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordCredentialStatus(p.provider, p.GetPoolStatus())
	}
}
