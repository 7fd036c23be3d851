package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"clip-drop/internal/logging"
	"clip-drop/internal/submission"
)

var (
	ErrUnknownSubmission = errors.New("unknown or expired submission id")
	ErrAlreadyCompleted  = errors.New("a link was already submitted for this submission")
	ErrInFlight          = errors.New("a link for this submission is already being processed")
	ErrInvalidLink       = errors.New("invalid transfer link")
)

// ManualConfig configures the deferred manual-transfer backend.
type ManualConfig struct {
	TransferURL  string        // site the submitter uploads to, e.g. https://mega.nz
	AllowedHosts []string      // when non-empty, links must point at one of these hosts
	PendingTTL   time.Duration // how long phase 1 stays claimable
	MaxPending   int
}

type pendingState int

const (
	statePending pendingState = iota
	stateInFlight
	stateCompleted
)

type pendingEntry struct {
	sub   *submission.Submission
	state pendingState
}

// Manual does not move bytes. Phase 1 records the submission and returns
// instructions; phase 2 claims it with an external link.
type Manual struct {
	cfg ManualConfig

	mu      sync.Mutex
	pending *expirable.LRU[string, *pendingEntry]
}

// NewManual creates the backend with an empty pending registry.
func NewManual(cfg ManualConfig) *Manual {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 48 * time.Hour
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 10000
	}
	if cfg.TransferURL == "" {
		cfg.TransferURL = "https://mega.nz"
	}
	for i, h := range cfg.AllowedHosts {
		cfg.AllowedHosts[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return &Manual{
		cfg:     cfg,
		pending: expirable.NewLRU[string, *pendingEntry](cfg.MaxPending, nil, cfg.PendingTTL),
	}
}

func (m *Manual) Name() string { return BackendManual }

// Upload is phase 1.
func (m *Manual) Upload(ctx context.Context, sub *submission.Submission, storedName string) (Reference, error) {
	if err := ctx.Err(); err != nil {
		return Reference{}, err
	}

	m.mu.Lock()
	m.warnDisplaced()
	m.pending.Add(sub.ID, &pendingEntry{sub: sub})
	m.mu.Unlock()

	return Reference{
		Backend:                 BackendManual,
		StoredName:              storedName,
		TransferURL:             m.cfg.TransferURL,
		RequiresSubmitterAction: true,
		Instructions:            m.instructions(sub, storedName),
	}, nil
}

// warnDisplaced logs the submission the next Add will evict when the
// registry is full and that submission is still waiting for a link.
// Caller holds m.mu.
func (m *Manual) warnDisplaced() {
	if m.pending.Len() < m.cfg.MaxPending {
		return
	}
	keys := m.pending.Keys()
	if len(keys) < m.cfg.MaxPending {
		return
	}
	oldest := keys[0]
	e, ok := m.pending.Peek(oldest)
	if !ok || e.state == stateCompleted {
		return
	}
	state := "pending"
	if e.state == stateInFlight {
		state = "in_flight"
	}
	logging.Warn("pending_registry_full", logging.Fields{
		"displaced_submission_id": oldest,
		"displaced_state":         state,
		"max_pending":             m.cfg.MaxPending,
	})
}

func (m *Manual) instructions(sub *submission.Submission, storedName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "1. Open %s and upload your clip %q", m.cfg.TransferURL, sub.File.OriginalName)
	if sub.File.SizeBytes > 0 {
		fmt.Fprintf(&b, " (%s)", humanize.IBytes(uint64(sub.File.SizeBytes)))
	}
	b.WriteString(".\n")
	fmt.Fprintf(&b, "2. Name it %s if the site lets you.\n", storedName)
	b.WriteString("3. Create a public share link for the file.\n")
	fmt.Fprintf(&b, "4. Submit the link together with your submission id %s within %s.",
		sub.ID, strings.TrimSpace(humanize.RelTime(time.Now(), time.Now().Add(m.cfg.PendingTTL), "", "")))
	return strings.TrimSpace(b.String())
}

// Claim marks a pending submission as in flight and returns the phase 1
// record. Unknown, expired, in-flight and completed ids are rejected.
func (m *Manual) Claim(id string) (*submission.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.pending.Get(id)
	if !ok {
		return nil, ErrUnknownSubmission
	}
	switch e.state {
	case stateInFlight:
		return nil, ErrInFlight
	case stateCompleted:
		return nil, ErrAlreadyCompleted
	}
	e.state = stateInFlight
	return e.sub, nil
}

// Complete marks a claimed submission as done. The entry stays in the
// registry until it expires so a replayed link is still refused.
func (m *Manual) Complete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.pending.Get(id); ok {
		e.state = stateCompleted
	}
}

// Abandon returns a claimed submission to pending so the submitter can retry.
func (m *Manual) Abandon(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.pending.Get(id); ok && e.state == stateInFlight {
		e.state = statePending
	}
}

// Forget drops a submission so no link can be attached to it.
func (m *Manual) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Remove(id)
}

// Pending reports how many submissions are waiting for a link.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.pending.Values() {
		if e.state != stateCompleted {
			n++
		}
	}
	return n
}

// ValidateLink checks the submitter's transfer link and returns it normalised.
func (m *Manual) ValidateLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: link is required", ErrInvalidLink)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: must be an http(s) URL", ErrInvalidLink)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidLink)
	}
	if len(m.cfg.AllowedHosts) > 0 && !m.hostAllowed(u.Hostname()) {
		return "", fmt.Errorf("%w: host %s is not accepted", ErrInvalidLink, u.Hostname())
	}
	return u.String(), nil
}

func (m *Manual) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, h := range m.cfg.AllowedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
