// Package abuse verifies client-supplied human-verification tokens against
// a reCAPTCHA-compatible site-verify endpoint.
package abuse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultVerifyURL is Google's reCAPTCHA site-verify endpoint.
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Policy decides how a successful verdict with a score is judged.
type Policy string

const (
	// PolicyScore rejects verdicts whose score is below MinScore.
	PolicyScore Policy = "score"
	// PolicyAny accepts any successful verdict regardless of score.
	PolicyAny Policy = "any"
)

var (
	ErrMissingToken = errors.New("missing verification token")
	ErrRejected     = errors.New("verification rejected")
)

// Result is the outcome of one check. Score is 1 when the service reports none.
type Result struct {
	Passed bool
	Score  float64
}

// Verifier checks one token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (Result, error)
}

// Config configures a Recaptcha verifier.
type Config struct {
	Secret    string
	VerifyURL string
	Policy    Policy
	MinScore  float64
	Timeout   time.Duration
}

// Recaptcha calls the site-verify endpoint once per token. Tokens are single
// use, so nothing is retried.
type Recaptcha struct {
	cfg    Config
	client *http.Client
}

// NewRecaptcha applies defaults: Google's endpoint, score policy at 0.5, 10s timeout.
func NewRecaptcha(cfg Config) *Recaptcha {
	if cfg.VerifyURL == "" {
		cfg.VerifyURL = DefaultVerifyURL
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyScore
	}
	if cfg.Policy == PolicyScore && cfg.MinScore <= 0 {
		cfg.MinScore = 0.5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Recaptcha{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	Action     string   `json:"action,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// Verify returns a passing Result, or an error when the call fails or the
// verdict is negative.
func (r *Recaptcha) Verify(ctx context.Context, token, remoteIP string) (Result, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{}, ErrMissingToken
	}

	form := url.Values{}
	form.Set("secret", r.cfg.Secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("verify endpoint returned status %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&vr); err != nil {
		return Result{}, fmt.Errorf("decode verify response: %w", err)
	}

	return r.judge(vr)
}

func (r *Recaptcha) judge(vr verifyResponse) (Result, error) {
	res := Result{Score: 1}
	if vr.Score != nil {
		res.Score = *vr.Score
	}

	if !vr.Success {
		return res, fmt.Errorf("%w: %s", ErrRejected, strings.Join(vr.ErrorCodes, ","))
	}
	if r.cfg.Policy == PolicyScore && vr.Score != nil && *vr.Score < r.cfg.MinScore {
		return res, fmt.Errorf("%w: score %.2f below %.2f", ErrRejected, *vr.Score, r.cfg.MinScore)
	}

	res.Passed = true
	return res, nil
}

// Disabled passes every token. Only for local development.
type Disabled struct{}

func (Disabled) Verify(context.Context, string, string) (Result, error) {
	return Result{Passed: true, Score: 1}, nil
}
