// Package session owns the cached OAuth credential used to reach the calendar service.
//
// A Provider classifies its cached token into one of four states and acts on it:
// a valid token is reused, an expired token with a refresh token is refreshed, and a
// missing or unrefreshable token triggers a single interactive authorization. Every
// newly obtained token is written back to the Provider's Store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// State describes the cached credential.
type State int

const (
	Absent State = iota
	Valid
	ExpiredRefreshable
	ExpiredTerminal
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Valid:
		return "valid"
	case ExpiredRefreshable:
		return "expired-refreshable"
	case ExpiredTerminal:
		return "expired-terminal"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// expiryDelta mirrors oauth2's early-expiry window.
const expiryDelta = 10 * time.Second

// ErrNoAuthorizer is returned when interactive authorization is needed but the
// Provider was built without a way to ask the user.
var ErrNoAuthorizer = errors.New("interactive authorization required; run the auth command first")

// Store persists a token between runs. Load returns (nil, nil) when nothing is stored.
type Store interface {
	Load() (*oauth2.Token, error)
	Save(*oauth2.Token) error
}

// AuthorizeFunc shows authURL to the user and returns the authorization code they paste back.
type AuthorizeFunc func(ctx context.Context, authURL string) (string, error)

// Provider hands out a usable token, refreshing or re-authorizing as needed.
// It is safe for concurrent use; one authentication sequence runs at a time.
type Provider struct {
	mu        sync.Mutex
	config    *oauth2.Config
	store     Store
	authorize AuthorizeFunc
	logger    *slog.Logger
	now       func() time.Time

	token  *oauth2.Token
	loaded bool
}

// NewProvider creates a Provider. authorize may be nil for non-interactive processes.
func NewProvider(logger *slog.Logger, config *oauth2.Config, store Store, authorize AuthorizeFunc) *Provider {
	return &Provider{
		config:    config,
		store:     store,
		authorize: authorize,
		logger:    logger,
		now:       time.Now,
	}
}

// State reports the state of the cached token, loading it from the Store on first use.
func (p *Provider) State() (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.load(); err != nil {
		return Absent, err
	}
	return p.state(), nil
}

// Token returns a valid token, performing at most one refresh or authorization.
func (p *Provider) Token(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.load(); err != nil {
		return nil, err
	}

	state := p.state()
	p.logger.Debug("Resolving calendar session.", "state", state)

	var (
		tok *oauth2.Token
		err error
	)
	switch state {
	case Valid:
		return p.token, nil
	case ExpiredRefreshable:
		tok, err = p.refresh(ctx)
	default:
		tok, err = p.authorizeInteractive(ctx)
	}
	if err != nil {
		return nil, err
	}

	if err := p.store.Save(tok); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	p.token = tok
	return tok, nil
}

// TokenSource adapts the Provider to oauth2.TokenSource, bound to ctx.
func (p *Provider) TokenSource(ctx context.Context) oauth2.TokenSource {
	return providerSource{ctx: ctx, p: p}
}

type providerSource struct {
	ctx context.Context
	p   *Provider
}

func (s providerSource) Token() (*oauth2.Token, error) {
	return s.p.Token(s.ctx)
}

func (p *Provider) load() error {
	if p.loaded {
		return nil
	}
	tok, err := p.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load cached token: %w", err)
	}
	p.token = tok
	p.loaded = true
	return nil
}

func (p *Provider) state() State {
	tok := p.token
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return Absent
	}
	if tok.AccessToken != "" && (tok.Expiry.IsZero() || tok.Expiry.Add(-expiryDelta).After(p.now())) {
		return Valid
	}
	if tok.RefreshToken != "" {
		return ExpiredRefreshable
	}
	return ExpiredTerminal
}

func (p *Provider) refresh(ctx context.Context) (*oauth2.Token, error) {
	p.logger.Info("Refreshing expired calendar token.")
	// A token carrying only the refresh token forces the exchange.
	tok, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: p.token.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return tok, nil
}

func (p *Provider) authorizeInteractive(ctx context.Context) (*oauth2.Token, error) {
	if p.authorize == nil {
		return nil, ErrNoAuthorizer
	}
	p.logger.Info("Starting interactive calendar authorization.")

	authURL := p.config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	code, err := p.authorize(ctx, authURL)
	if err != nil {
		return nil, fmt.Errorf("authorization aborted: %w", err)
	}

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}
