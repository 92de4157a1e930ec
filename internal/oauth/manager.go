package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/oauth2"
)

var ErrScopeMismatch = errors.New("oauth scope mismatch")

const DefaultRefreshInterval = 10 * time.Minute

// Manager keeps an access token fresh from a persisted refresh token.
// It satisfies the same AccessToken contract as StaticToken, so the API
// client does not care which mode is configured.
type Manager struct {
	decl       Declaration
	blobStore  BlobStore
	httpClient *http.Client

	mu              sync.Mutex
	accessToken     string
	expiresAt       time.Time
	refreshToken    string
	scope           string
	clientID        string
	clientSecret    string
	refreshInFlight bool
	config          *oauth2.Config
}

func NewManager(decl Declaration, bootstrapPath string, blobStore BlobStore) (*Manager, error) {
	if bootstrapPath == "" {
		return nil, fmt.Errorf("bootstrap path is required")
	}
	bootstrap, err := LoadBootstrap(bootstrapPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return NewManagerFromBootstrap(decl, bootstrap, blobStore)
}

// NewManagerFromBootstrap creates a manager from inline credentials. The
// blob store may be nil, in which case state lives only on local disk.
func NewManagerFromBootstrap(decl Declaration, bootstrap Bootstrap, blobStore BlobStore) (*Manager, error) {
	if decl.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if decl.Scope == "" {
		return nil, fmt.Errorf("scope is required")
	}
	if decl.TokenURL == "" {
		return nil, fmt.Errorf("tokenURL is required")
	}
	if decl.StatePath == "" {
		return nil, fmt.Errorf("statePath is required")
	}
	if !filepath.IsAbs(decl.StatePath) {
		return nil, fmt.Errorf("statePath must be absolute")
	}
	if err := bootstrap.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	m := &Manager{
		decl:         decl,
		blobStore:    blobStore,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		clientID:     bootstrap.ClientID,
		clientSecret: bootstrap.ClientSecret,
		config: &oauth2.Config{
			ClientID:     bootstrap.ClientID,
			ClientSecret: bootstrap.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  decl.AuthorizeURL,
				TokenURL: decl.TokenURL,
			},
			Scopes: strings.Fields(decl.Scope),
		},
	}

	state, err := m.loadInitialState(bootstrap)
	if err != nil {
		return nil, err
	}
	m.refreshToken = state.RefreshToken
	m.scope = state.Scope

	return m, nil
}

func (m *Manager) Start(ctx context.Context) {
	m.StartWithInterval(ctx, DefaultRefreshInterval)
}

// StartWithInterval refreshes immediately if needed, then keeps refreshing
// on a ticker until ctx is cancelled. Interval <= 0 disables the loop.
func (m *Manager) StartWithInterval(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	threshold := interval
	if threshold < 30*time.Second {
		threshold = 30 * time.Second
	}
	m.refreshIfNeeded(ctx, threshold)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refreshIfNeeded(ctx, threshold)
			}
		}
	}()
}

func (m *Manager) AccessToken(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accessToken != "" && time.Until(m.expiresAt) > 30*time.Second {
		return m.accessToken, nil
	}

	tokenValid.WithLabelValues(m.decl.Provider).Set(0)
	return "", fmt.Errorf("oauth token unavailable")
}

// TriggerRefresh kicks off an asynchronous refresh; no-op if one is running.
func (m *Manager) TriggerRefresh(ctx context.Context) {
	m.mu.Lock()
	if m.refreshInFlight {
		m.mu.Unlock()
		return
	}
	m.refreshInFlight = true
	m.mu.Unlock()

	go func() {
		defer m.clearInFlight()
		_ = m.refresh(ctx)
	}()
}

func (m *Manager) refreshIfNeeded(ctx context.Context, threshold time.Duration) {
	m.mu.Lock()
	need := m.accessToken == "" || time.Until(m.expiresAt) <= threshold
	if !need || m.refreshInFlight {
		m.mu.Unlock()
		return
	}
	m.refreshInFlight = true
	m.mu.Unlock()

	defer m.clearInFlight()
	_ = m.refresh(ctx)
}

func (m *Manager) clearInFlight() {
	m.mu.Lock()
	m.refreshInFlight = false
	m.mu.Unlock()
}

func (m *Manager) refresh(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	source := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: m.refreshToken})
	token, err := source.Token()
	if err != nil {
		refreshFailure.WithLabelValues(m.decl.Provider).Inc()
		tokenValid.WithLabelValues(m.decl.Provider).Set(0)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			body := strings.TrimSpace(string(retrieveErr.Body))
			return fmt.Errorf("token refresh failed %d: %s", retrieveErr.Response.StatusCode, body)
		}
		return err
	}

	m.mu.Lock()
	m.accessToken = token.AccessToken
	m.expiresAt = token.Expiry
	if token.RefreshToken != "" {
		m.refreshToken = token.RefreshToken
	}
	state := State{
		SchemaVersion: SchemaVersion,
		ClientID:      m.clientID,
		ClientSecret:  m.clientSecret,
		RefreshToken:  m.refreshToken,
		Scope:         m.scope,
	}
	m.mu.Unlock()

	if err := WriteState(m.decl.StatePath, state); err != nil {
		refreshFailure.WithLabelValues(m.decl.Provider).Inc()
		return fmt.Errorf("persist state: %w", err)
	}
	m.persistBlob(ctx, state)

	refreshSuccess.WithLabelValues(m.decl.Provider).Inc()
	tokenValid.WithLabelValues(m.decl.Provider).Set(1)
	return nil
}

// loadInitialState resolves the refresh token in priority order: local state
// file, blob mirror, bootstrap seed.
func (m *Manager) loadInitialState(bootstrap Bootstrap) (State, error) {
	local, localErr := LoadState(m.decl.StatePath)
	if localErr == nil {
		if err := checkStateFile(m.decl.StatePath); err != nil {
			return State{}, err
		}
		if err := m.checkScope(&local); err != nil {
			return State{}, err
		}
		local.ClientID = bootstrap.ClientID
		local.ClientSecret = bootstrap.ClientSecret
		m.persistBlob(context.Background(), local)
		return local, nil
	}
	if !errors.Is(localErr, ErrStateNotFound) {
		return State{}, localErr
	}

	if m.blobStore != nil {
		data, blobErr := m.blobStore.Load(context.Background(), m.decl.Provider)
		if blobErr == nil {
			blob, err := DecodeState(data)
			if err != nil {
				return State{}, err
			}
			if err := m.checkScope(&blob); err != nil {
				return State{}, err
			}
			blob.ClientID = bootstrap.ClientID
			blob.ClientSecret = bootstrap.ClientSecret
			if err := WriteState(m.decl.StatePath, blob); err != nil {
				return State{}, err
			}
			return blob, nil
		}
		if !errors.Is(blobErr, ErrBlobNotFound) {
			return State{}, blobErr
		}
	}

	if bootstrap.RefreshToken == "" {
		return State{}, fmt.Errorf("bootstrap missing refresh_token; run `yaclimate auth`")
	}
	state := State{
		SchemaVersion: SchemaVersion,
		ClientID:      bootstrap.ClientID,
		ClientSecret:  bootstrap.ClientSecret,
		RefreshToken:  bootstrap.RefreshToken,
		Scope:         bootstrap.Scope,
	}
	if err := m.checkScope(&state); err != nil {
		return State{}, err
	}
	if err := WriteState(m.decl.StatePath, state); err != nil {
		return State{}, err
	}
	m.persistBlob(context.Background(), state)
	return state, nil
}

func (m *Manager) checkScope(state *State) error {
	if state.Scope == "" {
		state.Scope = m.decl.Scope
		return nil
	}
	if state.Scope != m.decl.Scope {
		scopeMismatch.WithLabelValues(m.decl.Provider).Inc()
		return ErrScopeMismatch
	}
	return nil
}

func (m *Manager) persistBlob(ctx context.Context, state State) {
	if m.blobStore == nil {
		return
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		remotePersistOK.WithLabelValues(m.decl.Provider).Set(0)
		return
	}
	if err := m.blobStore.Save(ctx, m.decl.Provider, data); err != nil {
		remotePersistOK.WithLabelValues(m.decl.Provider).Set(0)
		return
	}
	remotePersistOK.WithLabelValues(m.decl.Provider).Set(1)
}

// checkStateFile refuses state files readable by other users.
func checkStateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0o600 {
		return fmt.Errorf("state file %s must have 0600 permissions", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return fmt.Errorf("state file %s must be owned by uid %d", path, os.Geteuid())
		}
	}
	return nil
}
