// ABOUTME: Manages live bot connections, one per active tenant
// ABOUTME: Registration, credential checks, poll loops, and clean shutdown

package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relaydesk/relaydesk/internal/protocol"
	"github.com/relaydesk/relaydesk/internal/store"
)

var (
	// ErrInvalidCredential indicates the bot token was rejected by the
	// platform.
	ErrInvalidCredential = errors.New("tenant: invalid credential")

	// ErrDuplicateCredential indicates the token is already registered
	// or its bot already has a live connection.
	ErrDuplicateCredential = errors.New("tenant: duplicate credential")

	// ErrTenantNotFound indicates no tenant exists with the given id.
	ErrTenantNotFound = errors.New("tenant: not found")
)

const pollBackoff = 3 * time.Second

// Store is the tenant slice of the store.
type Store interface {
	CreateTenant(ctx context.Context, tenant *store.Tenant) error
	GetTenant(ctx context.Context, id string) (*store.Tenant, error)
	ListActiveTenants(ctx context.Context) ([]*store.Tenant, error)
}

// Vault encrypts credentials for storage and decrypts them for use.
type Vault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

// ClientFactory builds a protocol client for a plaintext bot token.
type ClientFactory func(token string) protocol.Client

// Handler consumes updates from a tenant's poll loop.
type Handler interface {
	HandleUpdate(ctx context.Context, conn *Connection, update *protocol.Update)
}

// Connection is one tenant's live link to the platform.
type Connection struct {
	Tenant   *store.Tenant
	Client   protocol.Client
	Identity *protocol.Identity

	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns all tenant connections and their poll loops.
type Manager struct {
	store       Store
	vault       Vault
	newClient   ClientFactory
	handler     Handler
	pollTimeout int
	logger      *slog.Logger

	mu    sync.Mutex
	conns map[string]*Connection // keyed by tenant ID
	locks map[string]*sync.Mutex // per-tenant start/stop serialization
}

// NewManager creates a Manager. pollTimeout is the long-poll timeout in
// seconds passed to GetUpdates.
func NewManager(st Store, v Vault, factory ClientFactory, handler Handler, pollTimeout int) *Manager {
	return &Manager{
		store:       st,
		vault:       v,
		newClient:   factory,
		handler:     handler,
		pollTimeout: pollTimeout,
		logger:      slog.Default().With("component", "tenant"),
		conns:       make(map[string]*Connection),
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-tenant mutex, creating it on first use.
func (m *Manager) lockFor(tenantID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[tenantID] = l
	}
	return l
}

// Register validates a plaintext bot token against the platform, encrypts
// it, and persists the new tenant. Does not start a connection.
func (m *Manager) Register(ctx context.Context, token string, ownerUserID, groupID int64) (*store.Tenant, error) {
	probe := m.newClient(token)
	defer probe.Close()

	identity, err := probe.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	encrypted, err := m.vault.Encrypt(token)
	if err != nil {
		return nil, fmt.Errorf("encrypting credential: %w", err)
	}

	tenant := &store.Tenant{
		OwnerUserID: ownerUserID,
		Token:       encrypted,
		BotUsername: identity.Username,
		BotID:       identity.ID,
		GroupID:     groupID,
		Active:      true,
	}
	if err := m.store.CreateTenant(ctx, tenant); err != nil {
		if errors.Is(err, store.ErrDuplicateTenant) {
			return nil, ErrDuplicateCredential
		}
		return nil, fmt.Errorf("storing tenant: %w", err)
	}

	m.logger.Info("tenant registered",
		"tenant_id", tenant.ID,
		"bot_username", identity.Username)
	return tenant, nil
}

// Connect opens a live connection for the tenant and starts its poll
// loop. Fails if the tenant already has one.
func (m *Manager) Connect(ctx context.Context, tenant *store.Tenant) error {
	lock := m.lockFor(tenant.ID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	_, exists := m.conns[tenant.ID]
	m.mu.Unlock()
	if exists {
		return fmt.Errorf("%w: tenant %s already connected", ErrDuplicateCredential, tenant.ID)
	}

	token, err := m.vault.Decrypt(tenant.Token)
	if err != nil {
		return fmt.Errorf("decrypting credential: %w", err)
	}

	client := m.newClient(token)
	identity, err := client.GetMe(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	conn := &Connection{
		Tenant:   tenant,
		Client:   client,
		Identity: identity,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	m.conns[tenant.ID] = conn
	m.mu.Unlock()

	go m.pollLoop(pollCtx, conn)

	m.logger.Info("tenant connected",
		"tenant_id", tenant.ID,
		"bot_username", identity.Username)
	return nil
}

// StartConnection reloads the tenant from the store and connects it,
// replacing any stale connection first.
func (m *Manager) StartConnection(ctx context.Context, tenantID string) error {
	if err := m.StopConnection(tenantID); err != nil {
		return err
	}

	tenant, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTenantNotFound
		}
		return fmt.Errorf("loading tenant: %w", err)
	}
	return m.Connect(ctx, tenant)
}

// StopConnection cancels a tenant's poll loop and waits for it to exit.
// Stopping an unknown tenant logs a warning and succeeds.
func (m *Manager) StopConnection(tenantID string) error {
	lock := m.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	conn, ok := m.conns[tenantID]
	if ok {
		delete(m.conns, tenantID)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Warn("stop requested for unknown tenant", "tenant_id", tenantID)
		return nil
	}

	conn.cancel()
	<-conn.done
	if err := conn.Client.Close(); err != nil {
		m.logger.Warn("closing tenant client", "tenant_id", tenantID, "error", err)
	}

	m.logger.Info("tenant disconnected", "tenant_id", tenantID)
	return nil
}

// GetConnection returns a tenant's live connection, if any.
func (m *Manager) GetConnection(tenantID string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[tenantID]
	return conn, ok
}

// LoadExisting connects every active tenant in the store. A tenant that
// fails to connect is logged and skipped so one bad credential does not
// block startup.
func (m *Manager) LoadExisting(ctx context.Context) error {
	tenants, err := m.store.ListActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}

	for _, tenant := range tenants {
		if err := m.Connect(ctx, tenant); err != nil {
			m.logger.Warn("skipping tenant",
				"tenant_id", tenant.ID,
				"bot_username", tenant.BotUsername,
				"error", err)
		}
	}

	m.logger.Info("existing tenants loaded", "count", len(tenants))
	return nil
}

// StopAll disconnects every tenant.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.StopConnection(id); err != nil {
			m.logger.Warn("stopping tenant", "tenant_id", id, "error", err)
		}
	}
}

// pollLoop long-polls the tenant's bot for updates until the connection
// is stopped. Handled updates advance the offset so they are not
// redelivered.
func (m *Manager) pollLoop(ctx context.Context, conn *Connection) {
	defer close(conn.done)

	var offset int64
	for ctx.Err() == nil {
		updates, err := conn.Client.GetUpdates(ctx, offset, m.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("polling updates",
				"tenant_id", conn.Tenant.ID,
				"error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollBackoff):
			}
			continue
		}

		for _, update := range updates {
			offset = update.ID + 1
			m.handler.HandleUpdate(ctx, conn, update)
		}
	}
}
