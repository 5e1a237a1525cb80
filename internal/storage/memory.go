package storage

import (
	"context"
	"sync"
	"time"

	"github.com/Salint/oauth2-system/internal/models"
)

// MemoryStorage keeps every credential collection in process memory. Each
// compound operation holds the write lock for its whole duration, which is
// what makes redemption and rotation atomic.
type MemoryStorage struct {
	clients       map[string]*models.Client
	users         map[string]*models.User
	usersByEmail  map[string]string
	codes         map[string]*models.AuthorizationCode
	refreshTokens map[string]*models.RefreshToken
	mu            sync.RWMutex

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

func NewMemoryStorage() *MemoryStorage {
	storage := &MemoryStorage{
		clients:       make(map[string]*models.Client),
		users:         make(map[string]*models.User),
		usersByEmail:  make(map[string]string),
		codes:         make(map[string]*models.AuthorizationCode),
		refreshTokens: make(map[string]*models.RefreshToken),
		now:           time.Now,
		stop:          make(chan struct{}),
	}

	// Start background cleanup routine
	go storage.cleanupRoutine()

	return storage
}

// Close stops the background cleanup routine.
func (m *MemoryStorage) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryStorage) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil, ErrNotFound
	}
	c := *client
	return &c, nil
}

func (m *MemoryStorage) SaveClient(ctx context.Context, client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *client
	m.clients[client.ID] = &c
	return nil
}

func (m *MemoryStorage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[userID]
	if !exists {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

func (m *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userID, exists := m.usersByEmail[email]
	if !exists {
		return nil, ErrNotFound
	}
	u := *m.users[userID]
	return &u, nil
}

func (m *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usersByEmail[user.Email]; exists {
		return ErrAlreadyExists
	}
	if _, exists := m.users[user.ID]; exists {
		return ErrAlreadyExists
	}

	u := *user
	m.users[user.ID] = &u
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *MemoryStorage) SaveAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.codes[code.Code]; exists {
		return ErrAlreadyExists
	}
	c := *code
	m.codes[code.Code] = &c
	return nil
}

func (m *MemoryStorage) GetAuthorizationCode(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	authCode, exists := m.codes[code]
	if !exists {
		return nil, ErrNotFound
	}
	c := *authCode
	return &c, nil
}

func (m *MemoryStorage) RedeemAuthorizationCode(ctx context.Context, code string, refresh *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.codes[code]; !exists {
		return ErrNotFound
	}
	if _, exists := m.refreshTokens[refresh.Token]; exists {
		return ErrAlreadyExists
	}

	delete(m.codes, code)
	t := *refresh
	m.refreshTokens[refresh.Token] = &t
	return nil
}

func (m *MemoryStorage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.refreshTokens[token.Token]; exists {
		return ErrAlreadyExists
	}
	t := *token
	m.refreshTokens[token.Token] = &t
	return nil
}

func (m *MemoryStorage) RotateRefreshToken(ctx context.Context, token, clientID string, next Rotation) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, exists := m.refreshTokens[token]
	if !exists || old.ClientID != clientID {
		return nil, ErrNotFound
	}
	if _, exists := m.refreshTokens[next.Token]; exists {
		return nil, ErrAlreadyExists
	}

	delete(m.refreshTokens, token)
	if next.Reject != nil && next.Reject(old) {
		return old, nil
	}
	m.refreshTokens[next.Token] = next.Replacement(old)
	return old, nil
}

// cleanupRoutine runs every 5 minutes to clean up expired codes and tokens
func (m *MemoryStorage) cleanupRoutine() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *MemoryStorage) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	for code, authCode := range m.codes {
		if authCode.Expired(now) {
			delete(m.codes, code)
		}
	}

	for token, refresh := range m.refreshTokens {
		if refresh.Expired(now) {
			delete(m.refreshTokens, token)
		}
	}
}
