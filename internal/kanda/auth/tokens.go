package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/raine/kanda-client/internal/storage"
	"github.com/rs/zerolog/log"
)

// DefaultTokenTTL is used when the server does not declare expires_in.
const DefaultTokenTTL = 86400

// Storage keys of the persisted token record.
const (
	TokenKey          = "auth_token"
	TokenTimestampKey = "auth_token_timestamp"
	TokenExpiryKey    = "auth_token_expiry"
)

var tokenKeys = []string{TokenKey, TokenTimestampKey, TokenExpiryKey}

// Record is the parsed token record.
type Record struct {
	Value      string
	IssuedAt   time.Time
	TTLSeconds int
}

// ExpiresAt returns IssuedAt + TTL.
func (r Record) ExpiresAt() time.Time {
	return r.IssuedAt.Add(time.Duration(r.TTLSeconds) * time.Second)
}

// TokenStore owns the persisted session token and its expiry bookkeeping.
// Reads fail closed: any storage error looks like "no token".
type TokenStore struct {
	store storage.KeyValueStore
	now   func() time.Time
}

// TokenStoreOption configures a TokenStore.
type TokenStoreOption func(*TokenStore)

// WithClock overrides the wall clock used for issue and expiry checks.
func WithClock(now func() time.Time) TokenStoreOption {
	return func(t *TokenStore) { t.now = now }
}

// NewTokenStore creates a token store on top of store.
func NewTokenStore(store storage.KeyValueStore, opts ...TokenStoreOption) *TokenStore {
	t := &TokenStore{store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetToken persists a new token record, replacing any existing one.
// A ttlSeconds <= 0 falls back to DefaultTokenTTL.
func (t *TokenStore) SetToken(value string, ttlSeconds int) error {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTokenTTL
	}
	err := t.store.SetMany(map[string]string{
		TokenKey:          value,
		TokenTimestampKey: strconv.FormatInt(t.now().UnixMilli(), 10),
		TokenExpiryKey:    strconv.Itoa(ttlSeconds),
	})
	if err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

// GetToken returns the stored token value. It does not check expiry.
func (t *TokenStore) GetToken() (string, bool) {
	v, ok, err := t.store.Get(TokenKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read token, treating as absent")
		return "", false
	}
	return v, ok
}

// Record returns the complete parsed record. The bool is false when the
// record is absent or any part of it is missing or corrupt.
func (t *TokenStore) Record() (Record, bool) {
	values, err := t.store.GetMany(tokenKeys...)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read token record, treating as absent")
		return Record{}, false
	}

	value, ok := values[TokenKey]
	if !ok {
		return Record{}, false
	}
	issuedMs, err := strconv.ParseInt(values[TokenTimestampKey], 10, 64)
	if err != nil {
		return Record{}, false
	}
	ttl, err := strconv.Atoi(values[TokenExpiryKey])
	if err != nil || ttl < 0 {
		return Record{}, false
	}

	return Record{
		Value:      value,
		IssuedAt:   time.UnixMilli(issuedMs),
		TTLSeconds: ttl,
	}, true
}

// IsTokenExpired reports whether the stored token is past its TTL.
// A missing value or unreadable bookkeeping counts as expired.
func (t *TokenStore) IsTokenExpired() bool {
	rec, ok := t.Record()
	if !ok {
		return true
	}

	// Compared in whole seconds so huge TTLs cannot overflow.
	elapsedMs := t.now().UnixMilli() - rec.IssuedAt.UnixMilli()
	if elapsedMs <= 0 {
		return false
	}
	return (elapsedMs-1)/1000 >= int64(rec.TTLSeconds)
}

// IsAuthenticated reports whether a token is present and not expired.
func (t *TokenStore) IsAuthenticated() bool {
	if _, ok := t.GetToken(); !ok {
		return false
	}
	return !t.IsTokenExpired()
}

// ClearToken removes the value, timestamp and ttl together.
func (t *TokenStore) ClearToken() error {
	if err := t.store.DeleteMany(tokenKeys...); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
