package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	apiKeyPrefix    = "benchrun:apikey:"
	apiKeySecretLen = 32
	plainKeyPrefix  = "br_"
)

// APIKeyStore stores and validates API keys
type APIKeyStore interface {
	ValidateKey(ctx context.Context, key string) (*APIKeyInfo, error)
	CreateKey(ctx context.Context, info APIKeyInfo) (string, error)
	RevokeKey(ctx context.Context, keyID string) error
	ListKeys(ctx context.Context, ownerID string) ([]APIKeyInfo, error)
}

// APIKeyInfo contains metadata about an API key
type APIKeyInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	KeyHash   string `json:"key_hash,omitempty"` // SHA-256 of the key
	OwnerID   string `json:"owner_id"`
	Role      Role   `json:"role"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // 0 = never expires
	LastUsed  int64  `json:"last_used,omitempty"`
}

// Claims converts the key metadata into request claims.
func (i *APIKeyInfo) Claims() *Claims {
	return &Claims{UserID: i.OwnerID, Username: i.Name, Role: i.Role}
}

// RedisAPIKeyStore keeps keys by hash, with an id index for revocation and a
// per-owner set for listing. Keys do not expire in Redis; ExpiresAt is
// checked on validation.
type RedisAPIKeyStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisAPIKeyStore(client *redis.Client) *RedisAPIKeyStore {
	return &RedisAPIKeyStore{client: client, now: time.Now}
}

func hashKeyName(hash string) string   { return apiKeyPrefix + "hash:" + hash }
func idKeyName(id string) string       { return apiKeyPrefix + "id:" + id }
func ownerKeyName(owner string) string { return apiKeyPrefix + "owner:" + owner }

// ValidateKey checks if an API key is valid and returns its info
func (s *RedisAPIKeyStore) ValidateKey(ctx context.Context, key string) (*APIKeyInfo, error) {
	name := hashKeyName(hashKey(key))
	info, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}

	now := s.now().Unix()
	if info.ExpiresAt > 0 && info.ExpiresAt < now {
		return nil, ErrExpiredToken
	}

	info.LastUsed = now
	if data, err := json.Marshal(info); err == nil {
		// Best effort; a failed touch does not reject the request.
		_ = s.client.Set(ctx, name, data, redis.KeepTTL).Err()
	}
	return info, nil
}

// CreateKey stores a new API key and returns the plaintext key, which is not
// recoverable afterwards.
func (s *RedisAPIKeyStore) CreateKey(ctx context.Context, info APIKeyInfo) (string, error) {
	if !info.Role.Valid() {
		return "", fmt.Errorf("unknown role %q", info.Role)
	}

	plainKey, err := randomHex(apiKeySecretLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	plainKey = plainKeyPrefix + plainKey

	info.KeyHash = hashKey(plainKey)
	info.CreatedAt = s.now().Unix()
	if info.ID == "" {
		id, err := randomHex(8)
		if err != nil {
			return "", fmt.Errorf("failed to generate key id: %w", err)
		}
		info.ID = "key_" + id
	}

	data, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal key info: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, hashKeyName(info.KeyHash), data, 0)
		pipe.Set(ctx, idKeyName(info.ID), info.KeyHash, 0)
		pipe.SAdd(ctx, ownerKeyName(info.OwnerID), info.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store key: %w", err)
	}
	return plainKey, nil
}

// RevokeKey removes an API key
func (s *RedisAPIKeyStore) RevokeKey(ctx context.Context, keyID string) error {
	keyHash, err := s.client.Get(ctx, idKeyName(keyID)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("failed to lookup key: %w", err)
	}

	info, err := s.load(ctx, hashKeyName(keyHash))
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, hashKeyName(keyHash), idKeyName(keyID))
		pipe.SRem(ctx, ownerKeyName(info.OwnerID), keyID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}
	return nil
}

// ListKeys returns the keys of an owner without their hashes.
func (s *RedisAPIKeyStore) ListKeys(ctx context.Context, ownerID string) ([]APIKeyInfo, error) {
	keyIDs, err := s.client.SMembers(ctx, ownerKeyName(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	keys := make([]APIKeyInfo, 0, len(keyIDs))
	for _, keyID := range keyIDs {
		keyHash, err := s.client.Get(ctx, idKeyName(keyID)).Result()
		if err != nil {
			continue // revoked concurrently
		}
		info, err := s.load(ctx, hashKeyName(keyHash))
		if err != nil {
			continue
		}
		info.KeyHash = ""
		keys = append(keys, *info)
	}
	return keys, nil
}

func (s *RedisAPIKeyStore) load(ctx context.Context, name string) (*APIKeyInfo, error) {
	data, err := s.client.Get(ctx, name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup key: %w", err)
	}

	var info APIKeyInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key info: %w", err)
	}
	return &info, nil
}

func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
