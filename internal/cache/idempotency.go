package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRequestInProgress возвращается, если запрос с тем же ключом еще выполняется
var ErrRequestInProgress = errors.New("cache: request with this idempotency key is in progress")

const pendingMarker = "pending"

// StoredResponse: сохраненный ответ для повторной отдачи
type StoredResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body"`
}

// IdempotencyStore хранит ответы по ключу идемпотентности.
// Ключ сначала резервируется маркером, затем заменяется итоговым ответом.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore создает новый IdempotencyStore
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}

// Reserve резервирует ключ. Если по ключу уже есть ответ, он возвращается для повтора.
// Если ключ зарезервирован другим запросом, возвращается ErrRequestInProgress.
func (s *IdempotencyStore) Reserve(ctx context.Context, scope, key string) (*StoredResponse, error) {
	k := idempotencyKey(scope, key)

	ok, err := s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: failed to reserve idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Ключ истек между SETNX и GET
			return s.Reserve(ctx, scope, key)
		}
		return nil, fmt.Errorf("cache: failed to read idempotency key: %w", err)
	}

	if string(raw) == pendingMarker {
		return nil, ErrRequestInProgress
	}

	var resp StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("cache: failed to decode stored response: %w", err)
	}

	return &resp, nil
}

// Complete сохраняет итоговый ответ вместо маркера
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key string, resp *StoredResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache: failed to encode response: %w", err)
	}

	if err := s.client.Set(ctx, idempotencyKey(scope, key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to store response: %w", err)
	}

	return nil
}

// Release снимает резерв, чтобы клиент мог повторить запрос с тем же ключом
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, idempotencyKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("cache: failed to release idempotency key: %w", err)
	}
	return nil
}
