package queue

import (
	"encoding/json"
	"time"

	"github.com/go-redis/redis"
)

// SnapshotStore persists queue and max-id snapshots so a restart can pick
// up where the previous process left off. Writes happen fire-and-forget
// from the fetch path; nothing in the hot path waits on them.
type SnapshotStore interface {
	SaveQueue(snap Snapshot) error
	LoadQueue() (Snapshot, error)
	SaveMaxIDs(maxIDs map[string]int) error
	LoadMaxIDs() (map[string]int, error)
}

const (
	redisQueueKey  = "postfetcher:queue"
	redisMaxIDsKey = "postfetcher:maxids"
)

type RedisSnapshot struct {
	client *redis.Client
}

func NewRedisSnapshot(addr string) (*RedisSnapshot, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		MaxRetries:      5,
		MaxRetryBackoff: time.Second * 3,
		MinRetryBackoff: time.Millisecond * 100,
		ReadTimeout:     time.Second * 3,
		WriteTimeout:    time.Second * 3,
		PoolSize:        10,
		MinIdleConns:    5,
	})

	if err := client.Ping().Err(); err != nil {
		return nil, err
	}
	return &RedisSnapshot{client: client}, nil
}

func (r *RedisSnapshot) SaveQueue(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.client.Set(redisQueueKey, data, 0).Err()
}

func (r *RedisSnapshot) LoadQueue() (Snapshot, error) {
	data, err := r.client.Get(redisQueueKey).Bytes()
	if err == redis.Nil {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *RedisSnapshot) SaveMaxIDs(maxIDs map[string]int) error {
	data, err := json.Marshal(maxIDs)
	if err != nil {
		return err
	}
	return r.client.Set(redisMaxIDsKey, data, 0).Err()
}

func (r *RedisSnapshot) LoadMaxIDs() (map[string]int, error) {
	data, err := r.client.Get(redisMaxIDsKey).Bytes()
	if err == redis.Nil {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, err
	}
	var maxIDs map[string]int
	if err := json.Unmarshal(data, &maxIDs); err != nil {
		return nil, err
	}
	return maxIDs, nil
}
