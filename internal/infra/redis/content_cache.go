package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"mathquest-service/internal/domain"
)

// ContentLoader fetches lesson content from a backing store (Postgres).
type ContentLoader interface {
	LoadLesson(ctx context.Context, lessonID int64) (domain.Lesson, error)
	LoadLessons(ctx context.Context) ([]domain.Lesson, error)
}

// ContentRepository caches whole lessons (answer keys included) as JSON blobs
// in Redis and falls back to the loader on cache miss. The cached form is the
// grading view, never served to clients directly.
type ContentRepository struct {
	client *redis.Client
	loader ContentLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewContentRepository(client *redis.Client, loader ContentLoader, ttl time.Duration) *ContentRepository {
	return &ContentRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ContentRepository) GetLesson(ctx context.Context, lessonID int64) (domain.Lesson, error) {
	key := r.lessonKey(lessonID)

	if lesson, ok := r.fromCache(ctx, key); ok {
		return lesson, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if lesson, ok := r.fromCache(ctx, key); ok {
			return lesson, nil
		}

		lesson, err := r.loader.LoadLesson(ctx, lessonID)
		if err != nil {
			return domain.Lesson{}, err
		}

		data, err := json.Marshal(lesson)
		if err != nil {
			return domain.Lesson{}, fmt.Errorf("marshal lesson: %w", err)
		}
		// best-effort: a failed cache write only costs the next reader a load
		_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()

		return lesson, nil
	})
	if err != nil {
		return domain.Lesson{}, err
	}
	return result.(domain.Lesson), nil
}

// ListLessons bypasses the cache; listings are served straight from the store.
func (r *ContentRepository) ListLessons(ctx context.Context) ([]domain.Lesson, error) {
	return r.loader.LoadLessons(ctx)
}

func (r *ContentRepository) fromCache(ctx context.Context, key string) (domain.Lesson, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Lesson{}, false
	}
	var lesson domain.Lesson
	if err := json.Unmarshal(raw, &lesson); err != nil {
		return domain.Lesson{}, false
	}
	return lesson, true
}

func (r *ContentRepository) lessonKey(lessonID int64) string {
	return "lesson:" + strconv.FormatInt(lessonID, 10) + ":content"
}

func (r *ContentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
