package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mathquest-service/internal/domain"
)

// ContentLoader fetches lesson content from a backing store.
type ContentLoader interface {
	LoadLesson(ctx context.Context, lessonID int64) (domain.Lesson, error)
	LoadLessons(ctx context.Context) ([]domain.Lesson, error)
}

// ContentRepository caches lessons with TTL to avoid repeated DB hits.
type ContentRepository struct {
	loader ContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedLesson
}

type cachedLesson struct {
	lesson    domain.Lesson
	expiresAt time.Time
}

func NewContentRepository(loader ContentLoader, ttl time.Duration) *ContentRepository {
	return &ContentRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedLesson),
	}
}

func (r *ContentRepository) GetLesson(ctx context.Context, lessonID int64) (domain.Lesson, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[lessonID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.lesson, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(sfKey(lessonID), func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[lessonID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.lesson, nil
		}
		r.mu.RUnlock()

		lesson, err := r.loader.LoadLesson(ctx, lessonID)
		if err != nil {
			return domain.Lesson{}, err
		}

		r.mu.Lock()
		r.cache[lessonID] = cachedLesson{
			lesson:    lesson,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return lesson, nil
	})
	if err != nil {
		return domain.Lesson{}, err
	}
	return result.(domain.Lesson), nil
}

// ListLessons always goes to the loader; listings are cheap and rare compared
// to per-submission lesson fetches.
func (r *ContentRepository) ListLessons(ctx context.Context) ([]domain.Lesson, error) {
	return r.loader.LoadLessons(ctx)
}

func (r *ContentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func sfKey(lessonID int64) string {
	return "lesson:" + strconv.FormatInt(lessonID, 10)
}

// StaticContentLoader is a loader backed by an in-memory map (tests/demos).
type StaticContentLoader struct {
	lessons map[int64]domain.Lesson
}

func NewStaticContentLoader(lessons map[int64]domain.Lesson) *StaticContentLoader {
	return &StaticContentLoader{lessons: lessons}
}

func (l *StaticContentLoader) LoadLesson(_ context.Context, lessonID int64) (domain.Lesson, error) {
	if lesson, ok := l.lessons[lessonID]; ok {
		return lesson, nil
	}
	return domain.Lesson{}, domain.ErrLessonNotFound
}

func (l *StaticContentLoader) LoadLessons(_ context.Context) ([]domain.Lesson, error) {
	out := make([]domain.Lesson, 0, len(l.lessons))
	for _, lesson := range l.lessons {
		out = append(out, lesson)
	}
	return out, nil
}
