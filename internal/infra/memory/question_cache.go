package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"live-poll-service/internal/app"
	"live-poll-service/internal/domain"
)

// QuestionCache is a read-through TTL cache in front of a QuestionRepository.
// Lifecycle writes go through to the backing repository and evict the entry.
type QuestionCache struct {
	backing app.QuestionRepository
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group
	rndMu   sync.Mutex
	rnd     *rand.Rand

	mu        sync.RWMutex
	cache     map[string]cachedQuestion
	evictions map[string]uint64 // bumped by SetState; a load that raced it is not stored
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionCache(backing app.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		backing:   backing,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:     make(map[string]cachedQuestion),
		evictions: make(map[string]uint64),
	}
}

func (c *QuestionCache) CreateQuestion(ctx context.Context, nq domain.NewQuestion) (string, error) {
	return c.backing.CreateQuestion(ctx, nq)
}

func (c *QuestionCache) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	if q, ok := c.lookup(questionID); ok {
		return q, nil
	}

	result, err, _ := c.sf.Do(questionID, func() (interface{}, error) {
		if q, ok := c.lookup(questionID); ok {
			return q, nil
		}
		c.mu.RLock()
		generation := c.evictions[questionID]
		c.mu.RUnlock()

		q, err := c.backing.GetQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		c.mu.Lock()
		if c.evictions[questionID] == generation {
			c.cache[questionID] = cachedQuestion{
				question:  q,
				expiresAt: c.clock().Add(c.ttlWithJitter()),
			}
		}
		c.mu.Unlock()
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *QuestionCache) SetState(ctx context.Context, questionID string, state domain.LifecycleState, openSeq uint64) error {
	err := c.backing.SetState(ctx, questionID, state, openSeq)
	c.mu.Lock()
	delete(c.cache, questionID)
	c.evictions[questionID]++
	c.mu.Unlock()
	return err
}

func (c *QuestionCache) CourseLifecycle(ctx context.Context, courseID string) (domain.CourseLifecycle, error) {
	return c.backing.CourseLifecycle(ctx, courseID)
}

func (c *QuestionCache) lookup(questionID string) (domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[questionID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Question{}, false
	}
	return entry.question, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
