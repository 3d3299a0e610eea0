package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"live-poll-service/internal/app"
	"live-poll-service/internal/domain"
)

// fillScript stores a question only if its version is still the one the
// caller read before loading it.
var fillScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// QuestionCache caches questions in Redis as JSON and falls back to the
// backing repository on a miss:
//
//	SET  question:{id} {json} PX ttl
//	INCR question:{id}:version   on every state change
//
// A fill that started before a state change is discarded.
type QuestionCache struct {
	client  *redis.Client
	backing app.QuestionRepository
	ttl     time.Duration
	sf      singleflight.Group
	rndMu   sync.Mutex
	rnd     *rand.Rand
}

func NewQuestionCache(client *redis.Client, backing app.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client:  client,
		backing: backing,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) CreateQuestion(ctx context.Context, nq domain.NewQuestion) (string, error) {
	return c.backing.CreateQuestion(ctx, nq)
}

func (c *QuestionCache) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	if q, ok := c.lookup(ctx, questionID); ok {
		return q, nil
	}

	result, err, _ := c.sf.Do(questionID, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if q, ok := c.lookup(ctx, questionID); ok {
			return q, nil
		}
		version, verr := c.version(ctx, questionID)
		q, err := c.backing.GetQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		if verr == nil {
			c.fill(ctx, q, version)
		}
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *QuestionCache) SetState(ctx context.Context, questionID string, state domain.LifecycleState, openSeq uint64) error {
	if err := c.backing.SetState(ctx, questionID, state, openSeq); err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, c.versionKey(questionID))
	pipe.Del(ctx, c.key(questionID))
	// The backing write is authoritative; a failed eviction leaves an entry
	// that expires with its TTL.
	_, _ = pipe.Exec(ctx)
	return nil
}

func (c *QuestionCache) CourseLifecycle(ctx context.Context, courseID string) (domain.CourseLifecycle, error) {
	return c.backing.CourseLifecycle(ctx, courseID)
}

func (c *QuestionCache) version(ctx context.Context, questionID string) (string, error) {
	v, err := c.client.Get(ctx, c.versionKey(questionID)).Result()
	if err == redis.Nil {
		return "0", nil
	}
	return v, err
}

func (c *QuestionCache) fill(ctx context.Context, q domain.Question, version string) {
	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	ttl := c.ttlWithJitter()
	if ttl <= 0 {
		return
	}
	_ = fillScript.Run(ctx, c.client,
		[]string{c.key(q.ID), c.versionKey(q.ID)},
		version, data, strconv.FormatInt(ttl.Milliseconds(), 10),
	).Err()
}

func (c *QuestionCache) lookup(ctx context.Context, questionID string) (domain.Question, bool) {
	data, err := c.client.Get(ctx, c.key(questionID)).Bytes()
	if err != nil {
		return domain.Question{}, false
	}
	var q domain.Question
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.Question{}, false
	}
	return q, true
}

func (c *QuestionCache) key(questionID string) string {
	return "question:" + questionID
}

func (c *QuestionCache) versionKey(questionID string) string {
	return "question:" + questionID + ":version"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
