package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"live-poll-service/internal/domain"
)

// recordScript inserts the response only if the participant has none yet and
// bumps the per-label tally in the same atomic step.
var recordScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call('HINCRBY', KEYS[2], ARGV[3], 1)
return 1
`)

// ResponseStore keeps responses in Redis hashes:
//
//	HSET responses:{questionID} {participantID} {json}
//	HINCRBY tally:{questionID} {label} 1
type ResponseStore struct {
	client *redis.Client
}

func NewResponseStore(client *redis.Client) *ResponseStore {
	return &ResponseStore{client: client}
}

func (s *ResponseStore) RecordResponse(ctx context.Context, r domain.Response) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	inserted, err := recordScript.Run(ctx, s.client,
		[]string{s.responsesKey(r.QuestionID), s.tallyKey(r.QuestionID)},
		r.ParticipantID, data, r.Label,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: record response: %v", domain.ErrStorageUnavailable, err)
	}
	if inserted == 0 {
		return domain.ErrDuplicateSubmission
	}
	return nil
}

func (s *ResponseStore) Tally(ctx context.Context, questionID string) (map[string]int, error) {
	raw, err := s.client.HGetAll(ctx, s.tallyKey(questionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: tally: %v", domain.ErrStorageUnavailable, err)
	}
	counts := make(map[string]int, len(raw))
	for label, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		counts[label] = n
	}
	return counts, nil
}

// Response loads one participant's response, if recorded.
func (s *ResponseStore) Response(ctx context.Context, questionID, participantID string) (domain.Response, bool, error) {
	data, err := s.client.HGet(ctx, s.responsesKey(questionID), participantID).Bytes()
	if err == redis.Nil {
		return domain.Response{}, false, nil
	}
	if err != nil {
		return domain.Response{}, false, fmt.Errorf("%w: load response: %v", domain.ErrStorageUnavailable, err)
	}
	var r domain.Response
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Response{}, false, fmt.Errorf("unmarshal response: %w", err)
	}
	return r, true, nil
}

func (s *ResponseStore) responsesKey(questionID string) string {
	return "responses:" + questionID
}

func (s *ResponseStore) tallyKey(questionID string) string {
	return "tally:" + questionID
}
