package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rahullym/GMBpro/internal/domain"
	"github.com/rahullym/GMBpro/internal/jobs"
)

// Queue is a Redis-backed jobs.Queue.
//
// Per queue name it keeps four keys:
//
//	gmbpro:q:{name}          pending list (LPUSH producer, BLMOVE consumer)
//	gmbpro:q:{name}:active   in-flight list, resolved by Ack/Retry/DeadLetter
//	gmbpro:q:{name}:delayed  zset of retry envelopes scored by ready time
//	gmbpro:q:{name}:dead     dead-letter list
//
// A delivery moves pending -> active atomically via BLMOVE, so a crashed
// worker leaves its jobs on the active list for Recover to re-queue.
type Queue struct {
	c *redis.Client
}

func New(addr, pass string, db int) *Queue {
	return &Queue{c: redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})}
}

func NewFromClient(c *redis.Client) *Queue { return &Queue{c: c} }

func pendingKey(q string) string { return "gmbpro:q:" + q }
func activeKey(q string) string  { return "gmbpro:q:" + q + ":active" }
func delayedKey(q string) string { return "gmbpro:q:" + q + ":delayed" }
func deadKey(q string) string    { return "gmbpro:q:" + q + ":dead" }

func marshal(env jobs.Envelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(b), nil
}

func (q *Queue) Enqueue(ctx context.Context, env jobs.Envelope) error {
	member, err := marshal(env)
	if err != nil {
		return err
	}
	return q.c.LPush(ctx, pendingKey(env.Queue), member).Err()
}

// Dequeue promotes due retries, then blocks up to wait on the pending list.
func (q *Queue) Dequeue(ctx context.Context, queue string, wait time.Duration) (jobs.Envelope, bool, error) {
	if err := q.promoteDue(ctx, queue); err != nil {
		return jobs.Envelope{}, false, err
	}
	raw, err := q.c.BLMove(ctx, pendingKey(queue), activeKey(queue), "RIGHT", "LEFT", wait).Result()
	if err == redis.Nil {
		return jobs.Envelope{}, false, nil
	}
	if err != nil {
		return jobs.Envelope{}, false, err
	}
	var env jobs.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// undecodable member cannot be handled; park it on the dead list
		q.c.LRem(ctx, activeKey(queue), 1, raw)
		q.c.LPush(ctx, deadKey(queue), raw)
		return jobs.Envelope{}, false, fmt.Errorf("corrupt envelope on %s: %w", queue, err)
	}
	return env, true, nil
}

// promoteDue moves delayed members whose ready time has passed back to pending.
func (q *Queue) promoteDue(ctx context.Context, queue string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.c.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	for _, m := range members {
		removed, err := q.c.ZRem(ctx, delayedKey(queue), m).Result()
		if err != nil {
			return err
		}
		// only the promoter that won the ZREM may push, or concurrent
		// promoters would duplicate the job
		if removed > 0 {
			if err := q.c.LPush(ctx, pendingKey(queue), m).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q *Queue) Ack(ctx context.Context, env jobs.Envelope) error {
	member, err := marshal(env)
	if err != nil {
		return err
	}
	return q.c.LRem(ctx, activeKey(env.Queue), 1, member).Err()
}

func (q *Queue) Retry(ctx context.Context, env jobs.Envelope, delay time.Duration) error {
	delivered, err := marshal(env)
	if err != nil {
		return err
	}
	env.Attempt++
	next, err := marshal(env)
	if err != nil {
		return err
	}
	pipe := q.c.TxPipeline()
	pipe.LRem(ctx, activeKey(env.Queue), 1, delivered)
	pipe.ZAdd(ctx, delayedKey(env.Queue), redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: next,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (q *Queue) DeadLetter(ctx context.Context, env jobs.Envelope, reason string) error {
	delivered, err := marshal(env)
	if err != nil {
		return err
	}
	dj := jobs.DeadJob{Envelope: env, Reason: reason, DiedAt: time.Now().UTC()}
	member, err := json.Marshal(dj)
	if err != nil {
		return err
	}
	pipe := q.c.TxPipeline()
	pipe.LRem(ctx, activeKey(env.Queue), 1, delivered)
	pipe.LPush(ctx, deadKey(env.Queue), string(member))
	_, err = pipe.Exec(ctx)
	return err
}

func (q *Queue) ListDead(ctx context.Context, queue string, limit int) ([]jobs.DeadJob, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := q.c.LRange(ctx, deadKey(queue), 0, int64(limit-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]jobs.DeadJob, 0, len(raws))
	for _, raw := range raws {
		var dj jobs.DeadJob
		if err := json.Unmarshal([]byte(raw), &dj); err != nil {
			continue
		}
		out = append(out, dj)
	}
	return out, nil
}

var ErrDeadJobNotFound = fmt.Errorf("dead job: %w", domain.ErrNotFound)

// ReplayDead puts one dead job back on its pending list with a fresh attempt
// counter.
func (q *Queue) ReplayDead(ctx context.Context, queue, jobID string) error {
	raws, err := q.c.LRange(ctx, deadKey(queue), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	for _, raw := range raws {
		var dj jobs.DeadJob
		if err := json.Unmarshal([]byte(raw), &dj); err != nil {
			continue
		}
		if dj.Envelope.ID != jobID {
			continue
		}
		if err := q.c.LRem(ctx, deadKey(queue), 1, raw).Err(); err != nil {
			return err
		}
		env := dj.Envelope
		env.Attempt = 1
		return q.Enqueue(ctx, env)
	}
	return ErrDeadJobNotFound
}

// Recover drains the active list back to pending. Only safe while no worker
// is consuming the queue, i.e. at startup.
func (q *Queue) Recover(ctx context.Context, queue string) (int, error) {
	n := 0
	for {
		_, err := q.c.LMove(ctx, activeKey(queue), pendingKey(queue), "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}
