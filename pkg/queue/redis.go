package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"SignalScope/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Option configures RedisQueue.
type Option func(*RedisQueue)

// WithWorkers sets the number of consuming goroutines.
func WithWorkers(n int) Option {
	return func(r *RedisQueue) {
		if n > 0 {
			r.cfg.Workers = n
		}
	}
}

// WithRetry sets how often and after what delay failed messages are retried.
func WithRetry(limit int, delay time.Duration) Option {
	return func(r *RedisQueue) {
		if limit >= 0 {
			r.cfg.RetryLimit = limit
		}
		if delay > 0 {
			r.cfg.RetryDelay = delay
		}
	}
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.cfg.KeyPrefix = prefix
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *RedisQueue) {
		if l != nil {
			r.log = l
		}
	}
}

// RedisQueue pushes messages with LPUSH and consumes them with BRPOP.
// Failed messages wait in a sorted set scored by their due time.
type RedisQueue struct {
	client *redis.Client
	cfg    Config
	log    *logger.Logger

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now   func() time.Time
	newID func() string
}

func NewRedisQueue(client *redis.Client, opts ...Option) *RedisQueue {
	r := &RedisQueue{
		client: client,
		cfg:    defaultConfig(),
		log:    logger.Nop(),
		jobs:   make(map[string]Job),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterJob routes messages of job.Type() to job. A later registration
// for the same type is ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		r.log.Warn("job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
}

// Start checks the connection and launches the workers and the retry
// promoter.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	r.cancel = stop
	r.running = true

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(runCtx)
	}
	r.wg.Add(1)
	go r.retryLoop(runCtx)

	r.log.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("prefix", r.cfg.KeyPrefix),
	)
	return nil
}

// Stop cancels the workers and waits for in-flight messages.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Enqueue stores a message for jobType and returns its id.
func (r *RedisQueue) Enqueue(ctx context.Context, jobType string, payload any) (string, error) {
	r.mu.RLock()
	_, known := r.jobs[jobType]
	r.mu.RUnlock()
	if !known {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, jobType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{ID: r.newID(), Type: jobType, Payload: raw, EnqueuedAt: r.now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), string(data)).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

func (r *RedisQueue) worker(ctx context.Context) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		res, err := r.client.BRPop(ctx, r.cfg.PollInterval, r.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			r.log.Error("brpop error", logger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(r.cfg.PollInterval):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		r.dispatch(ctx, res[1])
	}
}

// dispatch runs one raw message and schedules a retry or dead-letters it
// on failure.
func (r *RedisQueue) dispatch(ctx context.Context, raw string) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.log.Error("drop undecodable message", logger.Error(err))
		r.deadLetter(ctx, raw)
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(ctx, raw)
		return
	}

	err := r.safeHandle(ctx, job, msg)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		// shutting down: put it back for the next run
		r.scheduleRetry(context.Background(), msg, r.now())
		return
	}
	r.log.Warn("job failed",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err),
	)
	if msg.Attempts >= r.cfg.RetryLimit {
		data, _ := json.Marshal(msg)
		r.deadLetter(ctx, string(data))
		return
	}
	msg.Attempts++
	r.scheduleRetry(ctx, msg, r.now().Add(r.cfg.RetryDelay))
}

func (r *RedisQueue) safeHandle(ctx context.Context, job Job, msg Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", msg.Type, p)
		}
	}()
	return job.Handle(ctx, msg.Payload)
}

func (r *RedisQueue) scheduleRetry(ctx context.Context, msg Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal retry", logger.Error(err))
		return
	}
	z := redis.Z{Score: float64(at.UnixMilli()), Member: string(data)}
	if err := r.client.ZAdd(ctx, r.retryKey(), z).Err(); err != nil {
		r.log.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(ctx context.Context, raw string) {
	if err := r.client.LPush(ctx, r.deadLetterKey(), raw).Err(); err != nil {
		r.log.Error("lpush dead letter", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.promoteDue(ctx)
		}
	}
}

// promoteDue moves retries whose due time has passed back onto the queue.
func (r *RedisQueue) promoteDue(ctx context.Context) int {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(r.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error("fetch due retries", logger.Error(err))
		}
		return 0
	}

	moved := 0
	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, r.retryKey(), member)
		pipe.LPush(ctx, r.queueKey(), member)
		if _, err := pipe.Exec(ctx); err != nil {
			if ctx.Err() != nil {
				return moved
			}
			r.log.Error("promote retry", logger.Error(err))
			continue
		}
		moved++
	}
	return moved
}

func (r *RedisQueue) queueKey() string      { return r.cfg.KeyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.cfg.KeyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.cfg.KeyPrefix + ":dlq" }
