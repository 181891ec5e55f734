package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"warungpos/terminal/internal/xid"
)

const (
	// Signal channel and last-value key: pos:signal:{tenant}:{branch}.
	keySignal = "pos:signal:%s"
	// Dispatcher lease key: pos:lease:{tenant}:{branch} -> owner id.
	keyLease = "pos:lease:%s"
)

var (
	leaseTTL      = 15 * time.Second
	heartbeatTick = 5 * time.Second
)

// renewScript extends the lease only while we still own it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only while we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis coordinates agent processes of one terminal through a local redis
// instance: pub/sub for the change signal, a SET NX PX lease with heartbeat
// renewal for dispatcher election.
type Redis struct {
	client    *redis.Client
	signalKey string
	leaseKey  string
	ownerID   string
	logger    *zap.Logger

	mu          sync.Mutex
	subscribers []func(Signal)
	held        bool

	runCtx    context.Context
	runCancel context.CancelFunc
	pubsub    *redis.PubSub
	wg        sync.WaitGroup
}

func NewRedis(addr string, password string, db int, scopeID string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithCancel(context.Background())
	return &Redis{
		client:    client,
		signalKey: fmt.Sprintf(keySignal, scopeID),
		leaseKey:  fmt.Sprintf(keyLease, scopeID),
		ownerID:   xid.New("agent"),
		logger:    logger,
		runCtx:    ctx,
		runCancel: cancel,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Start begins listening for signals published by other processes. Must be
// called once before Subscribe handlers are expected to fire.
func (r *Redis) Start() {
	r.pubsub = r.client.Subscribe(r.runCtx, r.signalKey)
	r.wg.Add(1)
	go r.receive()
}

func (r *Redis) receive() {
	defer r.wg.Done()
	ch := r.pubsub.Channel()
	for {
		select {
		case <-r.runCtx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			sig, valid := decodeSignal(msg.Payload)
			if !valid {
				r.logger.Warn("ignoring malformed signal", zap.String("payload", msg.Payload))
				continue
			}
			r.mu.Lock()
			subscribers := make([]func(Signal), len(r.subscribers))
			copy(subscribers, r.subscribers)
			r.mu.Unlock()
			for _, fn := range subscribers {
				fn(sig)
			}
		}
	}
}

func (r *Redis) Broadcast(ctx context.Context, sig Signal) error {
	payload := sig.encode()
	// Keep the last signal readable for late joiners, then publish.
	if err := r.client.Set(ctx, r.signalKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("write signal key: %w", err)
	}
	if err := r.client.Publish(ctx, r.signalKey, payload).Err(); err != nil {
		return fmt.Errorf("publish signal: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(fn func(Signal)) {
	r.mu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.mu.Unlock()
}

func (r *Redis) AcquireLease(ctx context.Context) (bool, error) {
	r.mu.Lock()
	alreadyHeld := r.held
	r.mu.Unlock()
	if alreadyHeld {
		return true, nil
	}

	ok, err := r.client.SetNX(ctx, r.leaseKey, r.ownerID, leaseTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire dispatcher lease: %w", err)
	}
	if !ok {
		return false, nil
	}

	r.mu.Lock()
	r.held = true
	r.mu.Unlock()
	r.wg.Add(1)
	go r.heartbeat()
	r.logger.Info("dispatcher lease acquired", zap.String("owner", r.ownerID))
	return true, nil
}

// heartbeat renews the lease while held. If a renewal fails (redis down or
// lease stolen after an expiry) the holder drops dispatcher status and goes
// back to competing.
func (r *Redis) heartbeat() {
	defer r.wg.Done()
	ticker := time.NewTicker(heartbeatTick)
	defer ticker.Stop()

	for {
		select {
		case <-r.runCtx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			held := r.held
			r.mu.Unlock()
			if !held {
				return
			}
			renewed, err := renewScript.Run(r.runCtx, r.client,
				[]string{r.leaseKey}, r.ownerID, leaseTTL.Milliseconds()).Int()
			if err != nil || renewed == 0 {
				r.logger.Warn("dispatcher lease lost", zap.String("owner", r.ownerID), zap.Error(err))
				r.mu.Lock()
				r.held = false
				r.mu.Unlock()
				return
			}
		}
	}
}

func (r *Redis) ReleaseLease(ctx context.Context) error {
	r.mu.Lock()
	if !r.held {
		r.mu.Unlock()
		return nil
	}
	r.held = false
	r.mu.Unlock()

	if _, err := releaseScript.Run(ctx, r.client, []string{r.leaseKey}, r.ownerID).Result(); err != nil {
		return fmt.Errorf("release dispatcher lease: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	r.runCancel()
	if r.pubsub != nil {
		_ = r.pubsub.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = r.ReleaseLease(ctx)
	r.wg.Wait()
	return r.client.Close()
}
