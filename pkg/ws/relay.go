package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tokmz/qim/pkg/logger"
)

// Relay 跨节点中继
// Forward 不阻塞发布方；Start 注册远端信封的本地投递函数
type Relay interface {
	Forward(dest Destination, payload []byte)
	Start(ctx context.Context, deliver func(Destination, []byte)) error
	Close() error
}

// relayEnvelope 中继线路格式
type relayEnvelope struct {
	Node        string          `json:"node"`
	Destination Destination     `json:"destination"`
	Payload     json.RawMessage `json:"payload"`
}

// RedisRelay 基于 Redis Pub/Sub 的中继
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	nodeID  string
	log     logger.Logger

	outbox  chan relayEnvelope
	dropped atomic.Int64

	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRedisRelay 创建中继，client 由调用方持有
func NewRedisRelay(client redis.UniversalClient, channel string, log logger.Logger) *RedisRelay {
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		nodeID:  uuid.NewString(),
		log:     log,
		outbox:  make(chan relayEnvelope, 1024),
	}
}

// NodeID 本节点标识
func (r *RedisRelay) NodeID() string { return r.nodeID }

// Dropped 因出站缓冲满而丢弃的数量
func (r *RedisRelay) Dropped() int64 { return r.dropped.Load() }

// Forward 入队待转发的信封，缓冲满时丢弃
func (r *RedisRelay) Forward(dest Destination, payload []byte) {
	select {
	case r.outbox <- relayEnvelope{Node: r.nodeID, Destination: dest, Payload: payload}:
	default:
		r.dropped.Add(1)
		r.log.Warn("relay outbox full, envelope dropped", zap.String("destination", string(dest)))
	}
}

// Start 订阅频道并启动发送协程
func (r *RedisRelay) Start(ctx context.Context, deliver func(Destination, []byte)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	r.pubsub = pubsub

	ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.publishLoop(ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.receiveLoop(pubsub.Channel(), deliver)
	}()
	return nil
}

// publishLoop 单协程顺序发送，保持本节点的发布顺序
func (r *RedisRelay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.outbox:
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := r.client.Publish(pctx, r.channel, data).Err(); err != nil {
				r.log.Warn("relay publish failed", zap.String("destination", string(env.Destination)), zap.Error(err))
			}
			cancel()
		}
	}
}

func (r *RedisRelay) receiveLoop(ch <-chan *redis.Message, deliver func(Destination, []byte)) {
	for msg := range ch {
		r.handle([]byte(msg.Payload), deliver)
	}
}

// handle 解码远端信封，跳过本节点发出的
func (r *RedisRelay) handle(data []byte, deliver func(Destination, []byte)) bool {
	var env relayEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.log.Warn("relay envelope decode failed", zap.Error(err))
		return false
	}
	if env.Node == r.nodeID || env.Destination == "" {
		return false
	}
	deliver(env.Destination, env.Payload)
	return true
}

// Close 停止中继
func (r *RedisRelay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		if r.pubsub != nil {
			err = r.pubsub.Close()
		}
		r.wg.Wait()
	})
	return err
}
