package pvpchan

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-duel/internal/obslog"
	"github.com/park285/cheese-duel/internal/pvpchess"
)

const publishRetries = 3

// RedisOptions tunes a RedisStore.
type RedisOptions struct {
	TTL time.Duration
	// Strict면 BasePlies가 저장된 기보 길이와 다른 델타를 거부.
	Strict bool
	Now    func() time.Time
}

// RedisStore keeps each session as a hash and announces writes on a pub/sub channel.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	strict bool
	now    func() time.Time
}

func NewRedisStore(rdb *redis.Client, opts RedisOptions) *RedisStore {
	s := &RedisStore{rdb: rdb, ttl: opts.TTL, strict: opts.Strict, now: opts.Now}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// NewRedisClient는 redis:// URL을 파싱하고 PING으로 연결을 확인.
func NewRedisClient(ctx context.Context, raw string) (*redis.Client, error) {
	opts, err := ParseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// ParseRedisURL accepts redis:// and rediss:// URLs with an optional /db path.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

func (s *RedisStore) Create(ctx context.Context, sess pvpchess.Session) error {
	if strings.TrimSpace(sess.ID) == "" {
		return ErrInvalidArgs
	}
	fields, err := encodeSession(sess)
	if err != nil {
		return err
	}
	key := sessionKey(sess.ID)
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		return s.write(ctx, tx, sess.ID, fields)
	}, key)
}

func (s *RedisStore) Load(ctx context.Context, id string) (*pvpchess.Session, error) {
	h, err := s.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return nil, nil
	}
	sess, err := decodeSession(h)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ClaimSeat atomically seats userID at color and activates the session.
// A participant already seated gets the record back unchanged.
func (s *RedisStore) ClaimSeat(ctx context.Context, id string, color pvpchess.Color, userID string) (pvpchess.Session, error) {
	if strings.TrimSpace(userID) == "" || !color.Valid() {
		return pvpchess.Session{}, ErrInvalidArgs
	}
	key := sessionKey(id)
	var out pvpchess.Session
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		h, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(h) == 0 {
			return ErrNotFound
		}
		cur, err := decodeSession(h)
		if err != nil {
			return err
		}
		next, fields, err := claim(cur, color, userID, s.now())
		if err != nil {
			return err
		}
		out = next
		if len(fields) == 0 {
			return nil
		}
		return s.write(ctx, tx, id, fields)
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return pvpchess.Session{}, ErrSeatTaken
	}
	return out, err
}

// Publish writes the fields present in d. Fields not in d keep their value.
func (s *RedisStore) Publish(ctx context.Context, id string, d pvpchess.Delta) error {
	fields, err := encodeDelta(d)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	key := sessionKey(id)
	guard := s.strict && d.HasContent()

	for attempt := 1; ; attempt++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			h, err := tx.HMGet(ctx, key, fieldID, fieldPlies).Result()
			if err != nil {
				return err
			}
			if h[0] == nil {
				return ErrNotFound
			}
			if guard {
				plies := 0
				if v, ok := h[1].(string); ok {
					plies, _ = strconv.Atoi(v)
				}
				if plies != d.BasePlies {
					return fmt.Errorf("%w: stored %d plies, delta built on %d", ErrVersionConflict, plies, d.BasePlies)
				}
			}
			return s.write(ctx, tx, id, fields)
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if guard {
			return ErrVersionConflict
		}
		if attempt >= publishRetries {
			return fmt.Errorf("publish %s: %w", id, err)
		}
	}
}

func (s *RedisStore) write(ctx context.Context, tx *redis.Tx, id string, fields map[string]string) error {
	key := sessionKey(id)
	pipe := tx.TxPipeline()
	pipe.HSet(ctx, key, toArgs(fields))
	pipe.HIncrBy(ctx, key, fieldVersion, 1)
	pipe.Expire(ctx, key, s.ttl)
	pipe.Publish(ctx, eventsChannel(id), changeNote(fields))
	_, err := pipe.Exec(ctx)
	return err
}

// Subscribe delivers the current record once and then again after every write.
func (s *RedisStore) Subscribe(ctx context.Context, id string, fn SnapshotHandler) (Subscription, error) {
	ps := s.rdb.Subscribe(ctx, eventsChannel(id))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}
	sub := &redisSubscription{ps: ps, done: make(chan struct{}), stopped: make(chan struct{})}
	go sub.loop(s, id, fn)
	return sub, nil
}

type redisSubscription struct {
	ps      *redis.PubSub
	once    sync.Once
	done    chan struct{}
	stopped chan struct{}
}

func (r *redisSubscription) loop(s *RedisStore, id string, fn SnapshotHandler) {
	defer close(r.stopped)
	lg := obslog.Session(id)
	deliver := func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		snap, err := s.Load(ctx, id)
		cancel()
		if err != nil {
			lg.Warn("sync_snapshot_load_failed", zap.Error(err))
			return
		}
		if snap == nil {
			return
		}
		select {
		case <-r.done:
			return
		default:
		}
		fn(*snap)
	}

	deliver()
	ch := r.ps.Channel()
	for {
		select {
		case <-r.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			lg.Debug("sync_notification", zap.String("fields", msg.Payload))
			deliver()
		}
	}
}

// Close는 전달을 중단. 핸들러 안에서 호출해도 됨.
func (r *redisSubscription) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.ps.Close()
	})
	return err
}
