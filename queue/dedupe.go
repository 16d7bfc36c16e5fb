package queue

import (
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/lcpu-club/optdeadline/configure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Deduper remembers request ids so a redelivered message does not start a
// second session.
type Deduper interface {
	// Seen marks key and reports whether it was already marked.
	Seen(key string) (bool, error)
	Forget(key string) error
}

type RedisDeduper struct {
	mu     sync.Mutex
	conn   redis.Conn
	prefix string
	expire time.Duration
}

func NewRedisDeduper(conn redis.Conn, prefix string, expire time.Duration) *RedisDeduper {
	return &RedisDeduper{conn: conn, prefix: prefix, expire: expire}
}

func DialRedis(conf *configure.RedisConfigure) (*RedisDeduper, error) {
	options := []redis.DialOption{}
	if conf.Password != "" {
		options = append(options, redis.DialPassword(conf.Password))
	}
	options = append(options, redis.DialKeepAlive(conf.KeepAlive))
	options = append(options, redis.DialDatabase(conf.Database))
	conn, err := redis.Dial("tcp", conf.Address, options...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	log.WithField("address", conf.Address).Info("Connected to Redis Server")
	return NewRedisDeduper(conn, conf.Prefix, conf.Expire), nil
}

func (d *RedisDeduper) Seen(key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := d.prefix + key
	n, err := redis.Int64(d.conn.Do("INCR", k))
	if err != nil {
		return true, errors.WithStack(err)
	}
	if n == 1 {
		_, err = d.conn.Do("EXPIRE", k, int64(d.expire/time.Second))
		return false, errors.WithStack(err)
	}
	return true, nil
}

func (d *RedisDeduper) Forget(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Do("DEL", d.prefix+key)
	return errors.WithStack(err)
}

func (d *RedisDeduper) Close() error {
	return d.conn.Close()
}
