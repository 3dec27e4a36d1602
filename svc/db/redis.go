package db

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"pastecap/cfg"
	"pastecap/metrics"
	"pastecap/pkg/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "paste:"

// Pastes live in a hash per id. No key TTL is set: expired pastes stay in
// place and are refused by the consume script.
var createScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 1 then
		return 0
	end
	redis.call("HSET", KEYS[1],
		"content", ARGV[1],
		"created_at", ARGV[2],
		"expires_at", ARGV[3],
		"max_views", ARGV[4],
		"views", 0)
	return 1
`)

var consumeScript = redis.NewScript(`
	local h = redis.call("HMGET", KEYS[1], "expires_at", "max_views", "views")
	if not h[3] then
		return false
	end
	if h[1] and h[1] ~= "" and tonumber(h[1]) < tonumber(ARGV[1]) then
		return false
	end
	if h[2] and h[2] ~= "" and tonumber(h[3]) >= tonumber(h[2]) then
		return false
	end
	redis.call("HINCRBY", KEYS[1], "views", 1)
	return redis.call("HGETALL", KEYS[1])
`)

var errDuplicateID = errors.New("paste id already exists")

type Redis struct {
	client  *redis.Client
	cb      *breaker
	timeout time.Duration
}

func NewRedis(url string, c *cfg.Cfg) (*Redis, error) {
	opt, err := redisOptions(url, c)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return NewRedisFromClient(client, c.RedisTimeout), nil
}

// redisOptions disables client retries: a consume whose reply was lost has
// already spent the view, and replaying the script would spend another.
func redisOptions(url string, c *cfg.Cfg) (*redis.Options, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.MaxRetries = -1
	if c.RedisTLS {
		tlsConfig, err := buildRedisTLSConfig(opt.Addr, c.IsProduction())
		if err != nil {
			return nil, errors.Wrap(err, "failed to build Redis TLS config")
		}
		opt.TLSConfig = tlsConfig
	}
	if c.RedisUsername != "" {
		opt.Username = c.RedisUsername
	}
	if c.RedisPassword.Value() != "" {
		opt.Password = c.RedisPassword.Value()
	}
	return opt, nil
}

// NewRedisFromClient wraps an existing client. It should be built with
// MaxRetries = -1 for the same reason as redisOptions.
func NewRedisFromClient(client *redis.Client, timeout time.Duration) *Redis {
	return &Redis{
		client:  client,
		cb:      newBreaker("redis"),
		timeout: timeout,
	}
}

func buildRedisTLSConfig(addr string, production bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	serverName := os.Getenv("REDIS_HOSTNAME")
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("cannot derive TLS server name from %q: %w", addr, err)
		}
		serverName = host
	}
	tlsConfig.ServerName = serverName
	certPath := os.Getenv("REDIS_TLS_CA_CERT")
	if certPath != "" {
		caCert, err := os.ReadFile(certPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read Redis CA cert: %w", err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append Redis CA cert to pool")
		}
		tlsConfig.RootCAs = certPool
	} else {
		systemPool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to load system cert pool: %w", err)
		}
		tlsConfig.RootCAs = systemPool
	}
	if production {
		tlsConfig.MinVersion = tls.VersionTLS13
	}
	return tlsConfig, nil
}

func (r *Redis) Create(ctx context.Context, p *domain.Paste) error {
	if err := r.cb.allow(); err != nil {
		return domain.Storage("create", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	created, err := createScript.Run(ctx, r.client, []string{keyPrefix + p.ID},
		p.Content,
		toMillis(p.CreatedAt),
		optMillis(p.ExpiresAt),
		optInt(p.MaxViews),
	).Int()
	r.cb.record(err)
	if err == nil && created == 0 {
		err = errDuplicateID
	}
	if err != nil {
		metrics.StorageErrors.WithLabelValues("create").Inc()
		return domain.Storage("create", err)
	}
	p.Views = 0
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*domain.Paste, error) {
	if err := r.cb.allow(); err != nil {
		return nil, domain.Storage("get", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	fields, err := r.client.HGetAll(ctx, keyPrefix+id).Result()
	r.cb.record(err)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("get").Inc()
		return nil, domain.Storage("get", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrPasteNotFound
	}
	p, err := decodeHash(id, fields)
	if err != nil {
		return nil, domain.Storage("get", err)
	}
	return p, nil
}

// IncrViews runs the check and the increment inside one Lua script, which
// redis executes without interleaving other commands.
func (r *Redis) IncrViews(ctx context.Context, id string, now time.Time) (*domain.Paste, error) {
	if err := r.cb.allow(); err != nil {
		return nil, domain.Storage("incr views", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	flat, err := consumeScript.Run(ctx, r.client, []string{keyPrefix + id}, toMillis(now)).StringSlice()
	r.cb.record(err)
	if err == redis.Nil {
		return nil, domain.ErrPasteNotFound
	}
	if err != nil {
		metrics.StorageErrors.WithLabelValues("incr_views").Inc()
		return nil, domain.Storage("incr views", err)
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		fields[flat[i]] = flat[i+1]
	}
	p, err := decodeHash(id, fields)
	if err != nil {
		return nil, domain.Storage("incr views", err)
	}
	return p, nil
}

func (r *Redis) Exists(ctx context.Context, id string) (bool, error) {
	if err := r.cb.allow(); err != nil {
		return false, domain.Storage("exists", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := r.client.Exists(ctx, keyPrefix+id).Result()
	r.cb.record(err)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("exists").Inc()
		return false, domain.Storage("exists", err)
	}
	return n > 0, nil
}

func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func decodeHash(id string, f map[string]string) (*domain.Paste, error) {
	p := &domain.Paste{ID: id, Content: f["content"]}
	createdAt, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "decode created_at")
	}
	p.CreatedAt = fromMillis(createdAt)
	if p.Views, err = strconv.ParseInt(f["views"], 10, 64); err != nil {
		return nil, errors.Wrap(err, "decode views")
	}
	if s := f["expires_at"]; s != "" {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "decode expires_at")
		}
		t := fromMillis(ms)
		p.ExpiresAt = &t
	}
	if s := f["max_views"]; s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "decode max_views")
		}
		p.MaxViews = &v
	}
	return p, nil
}

func optMillis(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(toMillis(*t), 10)
}
func optInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
