package store

import (
    "context"
    "fmt"
    "strconv"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Record is the status of one analysis. Results themselves are never stored.
type Record struct {
    ID            string     `json:"analysis_id"`
    Session       string     `json:"session"`
    Status        string     `json:"status"`
    Client        string     `json:"client"`
    Retry         bool       `json:"retry"`
    ErrorKind     string     `json:"error_kind,omitempty"`
    Message       string     `json:"message,omitempty"`
    RetryIn       int        `json:"retry_in_seconds,omitempty"`
    FoodItems     int        `json:"food_items"`
    ShoppingItems int        `json:"shopping_items"`
    Start         *time.Time `json:"start_time,omitempty"`
    End           *time.Time `json:"end_time,omitempty"`
}

// Analysis statuses.
const (
    StatusRunning = "running"
    StatusDone    = "done"
    StatusFailed  = "failed"
)

// StatusStore keeps analysis records for a limited time.
type StatusStore interface {
    Set(ctx context.Context, rec Record) error
    Get(ctx context.Context, id string) (Record, bool, error)
    Close() error
}

type RedisStatus struct {
    client *redis.Client
    keyNS  string
    ttl    time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil {
        _ = c.Close()
        return nil, err
    }
    return &RedisStatus{client: c, keyNS: "analysis", ttl: ttl}, nil
}

func (s *RedisStatus) key(id string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, id) }

func (s *RedisStatus) Set(ctx context.Context, rec Record) error {
    key := s.key(rec.ID)
    _, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
        p.HSet(ctx, key, toFields(rec))
        if s.ttl > 0 { p.Expire(ctx, key, s.ttl) }
        return nil
    })
    return err
}

func (s *RedisStatus) Get(ctx context.Context, id string) (Record, bool, error) {
    res, err := s.client.HGetAll(ctx, s.key(id)).Result()
    if err != nil { return Record{}, false, err }
    if len(res) == 0 { return Record{}, false, nil }
    rec := fromFields(res)
    rec.ID = id
    return rec, true, nil
}

func (s *RedisStatus) Close() error { return s.client.Close() }

func toFields(rec Record) map[string]interface{} {
    m := map[string]interface{}{
        "session":        rec.Session,
        "status":         rec.Status,
        "client":         rec.Client,
        "retry":          strconv.FormatBool(rec.Retry),
        "error_kind":     rec.ErrorKind,
        "message":        rec.Message,
        "retry_in":       rec.RetryIn,
        "food_items":     rec.FoodItems,
        "shopping_items": rec.ShoppingItems,
    }
    if rec.Start != nil { m["start"] = rec.Start.Format(time.RFC3339Nano) }
    if rec.End != nil { m["end"] = rec.End.Format(time.RFC3339Nano) }
    return m
}

func fromFields(res map[string]string) Record {
    rec := Record{
        Session:   res["session"],
        Status:    res["status"],
        Client:    res["client"],
        ErrorKind: res["error_kind"],
        Message:   res["message"],
    }
    rec.Retry, _ = strconv.ParseBool(res["retry"])
    rec.RetryIn = atoi(res["retry_in"])
    rec.FoodItems = atoi(res["food_items"])
    rec.ShoppingItems = atoi(res["shopping_items"])
    if v := res["start"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { rec.Start = &t }
    }
    if v := res["end"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { rec.End = &t }
    }
    return rec
}

// atoi ignores parse errors; default 0
func atoi(s string) int {
    n, _ := strconv.Atoi(s)
    return n
}

// Ping reports whether Redis is reachable.
func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }
