// README: Outbound notification boundary; log and Redis pub/sub implementations.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rideflow/internal/types"
)

// Notifier is the outbound boundary to the notification subsystem. The
// engine calls it from transition handlers; delivery is someone else's job.
type Notifier interface {
	Notify(ctx context.Context, userID types.ID, title, message string, payload map[string]any)
}

// LogNotifier writes notifications to the structured log. Used in
// development and as the fallback sink.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, userID types.ID, title, message string, payload map[string]any) {
	n.log.Info("notify",
		zap.String("user_id", string(userID)),
		zap.String("title", title),
		zap.String("message", message),
		zap.Any("payload", payload),
	)
}

// RedisNotifier publishes notifications on a per-user Redis channel for the
// push gateway to fan out.
type RedisNotifier struct {
	redis *redis.Client
	log   *zap.Logger
}

func NewRedisNotifier(rdb *redis.Client, log *zap.Logger) *RedisNotifier {
	return &RedisNotifier{redis: rdb, log: log}
}

type redisEnvelope struct {
	UserID  string         `json:"user_id"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (n *RedisNotifier) Notify(ctx context.Context, userID types.ID, title, message string, payload map[string]any) {
	body, err := json.Marshal(redisEnvelope{
		UserID:  string(userID),
		Title:   title,
		Message: message,
		Payload: payload,
	})
	if err != nil {
		n.log.Error("notify: marshal", zap.Error(err))
		return
	}
	if err := n.redis.Publish(ctx, channelFor(userID), body).Err(); err != nil {
		n.log.Error("notify: publish", zap.String("user_id", string(userID)), zap.Error(err))
	}
}

func channelFor(userID types.ID) string {
	return fmt.Sprintf("notify:%s", string(userID))
}

// Fanout delivers each notification to every wrapped notifier.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, userID types.ID, title, message string, payload map[string]any) {
	for _, n := range f {
		n.Notify(ctx, userID, title, message, payload)
	}
}
