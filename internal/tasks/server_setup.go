package tasks

import (
	"log/slog"

	"github.com/hibiken/asynq"
)

func NewServer(redisOpt asynq.RedisConnOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			Logger: slogAdapter{},
		},
	)
}

func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCheckoutNotify, h.HandleCheckoutNotify)
	mux.HandleFunc(TypeEarningsAdd, h.HandleEarningsAdd)
	return mux
}

// slogAdapter routes asynq's internal logging through the process logger.
type slogAdapter struct{}

func (slogAdapter) Debug(args ...any) { slog.Debug("asynq", "msg", args) }
func (slogAdapter) Info(args ...any)  { slog.Info("asynq", "msg", args) }
func (slogAdapter) Warn(args ...any)  { slog.Warn("asynq", "msg", args) }
func (slogAdapter) Error(args ...any) { slog.Error("asynq", "msg", args) }
func (slogAdapter) Fatal(args ...any) { slog.Error("asynq fatal", "msg", args) }
