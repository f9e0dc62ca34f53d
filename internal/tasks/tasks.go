package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/wavechat/wavechat-backend/internal/domain"
	"github.com/wavechat/wavechat-backend/internal/service"
	pkglogger "github.com/wavechat/wavechat-backend/pkg/logger"
)

// Task types
const (
	TypeModerationLog = "moderation:log"
	TypeIndexMessage  = "message:index"
)

const queueChat = "chat"

// Client enqueues best-effort work onto the Redis-backed queue
type Client struct {
	client *asynq.Client
}

// NewClient creates an asynq client from Redis connection options
func NewClient(addr, password string, db int) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Close releases the underlying connection
func (c *Client) Close() error { return c.client.Close() }

// EnqueueModerationLog queues a moderation log write
func (c *Client) EnqueueModerationLog(ctx context.Context, log *domain.ModerationLog) error {
	payload, err := json.Marshal(log)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeModerationLog, payload)
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(queueChat), asynq.MaxRetry(3))
	return err
}

// EnqueueIndexMessage queues a search-index update for a message
func (c *Client) EnqueueIndexMessage(ctx context.Context, msg *domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeIndexMessage, payload)
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(queueChat), asynq.MaxRetry(3))
	return err
}

// Server processes queued tasks in-process alongside the API
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewServer creates the task server and registers handlers
func NewServer(addr, password string, db, concurrency int, svc *service.ChatService) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: addr, Password: password, DB: db},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{"default": 1, queueChat: 2},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeModerationLog, func(ctx context.Context, t *asynq.Task) error {
		var log domain.ModerationLog
		if err := json.Unmarshal(t.Payload(), &log); err != nil {
			return fmt.Errorf("decode moderation log task: %w", err)
		}
		return svc.PersistModerationLog(&log)
	})
	mux.HandleFunc(TypeIndexMessage, func(ctx context.Context, t *asynq.Task) error {
		var msg domain.Message
		if err := json.Unmarshal(t.Payload(), &msg); err != nil {
			return fmt.Errorf("decode index task: %w", err)
		}
		return svc.IndexMessageNow(ctx, &msg)
	})

	return &Server{server: srv, mux: mux}
}

// Start runs the task server in the background
func (s *Server) Start() error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	pkglogger.Info("task server started")
	return nil
}

// Shutdown stops the task server gracefully
func (s *Server) Shutdown() {
	s.server.Shutdown()
}
