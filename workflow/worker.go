package workflow

import (
	"context"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/appctx"
	"bitbucket.org/mmdatafocus/statements_backend/config"
	"bitbucket.org/mmdatafocus/statements_backend/models"
	"bitbucket.org/mmdatafocus/statements_backend/vision"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultClaimTimeout = 10 * time.Minute
	defaultPollInterval = 30 * time.Second
)

// Worker claims statements one at a time and runs them through extraction.
// It wakes on Redis nudges when available and polls as the fallback, so a
// missing Redis only costs latency, never correctness.
type Worker struct {
	ID           string
	DB           *gorm.DB
	Logger       *logrus.Logger
	Vision       *vision.Client
	ClaimTimeout time.Duration
	PollInterval time.Duration
}

func NewWorker(db *gorm.DB, logger *logrus.Logger, client *vision.Client) *Worker {
	return &Worker{
		ID:           "worker-" + uuid.NewString(),
		DB:           db,
		Logger:       logger,
		Vision:       client,
		ClaimTimeout: time.Duration(config.IntFromEnv("STATEMENT_CLAIM_TIMEOUT_MIN", 10)) * time.Minute,
		PollInterval: time.Duration(config.IntFromEnv("STATEMENT_POLL_INTERVAL_SEC", 30)) * time.Second,
	}
}

func (w *Worker) claimTimeout() time.Duration {
	if w.ClaimTimeout > 0 {
		return w.ClaimTimeout
	}
	return defaultClaimTimeout
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ctx = appctx.Set(ctx, appctx.ContextKeyWorkerId, w.ID)
	logger := w.Logger.WithFields(logrus.Fields{"module": "workflow", "worker_id": w.ID})
	logger.Info("statement worker started")

	pollInterval := w.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var nudges <-chan *redisMessage
	if sub := config.SubscribeStatementNudges(ctx); sub != nil {
		defer sub.Close()
		ch := make(chan *redisMessage, 16)
		go func() {
			defer close(ch)
			for msg := range sub.Channel() {
				select {
				case ch <- &redisMessage{Payload: msg.Payload}:
				default:
					// Drop when full. The drain loop picks the work up anyway.
				}
			}
		}()
		nudges = ch
	}

	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("statement worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		case _, ok := <-nudges:
			if !ok {
				nudges = nil
				continue
			}
			w.drain(ctx)
		}
	}
}

type redisMessage struct {
	Payload string
}

// drain claims and processes until the claimable backlog is empty.
func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		stmt, err := models.ClaimNextStatement(ctx, w.DB, w.ID, w.claimTimeout())
		if err != nil {
			config.LogError(w.Logger, "worker.go", "drain", "Claiming next statement", w.ID, err)
			return
		}
		if stmt == nil {
			return
		}
		w.processOne(ctx, stmt)
	}
}

func (w *Worker) processOne(ctx context.Context, stmt *models.Statement) {
	logger := w.Logger.WithFields(logrus.Fields{
		"module":       "workflow",
		"worker_id":    w.ID,
		"statement_id": stmt.ID,
	})
	started := time.Now()

	processor := &Processor{DB: w.DB, Logger: w.Logger, Vision: w.Vision}
	if err := processor.ProcessStatement(ctx, stmt); err != nil {
		MarkExtractionFailed(ctx, w.DB, w.Logger, stmt.ID, err)
		return
	}
	logger.WithField("elapsed_ms", time.Since(started).Milliseconds()).
		Info("statement extracted")

	if config.AutoConfirmEnabled() {
		confirmed, err := TryAutoConfirm(ctx, w.DB, stmt.ID)
		if err != nil {
			config.LogError(w.Logger, "worker.go", "processOne", "Auto-confirming statement", stmt.ID, err)
		} else if confirmed {
			logger.Info("statement auto-confirmed")
		}
	}

	// Tell idle peers the queue may still hold work.
	config.PublishStatementNudge(ctx, strconv.Itoa(stmt.ID))
}
