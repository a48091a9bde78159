package workflow

import (
	"context"
	"math"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/config"
	"bitbucket.org/mmdatafocus/statements_backend/models"
	"bitbucket.org/mmdatafocus/statements_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxRetryBackoff = 30 * time.Minute

// NextRetryDelay is 2^retryCount minutes, capped at 30. retryCount is the
// count AFTER the failed attempt, so the first failure waits 2 minutes.
func NextRetryDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return time.Minute
	}
	if retryCount > 10 {
		return maxRetryBackoff
	}
	delay := time.Duration(math.Pow(2, float64(retryCount))) * time.Minute
	if delay > maxRetryBackoff {
		return maxRetryBackoff
	}
	return delay
}

// MarkExtractionFailed records the failure on the statement, schedules the
// backoff retry and releases the claim. Failed is retryable indefinitely; the
// terminal guard keeps a confirm/reject that raced us untouched.
func MarkExtractionFailed(ctx context.Context, db *gorm.DB, logger *logrus.Logger, statementId int, procErr error) {
	now := time.Now().UTC()

	var stmt models.Statement
	if err := db.WithContext(ctx).Select("id,status,retry_count").Take(&stmt, statementId).Error; err != nil {
		config.LogError(logger, "retry.go", "MarkExtractionFailed", "Loading statement for failure record", statementId, err)
		return
	}
	if stmt.Status.IsTerminal() {
		return
	}

	attempts := stmt.RetryCount + 1
	errMsg := procErr.Error()
	stage := utils.ExtractionStage(procErr)
	if stage == "" {
		stage = "process"
	}
	nextRetryAt := now.Add(NextRetryDelay(attempts))

	err := db.WithContext(ctx).Model(&models.Statement{}).
		Where("id = ? AND status = ?", statementId, models.StatementStatusProcessing).
		Updates(map[string]interface{}{
			"status":          models.StatementStatusFailed,
			"error_message":   &errMsg,
			"error_stage":     &stage,
			"failed_at":       &now,
			"retry_count":     attempts,
			"next_retry_at":   &nextRetryAt,
			"locked_by":       nil,
			"lock_expires_at": nil,
		}).Error
	if err != nil {
		config.LogError(logger, "retry.go", "MarkExtractionFailed", "Recording extraction failure", statementId, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"module":        "workflow",
		"statement_id":  statementId,
		"error_stage":   stage,
		"retry_count":   attempts,
		"next_retry_at": nextRetryAt,
	}).Error("statement extraction failed: " + errMsg)
}
