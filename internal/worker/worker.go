package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/posetrack/backend/internal/archive"
	"github.com/posetrack/backend/internal/export"
	"github.com/posetrack/backend/pkg/queue"
	"github.com/posetrack/backend/pkg/storage"
)

// SummaryProcessor processes summary archive jobs: persist the summary
// to Postgres, render the CSV export and upload it to S3.
type SummaryProcessor struct {
	archiveRepo *archive.Repository
	s3          *storage.S3
	queue       *queue.Queue
	logger      *zap.Logger
}

// NewSummaryProcessor creates a summary archive processor. s3 may be nil
// when export uploads are disabled.
func NewSummaryProcessor(archiveRepo *archive.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *SummaryProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryProcessor{archiveRepo: archiveRepo, s3: s3, queue: q, logger: logger}
}

// Process executes one summary archive job.
func (p *SummaryProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSummaryArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.SummaryArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := p.archiveRepo.Insert(ctx, payload.SessionID, payload.Summary); err != nil {
		return fmt.Errorf("insert archive: %w", err)
	}

	if p.s3 == nil {
		p.logger.Info("summary archived", zap.String("session_id", payload.SessionID.String()))
		return nil
	}

	data, err := export.CSV(&payload.Summary)
	if err != nil {
		return fmt.Errorf("render csv: %w", err)
	}
	key := storage.ExportKey(payload.SessionID.String())
	url, err := p.s3.UploadExport(ctx, key, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := p.archiveRepo.SetCSVUrl(ctx, payload.SessionID, url); err != nil {
		p.logger.Error("update csv url failed", zap.Error(err), zap.String("session_id", payload.SessionID.String()))
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("summary archived with export", zap.String("session_id", payload.SessionID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *SummaryProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("summary worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
