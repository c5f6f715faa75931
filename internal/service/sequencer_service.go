package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/learnledger/editor-api/internal/ledger"
	"github.com/learnledger/editor-api/internal/models"
	"github.com/learnledger/editor-api/pkg/config"
	"github.com/learnledger/editor-api/pkg/retry"
)

// ProgressFunc receives one event after every job resolves.
type ProgressFunc func(models.ProgressEvent)

// SequencerService executes a batch of ledger write jobs strictly one at a
// time. The signing account holds a single write counter, so a job is only
// submitted once the previous one is confirmed and the settle delay has
// elapsed. Confirmed jobs are never rolled back by a later failure.
type SequencerService struct {
	client  ledger.Client
	metrics *MetricsService
	cfg     config.LedgerConfig
	logger  *zap.Logger

	// overridable in tests to avoid real settle waits
	sleep func(ctx context.Context, d time.Duration)
}

// NewSequencerService constructs the sequencer.
func NewSequencerService(client ledger.Client, metrics *MetricsService, cfg config.LedgerConfig, logger *zap.Logger) *SequencerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequencerService{
		client:  client,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SortJobs orders a batch by ordering class. Within a class the given order
// is preserved.
func SortJobs(jobs []models.TransactionJob) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].Class < jobs[j].Class
	})
}

// Execute runs the batch in order, with a progress offset so a follow-up
// batch can continue the same progress bar. It returns the report together
// with the first abort error, if any; the report is always valid.
func (s *SequencerService) Execute(ctx context.Context, jobs []models.TransactionJob, offset, total int, onProgress ProgressFunc) (models.CommitReport, error) {
	report := models.CommitReport{Total: len(jobs)}
	if total <= 0 {
		total = len(jobs)
	}

	for i, job := range jobs {
		receipt, err := s.runJob(ctx, job)
		if err != nil {
			report.Results = append(report.Results, models.JobResult{
				Kind:     job.Kind,
				Status:   models.JobFailed,
				Detail:   err.Error(),
				TargetID: job.TargetID,
				LocalID:  job.LocalID,
			})
			if s.abortAfter(job, err, len(jobs)-i-1) {
				return report, err
			}
			continue
		}

		result := models.JobResult{Kind: job.Kind, Status: models.JobSucceeded, TargetID: job.TargetID, LocalID: job.LocalID}
		if receipt != nil {
			result.AssignedID = receipt.AssignedID
		}
		report.Results = append(report.Results, result)
		report.Completed++

		if onProgress != nil {
			onProgress(models.ProgressEvent{
				Completed:      offset + report.Completed,
				Total:          total,
				CurrentJobKind: job.Kind,
			})
		}

		// Let the network register the counter bump before the next submit.
		if i < len(jobs)-1 {
			s.sleep(ctx, s.cfg.SettleDelay)
		}
	}
	return report, nil
}

// runJob submits one write and waits for its confirmation. Stale-counter
// submissions are retried a bounded number of times; every other failure is
// surfaced as-is.
func (s *SequencerService) runJob(ctx context.Context, job models.TransactionJob) (*ledger.Receipt, error) {
	start := time.Now()
	var receipt *ledger.Receipt

	err := retry.Do(ctx, retry.Config{
		Interval:    s.cfg.CounterRetryDelay,
		MaxAttempts: s.cfg.CounterRetries + 1,
	}, func(ctx context.Context) error {
		handle, err := s.client.SubmitWrite(ctx, s.cfg.CourseAddress, job.Method, job.Args, 0)
		if err != nil {
			return err
		}
		receipt, err = s.client.AwaitConfirmation(ctx, handle, ledger.ConfirmOptions{
			Confirmations: s.cfg.Confirmations,
			Timeout:       s.cfg.ConfirmTimeout,
		})
		return err
	}, ledger.IsCounterConflict)

	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	if s.metrics != nil {
		s.metrics.ObserveLedgerJob(string(job.Kind), outcome, time.Since(start))
	}
	if err != nil {
		s.logger.Warn("ledger job failed",
			zap.String("kind", string(job.Kind)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("ledger job confirmed",
		zap.String("kind", string(job.Kind)),
		zap.String("job", receipt.Handle.ID),
		zap.Int64("block", receipt.BlockNumber))
	return receipt, nil
}

// abortAfter decides whether the remainder of the batch is skipped after a
// job failure. A declined signature means the author backed out; an unknown
// confirmation outcome or an exhausted counter-retry budget leaves the write
// counter in an unknown state. All three always abort. Reverts abort by
// configuration.
func (s *SequencerService) abortAfter(job models.TransactionJob, err error, remaining int) bool {
	abort := false
	switch {
	case ledger.IsSignatureDeclined(err):
		abort = true
	case ledger.IsConfirmationTimeout(err):
		abort = true
	case ledger.IsCounterConflict(err):
		abort = true
	case ledger.IsRevert(err):
		abort = s.cfg.AbortOnRevert
	}
	if abort && remaining > 0 {
		s.logger.Warn("aborting remaining jobs",
			zap.String("failedKind", string(job.Kind)),
			zap.Int("skipped", remaining),
			zap.String("reason", fmt.Sprintf("%v", err)))
	}
	return abort
}
