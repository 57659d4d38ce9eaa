package classify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peer-digital/medla-projects/internal/config"
	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/ingest"
	"github.com/peer-digital/medla-projects/internal/logging"
	"github.com/peer-digital/medla-projects/internal/models"
	"github.com/peer-digital/medla-projects/internal/types"
)

// CaseStore is the persistence surface the stage needs
type CaseStore interface {
	ListNeedingClassification(ctx context.Context, minConfidence float64, limit int) ([]*models.Case, error)
	UpdateClassification(ctx context.Context, c *models.Case) error
}

// Result summarizes one classification run
type Result struct {
	RunID         string          `json:"runId"`
	Status        types.RunStatus `json:"status"`
	Processed     int             `json:"processed"`
	Successful    int             `json:"successful"`
	Failed        int             `json:"failed"`
	Total         int             `json:"total"`
	Categories    map[string]int  `json:"categories"`
	Errors        []string        `json:"errors,omitempty"`
	QuotaExceeded bool            `json:"quotaExceeded"`
}

// Stage runs batched classification over unlabeled cases. Records are
// classified a few at a time; exhausted upstream quota stops the run
// immediately, since every further request would fail the same way.
type Stage struct {
	store      CaseStore
	classifier Classifier
	sink       ingest.ProgressSink
	cfg        *config.ClassifyConfig
}

// NewStage creates a classification stage; sink may be nil
func NewStage(store CaseStore, classifier Classifier, sink ingest.ProgressSink, cfg *config.ClassifyConfig) *Stage {
	if sink == nil {
		sink = ingest.NopSink{}
	}
	return &Stage{store: store, classifier: classifier, sink: sink, cfg: cfg}
}

// Run classifies one batch of pending cases
func (s *Stage) Run(ctx context.Context) (*Result, error) {
	return s.RunWith(ctx, s.sink)
}

// RunWith classifies one batch publishing snapshots to the given sink instead
// of the construction-time one
func (s *Stage) RunWith(ctx context.Context, sink ingest.ProgressSink) (*Result, error) {
	if sink == nil {
		sink = ingest.NopSink{}
	}
	run := &stageRun{Stage: s, sink: sink}
	return run.execute(ctx)
}

// stageRun binds one execution to its own sink
type stageRun struct {
	*Stage
	sink ingest.ProgressSink
}

func (s *stageRun) execute(ctx context.Context) (*Result, error) {
	runID := uuid.New().String()
	logger := logging.FromContext(ctx).WithField("runId", runID)
	ctx = logging.WithLogger(ctx, logger)
	startedAt := time.Now()

	cases, err := s.store.ListNeedingClassification(ctx, s.cfg.MinConfidence, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:      runID,
		Status:     types.RunStatusRunning,
		Total:      len(cases),
		Categories: make(map[string]int),
	}

	logger.WithField("cases", len(cases)).Info("Starting classification run")

	concurrency := s.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	for start := 0; start < len(cases) && !result.QuotaExceeded; start += concurrency {
		end := start + concurrency
		if end > len(cases) {
			end = len(cases)
		}

		outcomes := s.classifyBatch(ctx, cases[start:end])

		for i, outcome := range outcomes {
			c := cases[start+i]
			s.tally(ctx, result, c, outcome)
			if result.QuotaExceeded {
				break
			}
		}

		s.publish(result, startedAt, types.RunStatusRunning)

		if err := ctx.Err(); err != nil {
			result.Status = types.RunStatusFailed
			s.publish(result, startedAt, result.Status)
			return result, err
		}
	}

	result.Status = finalStatus(result)
	s.publish(result, startedAt, result.Status)

	logger.WithFields(map[string]interface{}{
		"status":     string(result.Status),
		"processed":  result.Processed,
		"successful": result.Successful,
		"failed":     result.Failed,
	}).Info("Classification run finished")

	return result, nil
}

type outcome struct {
	classification *Classification
	err            error
}

// classifyBatch classifies a sub-batch concurrently, preserving input order
func (s *Stage) classifyBatch(ctx context.Context, batch []*models.Case) []outcome {
	outcomes := make([]outcome, len(batch))

	var wg sync.WaitGroup
	for i, c := range batch {
		wg.Add(1)
		go func(i int, c *models.Case) {
			defer wg.Done()
			classification, err := s.classifier.Classify(ctx, c)
			outcomes[i] = outcome{classification: classification, err: err}
		}(i, c)
	}
	wg.Wait()

	return outcomes
}

// tally folds one outcome into the result. A quota error counts the record as
// processed and failed, then short-circuits the run.
func (s *Stage) tally(ctx context.Context, result *Result, c *models.Case, out outcome) {
	result.Processed++

	switch {
	case out.err != nil && errors.IsQuotaExceeded(out.err):
		result.Failed++
		result.QuotaExceeded = true
		result.Errors = append(result.Errors, fmt.Sprintf("case %s: API quota exceeded", c.CaseNumber))

	case out.err != nil:
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("case %s: %v", c.CaseNumber, out.err))

	case out.classification.Failed():
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("case %s: unparseable classification", c.CaseNumber))
		// The Error marker is persisted so operators can see the failure,
		// but the case stays eligible for re-classification.
		_ = s.persist(ctx, c, out.classification) // nolint:errcheck

	default:
		if err := s.persist(ctx, c, out.classification); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("case %s: %v", c.CaseNumber, err))
			return
		}
		result.Successful++
		result.Categories[out.classification.PrimaryCategory]++
	}
}

func (s *Stage) persist(ctx context.Context, c *models.Case, classification *Classification) error {
	category := classification.PrimaryCategory
	c.PrimaryCategory = &category
	confidence := classification.Confidence
	c.CategoryConfidence = &confidence
	c.CategoryMetadata = classification.Metadata
	c.ProjectPhase = classification.ProjectPhase
	c.IsMedlaSuitable = classification.IsMedlaSuitable
	c.PotentialJobs = classification.PotentialJobs

	if err := s.store.UpdateClassification(ctx, c); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("caseNumber", c.CaseNumber).
			Error("Failed to persist classification")
		return err
	}
	return nil
}

func (s *stageRun) publish(result *Result, startedAt time.Time, status types.RunStatus) {
	percent := 0
	if status.Terminal() {
		percent = 100
	} else if result.Total > 0 {
		percent = result.Processed * 100 / result.Total
	}

	snapshot := types.ProgressSnapshot{
		RunID:      result.RunID,
		Status:     status,
		Processed:  result.Processed,
		Successful: result.Successful,
		Failed:     result.Failed,
		Total:      result.Total,
		Percent:    percent,
		Categories: copyCategories(result.Categories),
		Errors:     append([]string(nil), result.Errors...),
		Timestamp:  time.Now(),
	}

	if !status.Terminal() && result.Processed > 1 && result.Total > result.Processed {
		elapsed := time.Since(startedAt).Seconds()
		perCase := elapsed / float64(result.Processed)
		remaining := int(perCase * float64(result.Total-result.Processed))
		snapshot.EstimatedTimeRemaining = &remaining
	}

	s.sink.Publish(snapshot)
}

func finalStatus(result *Result) types.RunStatus {
	switch {
	case result.QuotaExceeded:
		return types.RunStatusQuotaExceeded
	case result.Total > 0 && result.Failed == result.Total:
		return types.RunStatusFailed
	case result.Failed > 0:
		return types.RunStatusCompletedWithErrors
	default:
		return types.RunStatusCompleted
	}
}

func copyCategories(categories map[string]int) map[string]int {
	out := make(map[string]int, len(categories))
	for category, count := range categories {
		out[category] = count
	}
	return out
}
