// Package pipeline orchestrates one load end to end: read the uploaded
// file in chunks, validate, transform, project through the column
// mapping, and hand each chunk to the loader, keeping the ledger and
// notifier informed along the way.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/ledger"
	"github.com/andresvega/loaderd/internal/loader"
	"github.com/andresvega/loaderd/internal/logger"
	"github.com/andresvega/loaderd/internal/notify"
	"github.com/andresvega/loaderd/internal/repository"
	"github.com/andresvega/loaderd/internal/schema"
	"github.com/andresvega/loaderd/internal/session"
	"github.com/andresvega/loaderd/internal/source"
	"github.com/andresvega/loaderd/internal/storage"
	"github.com/andresvega/loaderd/internal/transform"
	"github.com/andresvega/loaderd/internal/validate"
)

// JobKindLoad is the scheduler job kind handled by this pipeline.
const JobKindLoad = "load"

// LoadParams is the submission payload of a load job.
type LoadParams struct {
	SessionID       string               `json:"session_id"`
	ConfigName      string               `json:"config_name,omitempty"`
	SourceFile      string               `json:"source_file,omitempty"`
	TargetTable     string               `json:"target_table"`
	Mode            domain.LoadMode      `json:"mode"`
	ColumnMapping   map[string]string    `json:"column_mapping"`
	Transformations domain.TransformSpec `json:"transformations,omitempty"`
	CreatedBy       string               `json:"created_by,omitempty"`
}

// Validate rejects malformed submissions before a job is created.
func (p *LoadParams) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if p.TargetTable == "" {
		return fmt.Errorf("target_table is required")
	}
	if !p.Mode.Valid() {
		return fmt.Errorf("mode must be one of insert, update, sync")
	}
	if len(p.ColumnMapping) == 0 {
		return fmt.Errorf("column_mapping must not be empty")
	}
	return nil
}

// LoadResult is the job result payload.
type LoadResult struct {
	Record     *domain.Summary            `json:"record"`
	Validation *domain.ValidationReport   `json:"validation,omitempty"`
	Transforms []domain.TransformLogEntry `json:"transform_log,omitempty"`
}

// Pipeline wires the stages together. One instance serves all jobs;
// per-job state lives on the stack of Execute.
type Pipeline struct {
	store     storage.ObjectStore
	sessions  *session.Store
	schemas   *schema.Provider
	validator *validate.Validator
	registry  *transform.Registry
	loader    *loader.Loader
	ledger    *ledger.Ledger
	notifier  *notify.Notifier
	jobs      *repository.JobRepository
	chunkSize int
}

// New assembles a Pipeline.
func New(
	store storage.ObjectStore,
	sessions *session.Store,
	schemas *schema.Provider,
	registry *transform.Registry,
	ld *loader.Loader,
	lg *ledger.Ledger,
	notifier *notify.Notifier,
	jobs *repository.JobRepository,
	chunkSize int,
) *Pipeline {
	if chunkSize < 1 {
		chunkSize = 1000
	}
	return &Pipeline{
		store:     store,
		sessions:  sessions,
		schemas:   schemas,
		validator: validate.New(),
		registry:  registry,
		loader:    ld,
		ledger:    lg,
		notifier:  notifier,
		jobs:      jobs,
		chunkSize: chunkSize,
	}
}

// Handle is the scheduler entry point for load jobs.
func (p *Pipeline) Handle(ctx context.Context, job *domain.Job) (string, error) {
	var params LoadParams
	if err := json.Unmarshal([]byte(job.Parameters), &params); err != nil {
		return "", fmt.Errorf("decoding load parameters: %w", err)
	}
	if err := params.Validate(); err != nil {
		return "", err
	}

	result, err := p.Execute(ctx, job, &params)
	if err != nil {
		return "", err
	}
	encoded, mErr := json.Marshal(result)
	if mErr != nil {
		return "", fmt.Errorf("encoding load result: %w", mErr)
	}
	return string(encoded), nil
}

// Execute runs the load. The ledger entry is finalized exactly once on
// every path out of here.
func (p *Pipeline) Execute(ctx context.Context, job *domain.Job, params *LoadParams) (*LoadResult, error) {
	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldComponent: "pipeline",
		logger.FieldJobID:     job.ID,
		logger.FieldTable:     params.TargetTable,
		"mode":                params.Mode,
	})
	ctx = log.WithContext(ctx)
	startedAt := time.Now()

	sess, err := p.sessions.Get(params.SessionID)
	if err != nil {
		return nil, fmt.Errorf("resolving upload session: %w", err)
	}
	sourceFile := params.SourceFile
	if sourceFile == "" {
		sourceFile = sess.FileName
	}

	tableSchema, err := p.schemas.Describe(ctx, params.TargetTable)
	if err != nil {
		return nil, err
	}

	stream, err := p.store.Download(ctx, sess.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("opening stored upload: %w", err)
	}
	reader, err := source.Open(stream, sess.FileName, p.chunkSize)
	if err != nil {
		stream.Close()
		return nil, err
	}
	defer reader.Close()

	rec, err := p.ledger.Start(ctx, job, params.ConfigName, sourceFile, params.TargetTable, params.Mode, params.CreatedBy)
	if err != nil {
		return nil, err
	}
	p.notifier.Publish(ctx, notify.FromRecord(notify.EventLoadStarted, rec))

	result, runErr := p.run(ctx, rec, reader, tableSchema, params, startedAt)
	if runErr != nil {
		if fErr := p.ledger.FailWithError(ctx, rec, startedAt, runErr); fErr != nil && !errors.Is(fErr, ledger.ErrAlreadyFinal) {
			log.WithError(fErr).Error("finalizing failed ledger entry")
		}
		p.notifier.Publish(ctx, notify.FromRecord(notify.EventLoadFailed, rec))
		return nil, runErr
	}

	p.notifier.Publish(ctx, notify.FromRecord(notify.EventLoadCompleted, rec))
	result.Record = rec.Summary()
	log.WithFields(logger.Fields{
		logger.FieldRows:       rec.TotalRows,
		logger.FieldDurationMs: time.Since(startedAt).Milliseconds(),
		logger.FieldStatus:     rec.Status,
	}).Info("load finished")
	return result, nil
}

// run drives the chunk loop; the caller owns ledger finalization on error.
func (p *Pipeline) run(ctx context.Context, rec *domain.LoadRecord, reader source.ChunkReader, tableSchema *domain.TableSchema, params *LoadParams, startedAt time.Time) (*LoadResult, error) {
	transformer := transform.New(p.registry)
	result := &LoadResult{}
	var insertedIDs []int64
	chunkIndex := 0
	processed := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := reader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		chunkIndex++
		log := logger.FromContext(ctx).WithField(logger.FieldChunk, chunkIndex)

		report := p.validator.Validate(chunk)
		if result.Validation == nil {
			result.Validation = report
		} else {
			result.Validation.Merge(report)
		}
		log.WithFields(logger.Fields{
			"errors":   report.Summary.Errors,
			"warnings": report.Summary.Warnings,
		}).Info("chunk validated")

		chunk = transformer.Apply(ctx, chunk, params.Transformations)
		projected := chunk.Project(params.ColumnMapping)
		if projected.Len() != chunk.Len() {
			return nil, fmt.Errorf("projection dropped rows in chunk %d", chunkIndex)
		}

		chunkResult, err := p.loader.LoadChunk(ctx, tableSchema, projected, params.Mode, chunkIndex == 1)
		if err != nil {
			return nil, fmt.Errorf("loading chunk %d: %w", chunkIndex, err)
		}
		insertedIDs = append(insertedIDs, chunkResult.InsertedIDs...)

		if err := p.ledger.Progress(ctx, rec, chunk.Len(), chunkResult.Inserted, chunkResult.Updated, chunkResult.Errors); err != nil {
			return nil, fmt.Errorf("recording chunk progress: %w", err)
		}

		// The total row count is unknown until the source drains, so
		// progress approaches 100 asymptotically and completion snaps it.
		processed += chunk.Len()
		progress := 100 * float64(processed) / float64(processed+p.chunkSize)
		if err := p.jobs.UpdateProgress(ctx, rec.JobID, progress); err != nil {
			log.WithError(err).Warn("updating job progress")
		}
	}

	if chunkIndex == 0 {
		return nil, fmt.Errorf("source file has no data rows")
	}

	if err := p.ledger.CompleteSuccessfully(ctx, rec, startedAt, insertedIDs); err != nil {
		return nil, fmt.Errorf("finalizing ledger entry: %w", err)
	}
	result.Transforms = transformer.Log()
	return result, nil
}

// Rollback reverses a completed insert load and notifies.
func (p *Pipeline) Rollback(ctx context.Context, recordID uint, requestedBy string) (*domain.LoadRecord, error) {
	reversal, err := p.ledger.ExecuteRollback(ctx, recordID, requestedBy)
	if err != nil {
		return nil, err
	}
	p.notifier.Publish(ctx, notify.FromRecord(notify.EventRollback, reversal))
	return reversal, nil
}
