package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
	"dynetl/internal/etl"
	"dynetl/internal/secret"
	"dynetl/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Ingest Service: uploads, ingest jobs, schedules and watchers
// ─────────────────────────────────────────────────────────────

// IngestService owns every write into the stores. All passes, whether a
// direct upload, a manual job run, a cron tick or a file change, go
// through the per-source guard.
type IngestService struct {
	engine  *etl.Engine
	jobs    *storage.JobStore
	emitter EventEmitter
	logger  *zap.Logger
	timeout time.Duration
	guard   sourceGuard
	secrets secret.SecretStore

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewIngestService creates an IngestService. timeout bounds each pass; zero
// leaves the caller's deadline alone.
func NewIngestService(engine *etl.Engine, jobs *storage.JobStore, emitter EventEmitter, timeout time.Duration, logger *zap.Logger) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = LogEmitter{Logger: logger}
	}
	return &IngestService{
		engine:  engine,
		jobs:    jobs,
		emitter: emitter,
		logger:  logger.Named("ingest"),
		timeout: timeout,
	}
}

// SetSecrets installs the store that resolves "secret:<key>" values in
// source configs. Without one, references are passed through unchanged.
func (s *IngestService) SetSecrets(store secret.SecretStore) {
	s.secrets = store
}

func (s *IngestService) resolveConfig(ctx context.Context, cfg map[string]any) (etl.SourceConfig, error) {
	resolved, err := secret.Resolve(ctx, s.secrets, cfg)
	if err != nil {
		return nil, err
	}
	return etl.SourceConfig(resolved), nil
}

func (s *IngestService) passContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func (s *IngestService) lock(sourceID string) error {
	if !s.guard.TryLock(sourceID) {
		return fmt.Errorf("source %s: %w", sourceID, apperrors.ErrAlreadyRunning)
	}
	return nil
}

// ── Uploads ────────────────────────────────────────────────

// Upload ingests already-normalised records for a source.
func (s *IngestService) Upload(ctx context.Context, sourceID string, version int, records []domain.NormalizedRecord) (*domain.UploadResult, error) {
	if err := s.lock(sourceID); err != nil {
		return nil, err
	}
	defer s.guard.Unlock(sourceID)

	ctx, cancel := s.passContext(ctx)
	defer cancel()

	res, err := s.engine.Ingest(ctx, domain.IngestRequest{SourceID: sourceID, Version: version, Records: records})
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, EventUploadCompleted, res)
	return res, nil
}

// IngestSource reads a registered source once and ingests its records.
func (s *IngestService) IngestSource(ctx context.Context, sourceID, sourceType string, cfg etl.SourceConfig, version int) (*domain.UploadResult, error) {
	if err := s.lock(sourceID); err != nil {
		return nil, err
	}
	defer s.guard.Unlock(sourceID)

	resolved, err := s.resolveConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.passContext(ctx)
	defer cancel()

	res, _, err := s.engine.RunSource(ctx, etl.SourceRun{
		SourceID:   sourceID,
		SourceType: sourceType,
		Config:     resolved,
		Version:    version,
	})
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, EventUploadCompleted, res)
	return res, nil
}

// ── Job CRUD ───────────────────────────────────────────────

type CreateJobInput struct {
	Name          string                   `json:"name"`
	SourceID      string                   `json:"source_id"`
	SourceType    string                   `json:"source_type"`
	SourceConfig  map[string]any           `json:"source_config"`
	Transforms    []domain.TransformConfig `json:"transforms"`
	TriggerType   string                   `json:"trigger_type"`
	TriggerConfig string                   `json:"trigger_config"`
	Enabled       bool                     `json:"enabled"`
}

func (in *CreateJobInput) validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.Invalid(apperrors.KindSchemaInference, "validate job", format, args...)
	}
	if in.Name == "" {
		return invalid("name is required")
	}
	if in.SourceID == "" {
		return invalid("source_id is required")
	}
	if _, err := etl.GetSource(in.SourceType); err != nil {
		return invalid("%v", err)
	}
	if _, err := etl.BuildTransformers(in.Transforms); err != nil {
		return invalid("%v", err)
	}
	if in.TriggerType == "" {
		in.TriggerType = domain.TriggerManual
	}
	switch in.TriggerType {
	case domain.TriggerManual:
	case domain.TriggerSchedule:
		if _, err := cron.ParseStandard(in.TriggerConfig); err != nil {
			return invalid("invalid cron expression %q: %v", in.TriggerConfig, err)
		}
	case domain.TriggerFileWatch:
		if in.TriggerConfig == "" {
			return invalid("file_watch trigger requires a file path")
		}
	default:
		return invalid("unknown trigger type %q", in.TriggerType)
	}
	return nil
}

func (s *IngestService) CreateJob(ctx context.Context, input CreateJobInput) (*domain.IngestJob, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	job := &domain.IngestJob{
		Name:          input.Name,
		SourceID:      input.SourceID,
		SourceType:    input.SourceType,
		SourceConfig:  input.SourceConfig,
		Transforms:    input.Transforms,
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		Enabled:       input.Enabled,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create ingest job: %w", err)
	}
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *IngestService) GetJob(ctx context.Context, id string) (*domain.IngestJob, error) {
	return s.jobs.GetJob(ctx, id)
}

func (s *IngestService) ListJobs(ctx context.Context) ([]domain.IngestJob, error) {
	return s.jobs.ListJobs(ctx)
}

func (s *IngestService) UpdateJob(ctx context.Context, id string, input CreateJobInput) (*domain.IngestJob, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Name = input.Name
	job.SourceID = input.SourceID
	job.SourceType = input.SourceType
	job.SourceConfig = input.SourceConfig
	job.Transforms = input.Transforms
	job.TriggerType = input.TriggerType
	job.TriggerConfig = input.TriggerConfig
	job.Enabled = input.Enabled

	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *IngestService) DeleteJob(ctx context.Context, id string) error {
	err := s.jobs.DeleteJob(ctx, id)
	if err == nil {
		s.RestartWatchers(ctx)
	}
	return err
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a job synchronously, records a run log and updates the
// job's last status. A job whose source is already being ingested fails
// with apperrors.ErrAlreadyRunning and leaves no run log.
func (s *IngestService) RunJob(ctx context.Context, id string) (*domain.UploadResult, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.lock(job.SourceID); err != nil {
		return nil, err
	}
	defer s.guard.Unlock(job.SourceID)

	log := s.logger.With(zap.String("job_id", id), zap.String("source_id", job.SourceID))
	if err := s.jobs.UpdateJobStatus(ctx, id, domain.StatusRunning, ""); err != nil {
		log.Warn("failed to mark job running", zap.Error(err))
	}

	runCtx, cancel := s.passContext(ctx)
	defer cancel()

	start := time.Now().UTC()
	var (
		result *domain.UploadResult
		read   int
	)
	cfg, runErr := s.resolveConfig(runCtx, job.SourceConfig)
	if runErr == nil {
		result, read, runErr = s.engine.RunSource(runCtx, etl.SourceRun{
			SourceID:   job.SourceID,
			SourceType: job.SourceType,
			Config:     cfg,
			Transforms: job.Transforms,
		})
	}
	finished := time.Now().UTC()

	runLog := &domain.IngestRunLog{
		JobID:       id,
		StartedAt:   start,
		FinishedAt:  &finished,
		RecordsRead: read,
	}
	status, errMsg := domain.StatusError, ""
	if runErr != nil {
		errMsg = runErr.Error()
	} else {
		status = result.Status
		runLog.Version = result.Version
	}
	runLog.Status = status
	runLog.Error = errMsg

	// Bookkeeping must land even when the pass ran out of time.
	bg := context.WithoutCancel(ctx)
	if err := s.jobs.CreateRunLog(bg, runLog); err != nil {
		log.Warn("failed to write run log", zap.Error(err))
	}
	if err := s.jobs.UpdateJobStatus(bg, id, status, errMsg); err != nil {
		log.Warn("failed to update job status", zap.Error(err))
	}

	if runErr != nil {
		log.Error("ingest job failed", zap.Error(runErr))
		s.emitter.Emit(ctx, EventJobFailed, map[string]string{"job_id": id, "error": errMsg})
		return nil, runErr
	}
	log.Info("ingest job finished",
		zap.String("status", status),
		zap.Int("records_read", read),
		zap.Int("version", result.Version))
	s.emitter.Emit(ctx, EventJobCompleted, map[string]any{"job_id": id, "result": result})
	return result, nil
}

// ListRunLogs returns the newest run logs of a job, 50 by default.
func (s *IngestService) ListRunLogs(ctx context.Context, jobID string, limit int) ([]domain.IngestRunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.jobs.ListRunLogs(ctx, jobID, limit)
}

// ListSources returns the registered source descriptors.
func (s *IngestService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// ── Preview ────────────────────────────────────────────────

// PreviewResult is the response from Preview.
type PreviewResult struct {
	Schema  *etl.Schema  `json:"schema"`
	Records []etl.Record `json:"records"`
}

// Preview reads up to maxRows records (10 by default) without ingesting.
func (s *IngestService) Preview(ctx context.Context, sourceType string, cfg etl.SourceConfig, maxRows int) (*PreviewResult, error) {
	if maxRows <= 0 {
		maxRows = 10
	}
	resolved, err := s.resolveConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	records, schema, err := etl.Preview(previewCtx, sourceType, resolved, maxRows)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Schema: schema, Records: records}, nil
}

// ListTables lists the tables a source can read, for sources that expose
// them (database).
func (s *IngestService) ListTables(ctx context.Context, sourceType string, cfg etl.SourceConfig) ([]etl.Table, error) {
	resolved, err := s.resolveConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	listCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return etl.ListTables(listCtx, sourceType, resolved)
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them
// from the enabled triggered jobs.
func (s *IngestService) RestartWatchers(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()

	jobs, err := s.jobs.ListTriggeredJobs(ctx)
	if err != nil {
		s.logger.Error("failed to list triggered jobs", zap.Error(err))
		return
	}
	// Triggered runs outlive the request that restarted the watchers.
	runCtx := context.WithoutCancel(ctx)

	// ── Cron jobs ──
	c := cron.New()
	scheduled := 0
	for _, j := range jobs {
		if j.TriggerType != domain.TriggerSchedule || j.TriggerConfig == "" {
			continue
		}
		jid := j.ID
		_, err := c.AddFunc(j.TriggerConfig, func() {
			s.logger.Info("cron: running job", zap.String("job_id", jid))
			if _, err := s.RunJob(runCtx, jid); err != nil {
				s.logger.Warn("cron: job failed", zap.String("job_id", jid), zap.Error(err))
			}
		})
		if err != nil {
			s.logger.Warn("cron: invalid expression",
				zap.String("job_id", jid),
				zap.String("expr", j.TriggerConfig),
				zap.Error(err))
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		s.logger.Info("cron: scheduled jobs", zap.Int("count", scheduled))
	}

	// ── File watchers ──
	pathToJob := make(map[string]string)
	for _, j := range jobs {
		if j.TriggerType != domain.TriggerFileWatch || j.TriggerConfig == "" {
			continue
		}
		absPath, err := filepath.Abs(j.TriggerConfig)
		if err != nil {
			s.logger.Warn("watcher: bad path", zap.String("path", j.TriggerConfig), zap.Error(err))
			continue
		}
		pathToJob[absPath] = j.ID
	}
	if len(pathToJob) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Error("watcher: failed to create", zap.Error(err))
		return
	}
	s.watcher = watcher

	watchedDirs := make(map[string]bool)
	for absPath := range pathToJob {
		dir := filepath.Dir(absPath)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn("watcher: failed to watch dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.watchLoop(watchCtx, runCtx, watcher, pathToJob)

	s.logger.Info("watcher: watching files", zap.Int("count", len(pathToJob)))
}

// watchLoop debounces write/create events per job by 500ms.
func (s *IngestService) watchLoop(watchCtx, runCtx context.Context, watcher *fsnotify.Watcher, pathToJob map[string]string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-watchCtx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			jobID, ok := pathToJob[absPath]
			if !ok {
				continue
			}
			if t, exists := timers[jobID]; exists {
				t.Stop()
			}
			timers[jobID] = time.AfterFunc(500*time.Millisecond, func() {
				s.logger.Info("watcher: file changed", zap.String("path", absPath), zap.String("job_id", jobID))
				if _, err := s.RunJob(runCtx, jobID); err != nil {
					s.logger.Warn("watcher: run failed", zap.String("job_id", jobID), zap.Error(err))
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher: error", zap.Error(err))
		}
	}
}

// WaitRunning blocks until all running passes finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *IngestService) WaitRunning(ctx context.Context) {
	s.guard.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *IngestService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
}

func (s *IngestService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
