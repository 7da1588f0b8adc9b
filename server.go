package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"slidecast/common"
	"slidecast/pipelines/video"
)

var ErrQueueFull = errors.New("job queue is full")

// Runner executes one document-to-video run. *video.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req video.RunRequest) (*video.RunResult, error)
}

type WorkerPool struct {
	ctx        context.Context
	jobs       chan *common.Job
	store      *common.JobStore
	runner     Runner
	log        common.Logger
	wg         sync.WaitGroup
	numWorkers int
}

// NewWorkerPool starts numWorkers goroutines. Cancelling ctx cancels the
// runs in flight and fails whatever is still queued.
func NewWorkerPool(ctx context.Context, runner Runner, store *common.JobStore, log common.Logger, numWorkers, bufferSize int) *WorkerPool {
	pool := &WorkerPool{
		ctx:        ctx,
		jobs:       make(chan *common.Job, bufferSize),
		store:      store,
		runner:     runner,
		log:        log,
		numWorkers: numWorkers,
	}
	pool.Start()
	return pool
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info(context.Background(), "Started %d workers", p.numWorkers)
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := p.ctx.Err(); err != nil {
			p.finish(job.ID, common.JobResult{Err: fmt.Errorf("server shutting down: %w", err)})
			continue
		}
		p.log.Info(p.ctx, "[Worker %d] Processing job %s", id, job.ID)
		p.processJob(job)
	}
	p.log.Debug(context.Background(), "[Worker %d] Shutting down", id)
}

func (p *WorkerPool) processJob(job *common.Job) {
	ctx := context.WithoutCancel(p.ctx)
	if err := p.store.MarkProcessing(ctx, job.ID); err != nil {
		p.log.Warn(ctx, "[Job %s] Could not mark processing: %v", job.ID, err)
	}

	res, err := p.runner.Run(p.ctx, video.RunRequest{
		ID:          job.ID,
		InputPath:   job.InputPath,
		OutputDir:   job.OutputDir,
		SlidesCount: job.SlidesCount,
		Narration:   job.Narration,
	})

	result := common.JobResult{Err: err}
	if err != nil {
		p.log.Error(ctx, "[Job %s] Failed: %v", job.ID, err)
	} else {
		result.Degraded = res.Degraded
		result.VideoURL = publishedOr(res, res.VideoPath)
		result.DeckURL = publishedOr(res, res.DeckPath)
		p.log.Info(ctx, "[Job %s] Completed (%s)", job.ID, res.Strategy)
	}

	p.finish(job.ID, result)
}

// finish records the result even after the pool context is cancelled.
func (p *WorkerPool) finish(id string, result common.JobResult) {
	ctx := context.WithoutCancel(p.ctx)
	if err := p.store.Finish(ctx, id, result); err != nil {
		p.log.Error(ctx, "[Job %s] Could not record result: %v", id, err)
	}
}

// publishedOr prefers the sink URL of an artifact over its local path.
func publishedOr(res *video.RunResult, localPath string) string {
	if url, ok := res.Published[filepath.Base(localPath)]; ok {
		return url
	}
	return localPath
}

// Submit enqueues without blocking the request.
func (p *WorkerPool) Submit(job *common.Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *WorkerPool) Queued() int {
	return len(p.jobs)
}

func (p *WorkerPool) Shutdown() {
	close(p.jobs)
	p.wg.Wait()
}

type Server struct {
	cfg     *common.Config
	pool    *WorkerPool
	store   *common.JobStore
	log     common.Logger
	janitor *cron.Cron
}

func NewServer(ctx context.Context, cfg *common.Config, store *common.JobStore, runner Runner, log common.Logger) (*Server, error) {
	if err := os.MkdirAll(cfg.Server.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Server{
		cfg:   cfg,
		pool:  NewWorkerPool(ctx, runner, store, log, cfg.Server.Workers, cfg.Server.QueueSize),
		store: store,
		log:   log,
	}, nil
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/jobs", s.handleUpload)
	router.GET("/jobs/:id", s.handleStatus)
	router.GET("/health", s.handleHealth)
	return router
}

func (s *Server) handleUpload(c *gin.Context) {
	ctx := c.Request.Context()

	narration := s.cfg.Narration.Enabled
	if v := c.Query("tts"); v != "" {
		on, err := parseToggle(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		narration = on
	}

	slides := s.cfg.Slides.MaxCount
	if v := c.Query("slides"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "slides must be a positive number"})
			return
		}
		slides = n
	}

	file, err := c.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to get document: " + err.Error()})
		return
	}
	if !common.SupportedInput(file.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only .pdf, .txt and .md documents are accepted"})
		return
	}

	jobID := uuid.New().String()
	inputPath := filepath.Join(s.cfg.Server.UploadDir, jobID+"_"+filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, inputPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file: " + err.Error()})
		return
	}

	job := &common.Job{
		ID:          jobID,
		Status:      common.JobQueued,
		InputPath:   inputPath,
		OutputDir:   filepath.Join(s.cfg.Paths.Output, "job_"+jobID),
		Narration:   narration,
		SlidesCount: slides,
	}
	if err := s.store.Create(ctx, job); err != nil {
		os.Remove(inputPath)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record job: " + err.Error()})
		return
	}

	if err := s.pool.Submit(job); err != nil {
		_ = s.store.Finish(ctx, jobID, common.JobResult{Err: err})
		c.JSON(http.StatusServiceUnavailable, gin.H{"job_id": jobID, "error": err.Error()})
		return
	}

	s.log.Info(ctx, "Queued job %s for %s", jobID, file.Filename)
	c.JSON(http.StatusAccepted, gin.H{
		"job_id": jobID,
		"status": common.JobQueued,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	job, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, common.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	processing, _ := s.store.CountByStatus(ctx, common.JobProcessing)
	queued, _ := s.store.CountByStatus(ctx, common.JobQueued)

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"workers":     s.pool.numWorkers,
		"goroutines":  runtime.NumGoroutine(),
		"queued_jobs": queued,
		"processing":  processing,
		"queue_depth": s.pool.Queued(),
	})
}

// StartJanitor schedules removal of finished jobs past the retention window.
func (s *Server) StartJanitor() error {
	s.janitor = cron.New(cron.WithSeconds())
	_, err := s.janitor.AddFunc(s.cfg.Server.JanitorSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.purge(ctx, time.Now())
	})
	if err != nil {
		return fmt.Errorf("schedule janitor %q: %w", s.cfg.Server.JanitorSpec, err)
	}
	s.janitor.Start()
	s.log.Info(context.Background(), "Janitor scheduled (%s, retention %d days)", s.cfg.Server.JanitorSpec, s.cfg.Server.RetentionDays)
	return nil
}

func (s *Server) purge(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-time.Duration(s.cfg.Server.RetentionDays) * 24 * time.Hour)
	jobs, err := s.store.PurgeFinished(ctx, cutoff)
	if err != nil {
		s.log.Error(ctx, "[Janitor] Purge failed: %v", err)
		return 0
	}
	for _, job := range jobs {
		if err := os.Remove(job.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn(ctx, "[Janitor] Could not remove %s: %v", job.InputPath, err)
		}
		if job.OutputDir != "" {
			if err := os.RemoveAll(job.OutputDir); err != nil {
				s.log.Warn(ctx, "[Janitor] Could not remove %s: %v", job.OutputDir, err)
			}
		}
	}
	if len(jobs) > 0 {
		s.log.Info(ctx, "[Janitor] Removed %d finished jobs", len(jobs))
	}
	return len(jobs)
}

// Shutdown stops the janitor and drains the worker pool.
func (s *Server) Shutdown() {
	if s.janitor != nil {
		<-s.janitor.Stop().Done()
	}
	s.pool.Shutdown()
}

func StartServer(ctx context.Context, cfg *common.Config, log common.Logger) error {
	store, err := common.OpenJobStore(cfg.Server.DBDriver, cfg.Server.DBDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline, err := newPipeline(ctx, cfg, log, nil)
	if err != nil {
		return err
	}

	server, err := NewServer(ctx, cfg, store, pipeline, log)
	if err != nil {
		return err
	}
	if err := server.StartJanitor(); err != nil {
		return err
	}
	defer server.Shutdown()

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Router(),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "Server starting on %s with %d workers", cfg.Server.Addr, cfg.Server.Workers)
		log.Info(ctx, "POST /jobs with a 'document' form field and ?tts=on|off&slides=N to process")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info(context.Background(), "Shutting down, waiting for running jobs...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
