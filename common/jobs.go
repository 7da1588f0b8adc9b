package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

var ErrJobNotFound = errors.New("job not found")

// Job tracks one server-side run.
type Job struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Status      string     `gorm:"size:16;index" json:"status"`
	InputPath   string     `gorm:"size:512" json:"input_path"`
	OutputDir   string     `gorm:"size:512" json:"output_dir,omitempty"`
	Narration   bool       `json:"narration"`
	SlidesCount int        `json:"slides_count"`
	Degraded    bool       `json:"degraded"`
	VideoURL    string     `gorm:"size:1024" json:"video_url,omitempty"`
	DeckURL     string     `gorm:"size:1024" json:"deck_url,omitempty"`
	Error       string     `gorm:"size:2048" json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DoneAt      *time.Time `json:"done_at,omitempty"`
}

// JobResult is what a finished run reports back to the store.
type JobResult struct {
	Degraded bool
	VideoURL string
	DeckURL  string
	Err      error
}

type JobStore struct {
	db *gorm.DB
}

// OpenJobStore connects with the given driver ("sqlite" or "postgres") and
// migrates the jobs table.
func OpenJobStore(driver, dsn string) (*JobStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open job db: %w", err)
	}
	if driver == "sqlite" {
		// one writer at a time, or workers hit "database is locked"
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewJobStore(db)
}

func NewJobStore(db *gorm.DB) (*JobStore, error) {
	if err := db.AutoMigrate(&Job{}); err != nil {
		return nil, fmt.Errorf("migrate jobs: %w", err)
	}
	return &JobStore{db: db}, nil
}

func (s *JobStore) Create(ctx context.Context, job *Job) error {
	if job.Status == "" {
		job.Status = JobQueued
	}
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobStore) MarkProcessing(ctx context.Context, id string) error {
	return s.update(ctx, id, map[string]interface{}{"status": JobProcessing})
}

// Finish records the terminal state of a job.
func (s *JobStore) Finish(ctx context.Context, id string, res JobResult) error {
	now := time.Now()
	fields := map[string]interface{}{
		"status":    JobCompleted,
		"degraded":  res.Degraded,
		"video_url": res.VideoURL,
		"deck_url":  res.DeckURL,
		"done_at":   &now,
	}
	if res.Err != nil {
		fields["status"] = JobFailed
		fields["error"] = res.Err.Error()
	}
	return s.update(ctx, id, fields)
}

func (s *JobStore) update(ctx context.Context, id string, fields map[string]interface{}) error {
	tx := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// CountByStatus is used by the health endpoint.
func (s *JobStore) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Job{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

// PurgeFinished deletes finished jobs older than cutoff and returns them so
// the caller can remove their files.
func (s *JobStore) PurgeFinished(ctx context.Context, cutoff time.Time) ([]Job, error) {
	var jobs []Job
	err := s.db.WithContext(ctx).
		Where("status IN ? AND done_at < ?", []string{JobCompleted, JobFailed}, cutoff).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&Job{}).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Close releases the underlying connection pool.
func (s *JobStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
