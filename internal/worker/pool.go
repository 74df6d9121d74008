package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"patashala-backend/internal/generator"
	"patashala-backend/internal/models"
	"patashala-backend/internal/repository"
	"patashala-backend/internal/services"
)

// QuestionSetBuilder is the part of QuizService the worker drives.
type QuestionSetBuilder interface {
	BuildQuestionSet(ctx context.Context, job *models.Job) (*models.Quiz, *generator.Result, error)
	MarkFailed(ctx context.Context, quizID uuid.UUID, cause error)
}

type UpdatePublisher interface {
	PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

type Pool struct {
	redis       *redis.Client
	jobs        services.JobStore
	builder     QuestionSetBuilder
	updates     UpdatePublisher
	workerCount int
	maxRetries  int
	requeue     func(job *models.Job, after time.Duration)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(
	redisClient *redis.Client,
	jobs services.JobStore,
	builder QuestionSetBuilder,
	updates UpdatePublisher,
	workerCount int,
) *Pool {
	p := &Pool{
		redis:       redisClient,
		jobs:        jobs,
		builder:     builder,
		updates:     updates,
		workerCount: workerCount,
		maxRetries:  3,
	}
	p.requeue = p.pushLater
	return p
}

func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	queue := services.QueueName(models.JobQuizGeneration)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i, queue)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

// Stop cancels pending pops and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int, queue string) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			log.Printf("Worker %d shutting down", id)
			return
		}

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, queue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Printf("Worker %d: queue read failed: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		jobID, err := uuid.Parse(result[1])
		if err != nil {
			log.Printf("Worker %d: bad job id %q", id, result[1])
			continue
		}

		// Jobs run to completion even during shutdown.
		p.claimAndRun(context.Background(), id, jobID)
	}
}

func (p *Pool) claimAndRun(ctx context.Context, worker int, jobID uuid.UUID) {
	lockKey := fmt.Sprintf("job_lock:%s", jobID)
	locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
	if err != nil || !locked {
		return // Another worker has this job
	}
	defer p.redis.Del(ctx, lockKey)

	job, err := p.jobs.GetByID(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("Worker %d: job %s no longer exists", worker, jobID)
		return
	}
	if err != nil {
		log.Printf("Worker %d: failed to load job %s: %v", worker, jobID, err)
		return
	}
	if job.Status == models.JobCompleted || job.Status == models.JobFailed {
		return
	}

	log.Printf("Worker %d: processing job %s (type: %s)", worker, job.ID, job.Type)
	p.Run(ctx, job)
}

// Run executes one generation job and records its outcome.
func (p *Pool) Run(ctx context.Context, job *models.Job) {
	p.jobs.UpdateStatus(ctx, job.ID, models.JobProcessing)
	p.updates.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID:                     job.ID,
			Step:                      1,
			StepName:                  "Building question set",
			EstimatedSecondsRemaining: 20,
		},
	})

	if job.Type != models.JobQuizGeneration {
		p.fail(ctx, job, fmt.Errorf("unknown job type: %s", job.Type), false)
		return
	}

	quiz, res, err := p.builder.BuildQuestionSet(ctx, job)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}
	p.handleSuccess(ctx, job, quiz, res)
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job, quiz *models.Quiz, res *generator.Result) {
	p.jobs.UpdateStatus(ctx, job.ID, models.JobCompleted)

	p.updates.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:         job.ID,
			ResultID:      quiz.ID,
			ResultType:    "quiz",
			LowConfidence: res.LowConfidence,
		},
	})

	log.Printf("Job %s completed: %d questions (%d local, low confidence: %t)",
		job.ID, len(res.Questions), res.LocalCount, res.LowConfidence)
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	var (
		thin     *models.InsufficientContentError
		conflict *models.ConflictError
		notFound *models.NotFoundError
		invalid  *models.ValidationError
	)
	return errors.As(err, &thin) || errors.As(err, &conflict) || errors.As(err, &notFound) || errors.As(err, &invalid)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	if permanent(err) {
		p.fail(ctx, job, err, true)
		return
	}

	job.RetryCount++
	limit := job.MaxRetries
	if limit <= 0 {
		limit = p.maxRetries
	}
	if job.RetryCount >= limit {
		p.fail(ctx, job, err, true)
		return
	}

	errMsg := err.Error()
	log.Printf("Job %s failed (attempt %d): %s, retrying", job.ID, job.RetryCount, errMsg)
	p.jobs.UpdateStatus(ctx, job.ID, models.JobPending)
	p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	p.requeue(job, time.Duration(1<<uint(job.RetryCount))*time.Second)
}

func (p *Pool) fail(ctx context.Context, job *models.Job, err error, markQuiz bool) {
	errMsg := err.Error()
	log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
	p.jobs.UpdateStatus(ctx, job.ID, models.JobFailed)
	p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	if markQuiz {
		p.builder.MarkFailed(ctx, job.ReferenceID, err)
	}

	code := "JOB_FAILED"
	var thin *models.InsufficientContentError
	if errors.As(err, &thin) {
		code = "INSUFFICIENT_CONTENT"
	}
	p.updates.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    code,
			ErrorMessage: errMsg,
		},
	})
}

func (p *Pool) pushLater(job *models.Job, after time.Duration) {
	id, jobType := job.ID, job.Type
	time.AfterFunc(after, func() {
		if err := p.redis.LPush(context.Background(), services.QueueName(jobType), id.String()).Err(); err != nil {
			log.Printf("WARNING: failed to requeue job %s: %v", id, err)
		}
	})
}
