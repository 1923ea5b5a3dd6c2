package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sfkse/rewriteit/app/models"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"
)

var (
	// ErrQueueFull means the in-process buffer has no room; the caller
	// should tell the user to try again.
	ErrQueueFull = errors.New("task queue is full")
	ErrClosed    = errors.New("dispatcher is closed")
)

// Dispatcher hands tasks to background execution. Submit must not block on
// the task itself.
type Dispatcher interface {
	Submit(ctx context.Context, task models.RewriteTask) error
	Close() error
}

// TaskRunner executes one task.
type TaskRunner interface {
	Process(ctx context.Context, task models.RewriteTask) models.TaskState
}

// LocalDispatcher is an in-process worker pool. Queued tasks are lost if
// the process dies.
type LocalDispatcher struct {
	runner  TaskRunner
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan models.RewriteTask
	wg     sync.WaitGroup
}

func NewLocalDispatcher(runner TaskRunner, workers, buffer int, timeout time.Duration) *LocalDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	d := &LocalDispatcher{
		runner:  runner,
		timeout: timeout,
		jobs:    make(chan models.RewriteTask, buffer),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			for task := range d.jobs {
				d.run(id, task)
			}
		}(i)
	}
	return d
}

func (d *LocalDispatcher) run(worker int, task models.RewriteTask) {
	// Tasks outlive the HTTP request that created them.
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	state := d.runner.Process(ctx, task)
	log.Debug().
		Int("worker", worker).
		Str("kind", string(task.Kind)).
		Str("state", string(state)).
		Dur("took", time.Since(start)).
		Msg("task finished")
}

// Submit enqueues without waiting; a full buffer returns ErrQueueFull.
func (d *LocalDispatcher) Submit(_ context.Context, task models.RewriteTask) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.jobs <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops intake and waits for queued tasks to finish.
func (d *LocalDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

// SQSAPI is the subset of the SQS client used for task delivery.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSDispatcher sends tasks to a queue consumed by `rewordit worker`.
type SQSDispatcher struct {
	client   SQSAPI
	queueURL string
}

func NewSQSDispatcher(client SQSAPI, queueURL string) *SQSDispatcher {
	return &SQSDispatcher{client: client, queueURL: queueURL}
}

func (d *SQSDispatcher) Submit(ctx context.Context, task models.RewriteTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	// Detached from the request so a client hang-up does not drop the task.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err = d.client.SendMessage(sendCtx, &sqs.SendMessageInput{
		QueueUrl:    &d.queueURL,
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (d *SQSDispatcher) Close() error { return nil }
