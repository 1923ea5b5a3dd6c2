package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sfkse/rewriteit/app/models"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

// SQSWorker long-polls the task queue and runs each message through the
// processor. Messages are deleted once processed: the processor has already
// told the user about the outcome, so redelivery would only duplicate it.
type SQSWorker struct {
	client   SQSAPI
	queueURL string
	runner   TaskRunner
	timeout  time.Duration

	idleWait  time.Duration
	errorWait time.Duration
}

func NewSQSWorker(client SQSAPI, queueURL string, runner TaskRunner, timeout time.Duration) *SQSWorker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &SQSWorker{
		client:    client,
		queueURL:  queueURL,
		runner:    runner,
		timeout:   timeout,
		idleWait:  2 * time.Second,
		errorWait: 5 * time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (w *SQSWorker) Run(ctx context.Context) error {
	log.Info().Str("queue_url", w.queueURL).Msg("worker started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		recvCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		resp, err := w.client.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
			QueueUrl:            &w.queueURL,
			MaxNumberOfMessages: 5,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(w.timeout/time.Second) + 30,
		})
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("ReceiveMessage failed")
			sleep(ctx, w.errorWait)
			continue
		}

		if len(resp.Messages) == 0 {
			sleep(ctx, w.idleWait)
			continue
		}

		for _, m := range resp.Messages {
			w.handle(ctx, m)
		}
	}
}

func (w *SQSWorker) handle(ctx context.Context, m sqstypes.Message) {
	defer w.deleteMessage(m)

	if m.Body == nil {
		log.Warn().Msg("received message with empty body, skipping")
		return
	}

	var task models.RewriteTask
	if err := json.Unmarshal([]byte(*m.Body), &task); err != nil {
		log.Error().Err(err).Str("body", *m.Body).Msg("failed to unmarshal task message")
		return
	}

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	start := time.Now()
	state := w.runner.Process(taskCtx, task)
	log.Info().
		Str("kind", string(task.Kind)).
		Str("slack_user_id", task.SlackUserID).
		Str("state", string(state)).
		Dur("took", time.Since(start)).
		Msg("task finished")
}

func (w *SQSWorker) deleteMessage(m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &w.queueURL,
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to delete SQS message")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
