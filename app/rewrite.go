package app

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/sfkse/rewriteit/app/completion"
	"github.com/sfkse/rewriteit/app/layout"
	"github.com/sfkse/rewriteit/app/models"
	"github.com/sfkse/rewriteit/app/store"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

// Repository is the part of the store the workflow needs.
type Repository interface {
	GetOrCreateUser(ctx context.Context, slackUserID, name string, info models.Metadata) (*models.User, error)
	SpendCredit(ctx context.Context, userID string) error
	RecordRewrite(ctx context.Context, userID, original, rewritten, tone string) (*models.Paraphrase, error)
	LatestRewrite(ctx context.Context, userID string) (*models.Paraphrase, error)
	GetRewrite(ctx context.Context, userID, id string) (*models.Paraphrase, error)
	TrimHistory(ctx context.Context, userID string, keep int) (int64, error)
}

// Responder posts messages to a Slack response_url.
type Responder interface {
	Respond(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error
}

const (
	nothingToRewrite = "There is nothing to rewrite yet. Run /rephrase with some text first."
	rewriteExpired   = "That rewrite is no longer in your history. Run /rephrase again."

	// callbackTimeout bounds each response_url post, independent of the
	// task deadline.
	callbackTimeout = 10 * time.Second
)

// Processor runs one task at a time through acknowledge, quota, completion,
// persistence and the final callback.
type Processor struct {
	store     Repository
	completer completion.Completer
	responder Responder
}

func NewProcessor(store Repository, completer completion.Completer, responder Responder) *Processor {
	return &Processor{store: store, completer: completer, responder: responder}
}

// Process never returns an error: failures end in an error card posted to
// the task's response_url. The returned state is the last one reached.
func (p *Processor) Process(ctx context.Context, task models.RewriteTask) (state models.TaskState) {
	state = models.StateSubmitted
	logger := log.With().
		Str("kind", string(task.Kind)).
		Str("slack_user_id", task.SlackUserID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Str("state", string(state)).
				Msg("rewrite task panicked")
			p.respond(ctx, logger, task.ResponseURL, layout.Error(""))
			state = models.StateCompletionFailed
		}
	}()

	switch task.Kind {
	case models.TaskPublish:
		return p.publish(ctx, logger, task)
	case models.TaskDismiss:
		if p.respond(ctx, logger, task.ResponseURL, layout.Dismiss()) {
			return models.StateCallbackSent
		}
		return models.StateCompleted
	}

	ack := layout.Processing()
	ack.ReplaceOriginal = task.Kind == models.TaskRewrite
	p.respond(ctx, logger, task.ResponseURL, ack)
	state = models.StateAcknowledged

	user, err := p.store.GetOrCreateUser(ctx, task.SlackUserID, task.UserName, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load user")
		p.respond(ctx, logger, task.ResponseURL, layout.Error(""))
		return models.StateCompletionFailed
	}

	if err := checkQuota(user); err != nil {
		logger.Info().Err(err).Msg("rewrite denied")
		p.respond(ctx, logger, task.ResponseURL, layout.NoCredits())
		return models.StateDenied
	}
	state = models.StateQuotaChecked

	text, tone := task.Text, task.Tone
	if task.Kind == models.TaskRewrite {
		prev, err := p.sourceRewrite(ctx, user.ID, task.ParaphraseID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				p.respond(ctx, logger, task.ResponseURL, layout.Error(missingRewriteText(task)))
			} else {
				logger.Error().Err(err).Msg("failed to load rewrite")
				p.respond(ctx, logger, task.ResponseURL, layout.Error(""))
			}
			return models.StateCompletionFailed
		}
		text = prev.OriginalText
		if tone == "" {
			tone = prev.ToneOrEmpty()
		}
	}

	state = models.StateCompletionRequested
	rewritten, err := p.completer.Complete(ctx, text, tone)
	if err != nil {
		logger.Error().Err(err).Msg("completion failed")
		p.respond(ctx, logger, task.ResponseURL, layout.Error(""))
		return models.StateCompletionFailed
	}
	state = models.StateCompleted

	// The user already paid for the completion; a failed write is logged
	// and the result is still delivered.
	recordID := ""
	if rec, err := p.store.RecordRewrite(ctx, user.ID, text, rewritten, tone); err != nil {
		logger.Error().Err(err).Msg("failed to record rewrite")
	} else {
		recordID = rec.ID
	}
	if err := p.store.SpendCredit(ctx, user.ID); err != nil {
		logger.Error().Err(err).Msg("failed to spend credit")
	}
	if removed, err := p.store.TrimHistory(ctx, user.ID, store.HistoryLimit); err != nil {
		logger.Error().Err(err).Msg("failed to trim history")
	} else if removed > 0 {
		logger.Debug().Int64("removed", removed).Msg("trimmed history")
	}

	if !p.respond(ctx, logger, task.ResponseURL, layout.Result(text, rewritten, tone, recordID)) {
		return state
	}
	logger.Info().Str("tone", tone).Msg("rewrite delivered")
	return models.StateCallbackSent
}

func (p *Processor) publish(ctx context.Context, logger zerolog.Logger, task models.RewriteTask) models.TaskState {
	user, err := p.store.GetOrCreateUser(ctx, task.SlackUserID, task.UserName, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load user")
		p.respond(ctx, logger, task.ResponseURL, layout.Error(""))
		return models.StateCompletionFailed
	}
	source, err := p.sourceRewrite(ctx, user.ID, task.ParaphraseID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error().Err(err).Msg("failed to load rewrite")
		}
		p.respond(ctx, logger, task.ResponseURL, layout.Error(missingRewriteText(task)))
		return models.StateCompletionFailed
	}
	if !p.respond(ctx, logger, task.ResponseURL, layout.Publish(source.ParaphrasedText)) {
		return models.StateCompleted
	}
	return models.StateCallbackSent
}

// sourceRewrite returns the history entry the clicked card was built from,
// or the newest entry when the card carried no id.
func (p *Processor) sourceRewrite(ctx context.Context, userID, paraphraseID string) (*models.Paraphrase, error) {
	if paraphraseID != "" {
		return p.store.GetRewrite(ctx, userID, paraphraseID)
	}
	return p.store.LatestRewrite(ctx, userID)
}

func missingRewriteText(task models.RewriteTask) string {
	if task.ParaphraseID != "" {
		return rewriteExpired
	}
	return nothingToRewrite
}

// respond is best effort: a failed callback is logged and reported as false.
func (p *Processor) respond(ctx context.Context, logger zerolog.Logger, responseURL string, msg *slack.WebhookMessage) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), callbackTimeout)
	defer cancel()
	if err := p.responder.Respond(ctx, responseURL, msg); err != nil {
		logger.Warn().Err(err).Msg("failed to post to response url")
		return false
	}
	return true
}
