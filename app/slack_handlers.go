package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sfkse/rewriteit/app/layout"
	"github.com/sfkse/rewriteit/app/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

const (
	emptyTextMessage = "Please provide some text to rephrase, e.g. `/rephrase make this nicer --tone friendly`."
	busyMessage      = "We're handling a lot of requests right now. Please try again in a moment."
)

// Rephrase handles the slash command. It answers right away; the rewrite
// itself arrives later on response_url.
func (s *Server) Rephrase(c *gin.Context) {
	cmd, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		log.Warn().Err(err).Msg("invalid slash command form")
		c.JSON(http.StatusOK, layout.Error("Could not read the command."))
		return
	}

	text, tone := ParseCommand(cmd.Text)
	if text == "" {
		c.JSON(http.StatusOK, layout.Error(emptyTextMessage))
		return
	}
	if cmd.UserID == "" || cmd.ResponseURL == "" {
		c.JSON(http.StatusOK, layout.Error("Missing user or response url."))
		return
	}

	s.submit(c, models.RewriteTask{
		Kind:        models.TaskCommand,
		SlackUserID: cmd.UserID,
		UserName:    cmd.UserName,
		ResponseURL: cmd.ResponseURL,
		Text:        text,
		Tone:        tone,
	})
}

// RephraseAction handles button clicks on the result card.
func (s *Server) RephraseAction(c *gin.Context) {
	raw := c.PostForm("payload")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing payload"})
		return
	}

	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(raw), &cb); err != nil {
		log.Warn().Err(err).Msg("invalid interaction payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(cb.ActionCallback.BlockActions) == 0 {
		c.Status(http.StatusOK)
		return
	}

	task := models.RewriteTask{
		SlackUserID: cb.User.ID,
		UserName:    cb.User.Name,
		ResponseURL: cb.ResponseURL,
	}

	action := cb.ActionCallback.BlockActions[0]
	switch action.ActionID {
	case layout.ActionRewrite:
		task.Kind = models.TaskRewrite
		task.Tone = toneFromState(cb.BlockActionState)
		task.ParaphraseID = paraphraseIDFromValue(action.Value)
	case layout.ActionSend:
		task.Kind = models.TaskPublish
		task.ParaphraseID = paraphraseIDFromValue(action.Value)
	case layout.ActionDismiss:
		task.Kind = models.TaskDismiss
	default:
		log.Info().Str("action_id", action.ActionID).Str("slack_user_id", cb.User.ID).Msg("ignoring unknown action")
		c.Status(http.StatusOK)
		return
	}

	if task.SlackUserID == "" || task.ResponseURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user or response url"})
		return
	}

	s.submit(c, task)
}

func (s *Server) submit(c *gin.Context, task models.RewriteTask) {
	if err := s.dispatcher.Submit(c.Request.Context(), task); err != nil {
		if errors.Is(err, ErrQueueFull) {
			log.Warn().Str("slack_user_id", task.SlackUserID).Msg("task queue full")
		} else {
			log.Error().Err(err).Str("slack_user_id", task.SlackUserID).Msg("failed to submit task")
		}
		c.JSON(http.StatusOK, layout.Error(busyMessage))
		return
	}
	c.Status(http.StatusOK)
}

func toneFromState(state *slack.BlockActionStates) string {
	if state == nil {
		return ""
	}
	block, ok := state.Values[layout.ToneBlockID]
	if !ok {
		return ""
	}
	return strings.TrimSpace(block[layout.ToneActionID].Value)
}

// paraphraseIDFromValue accepts only history ids; cards without one carry a
// fixed placeholder value.
func paraphraseIDFromValue(value string) string {
	if _, err := uuid.Parse(value); err != nil {
		return ""
	}
	return value
}
