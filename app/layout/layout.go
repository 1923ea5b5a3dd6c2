// Package layout builds the Slack messages posted back to response_url.
package layout

import (
	"github.com/slack-go/slack"
)

const (
	ResponseEphemeral = "ephemeral"
	ResponseInChannel = "in_channel"

	ActionRewrite = "rewrite_button"
	ActionSend    = "send_button"
	ActionDismiss = "dismiss_button"

	ToneBlockID  = "tone_block"
	ToneActionID = "tone_input"

	ProcessingText = "Rewriting your text..."
	GenericError   = "Sorry, something went wrong while rewriting your text. Please try again."
	NoCreditsText  = "You have used all of your credits. Upgrade your plan to keep rewriting."
)

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}

func ephemeral(text string, blocks ...slack.Block) *slack.WebhookMessage {
	msg := &slack.WebhookMessage{
		ResponseType: ResponseEphemeral,
		Text:         text,
	}
	if len(blocks) > 0 {
		msg.Blocks = &slack.Blocks{BlockSet: blocks}
	}
	return msg
}

// Processing is the acknowledgement shown while the rewrite runs.
func Processing() *slack.WebhookMessage {
	return ephemeral(ProcessingText, slack.NewSectionBlock(markdown(":hourglass_flowing_sand: "+ProcessingText), nil, nil))
}

// Result renders the original and rewritten text with the follow-up actions.
// The rewrite and send buttons carry paraphraseID so a click acts on this
// card's history entry.
func Result(original, rewritten, tone, paraphraseID string) *slack.WebhookMessage {
	toneInput := slack.NewPlainTextInputBlockElement(plain("e.g. formal, friendly, concise"), ToneActionID)
	toneInput.InitialValue = tone
	toneBlock := slack.NewInputBlock(ToneBlockID, plain("Tone"), nil, toneInput)
	toneBlock.Optional = true

	rewriteValue, sendValue := "rewrite", "send"
	if paraphraseID != "" {
		rewriteValue, sendValue = paraphraseID, paraphraseID
	}
	rewrite := slack.NewButtonBlockElement(ActionRewrite, rewriteValue, plain("Rewrite"))
	send := slack.NewButtonBlockElement(ActionSend, sendValue, plain("Send")).WithStyle(slack.StylePrimary)
	dismiss := slack.NewButtonBlockElement(ActionDismiss, "dismiss", plain("Dismiss"))

	msg := ephemeral(rewritten,
		slack.NewSectionBlock(markdown("*Original*\n"+original), nil, nil),
		slack.NewSectionBlock(markdown("*Rewritten*\n"+rewritten), nil, nil),
		toneBlock,
		slack.NewActionBlock("rewrite_actions", rewrite, send, dismiss),
	)
	msg.ReplaceOriginal = true
	return msg
}

func Error(message string) *slack.WebhookMessage {
	if message == "" {
		message = GenericError
	}
	return ephemeral(message, slack.NewSectionBlock(markdown(":warning: "+message), nil, nil))
}

func NoCredits() *slack.WebhookMessage {
	return ephemeral(NoCreditsText, slack.NewSectionBlock(markdown(":no_entry: "+NoCreditsText), nil, nil))
}

// Publish posts text to the channel and removes the ephemeral card.
func Publish(text string) *slack.WebhookMessage {
	return &slack.WebhookMessage{
		ResponseType:   ResponseInChannel,
		Text:           text,
		DeleteOriginal: true,
	}
}

func Dismiss() *slack.WebhookMessage {
	return &slack.WebhookMessage{DeleteOriginal: true}
}
