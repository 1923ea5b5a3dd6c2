package models

type TaskKind string

const (
	// TaskCommand comes from the slash command.
	TaskCommand TaskKind = "command"
	// TaskRewrite comes from the rewrite button on a result card.
	TaskRewrite TaskKind = "rewrite"
	// TaskPublish posts the latest rewrite to the channel.
	TaskPublish TaskKind = "publish"
	TaskDismiss TaskKind = "dismiss"
)

// RewriteTask is the unit of background work, also the SQS message body.
type RewriteTask struct {
	Kind         TaskKind `json:"kind"`
	SlackUserID  string   `json:"slack_user_id"`
	UserName     string   `json:"user_name,omitempty"`
	ResponseURL  string   `json:"response_url"`
	Text         string   `json:"text"`
	Tone         string   `json:"tone,omitempty"`
	ParaphraseID string   `json:"paraphrase_id,omitempty"` // history entry behind a clicked card
}

// TaskState tracks a task through the rewrite workflow.
type TaskState string

const (
	StateSubmitted           TaskState = "SUBMITTED"
	StateAcknowledged        TaskState = "ACKNOWLEDGED"
	StateQuotaChecked        TaskState = "QUOTA_CHECKED"
	StateDenied              TaskState = "DENIED"
	StateCompletionRequested TaskState = "COMPLETION_REQUESTED"
	StateCompletionFailed    TaskState = "COMPLETION_FAILED"
	StateCompleted           TaskState = "COMPLETED"
	StateCallbackSent        TaskState = "CALLBACK_SENT"
)
