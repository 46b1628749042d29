package orchestrator

// Stage is the progress of one persona's reply to a delivered message.
type Stage string

const (
	StageDelivered          Stage = "delivered"
	StageRecipientsResolved Stage = "recipients_resolved"
	StageAgentThreadReady   Stage = "agent_thread_ready"
	StageReplyDrafted       Stage = "reply_drafted"
	StageReplyDelivered     Stage = "reply_delivered"
)
