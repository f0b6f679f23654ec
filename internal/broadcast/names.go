package broadcast

// Notification names the engine emits. Room broadcasts and unicasts share
// the same namespace; clients dispatch on the envelope name.
const (
	NameRateLimitStatus      = "rate-limit-status"
	NameNewRequest           = "new-request"
	NameRequestCreated       = "request-created"
	NameRequestAccepted      = "request-accepted"
	NameYourRequestAccepted  = "your-request-accepted"
	NameRequestRejected      = "request-rejected"
	NameYourRequestRejected  = "your-request-rejected"
	NameVoteUpdated          = "vote-updated"
	NameQueueUpdated         = "queue-updated"
	NameEventSettingsUpdated = "event-settings-updated"
	NameRequestError         = "request-error"
	NameVoteError            = "vote-error"
)
