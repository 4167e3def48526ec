package domain

// ComposedEmail is a rendered digest ready for a mail transport.
// It is never persisted.
type ComposedEmail struct {
	To       string `json:"to"`
	From     string `json:"from"`
	ReplyTo  string `json:"reply_to"`
	Subject  string `json:"subject"`
	TextBody string `json:"text_body"`
	HTMLBody string `json:"html_body"`

	// Bookkeeping for logs and metrics.
	UserID     int64   `json:"user_id"`
	MessageIDs []int64 `json:"message_ids"`
}
