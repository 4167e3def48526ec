package domain

// MaxMessagesPerRequest bounds a single notification request.
const MaxMessagesPerRequest = 1000

// NotificationRequest asks for a digest of the given messages for one user.
// MessageIDs keeps the caller's order.
type NotificationRequest struct {
	UserID     int64   `json:"user_id"`
	MessageIDs []int64 `json:"message_ids"`
}

func (r *NotificationRequest) Validate() error {
	if r.UserID <= 0 {
		return ErrInvalidUser
	}
	if len(r.MessageIDs) == 0 {
		return ErrNoMessages
	}
	if len(r.MessageIDs) > MaxMessagesPerRequest {
		return ErrTooManyMessages
	}
	for _, id := range r.MessageIDs {
		if id <= 0 {
			return ErrInvalidMessageID
		}
	}
	return nil
}

// UniqueMessageIDs returns MessageIDs with duplicates removed, first
// occurrence wins.
func (r *NotificationRequest) UniqueMessageIDs() []int64 {
	seen := make(map[int64]struct{}, len(r.MessageIDs))
	out := make([]int64, 0, len(r.MessageIDs))
	for _, id := range r.MessageIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
