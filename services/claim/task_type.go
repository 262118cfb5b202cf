package claim

const (
	ClaimNotify = "claim:notify"
)

type ClaimNotifyPayload struct {
	ClaimID string `json:"claim_id"`
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
}
