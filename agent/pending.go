package agent

// PendingOutput is returned as Final.Output when a run paused on an
// approval request. Small and safe to serialize: no raw tool params.
type PendingOutput struct {
	Status            string `json:"status"`
	ApprovalRequestID string `json:"approval_request_id"`
	Tool              string `json:"tool"`
	Message           string `json:"message"`
}
