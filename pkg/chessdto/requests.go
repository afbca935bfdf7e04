package chessdto

type CreateSessionRequest struct {
	OwnerID string `json:"ownerId"`
}

type JoinRequest struct {
	PlayerID string `json:"playerId"`
}

type MoveRequest struct {
	PlayerID string `json:"playerId"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type MoveResponse struct {
	Move    Move         `json:"move"`
	Session SessionState `json:"session"`
}

type AutomationRequest struct {
	Color   string `json:"color"`
	Enabled bool   `json:"enabled"`
}

type AutomationState struct {
	Color     string       `json:"color"`
	Enabled   bool         `json:"enabled"`
	LastError *DomainError `json:"lastError,omitempty"`
}

type ErrorResponse struct {
	Error DomainError `json:"error"`
}
