package transfer

type CreditCheckRequest struct {
	Amount float64 `json:"amount"`
}

type CreditCheckResponse struct {
	Sufficient bool    `json:"sufficient"`
	Available  float64 `json:"available"`
}

type CreditDeductRequest struct {
	Amount    float64 `json:"amount"`
	Operation string  `json:"operation"`
}

type CreditAddRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

type CreditBalanceResponse struct {
	Balance float64 `json:"balance"`
}

type CrossPostRequest struct {
	Content string   `json:"content"`
	Media   []string `json:"media"`
	Mode    string   `json:"mode"`
}

type CrossPostResponse struct {
	Status     string `json:"status"`
	ExternalID string `json:"external_id,omitempty"`
}
