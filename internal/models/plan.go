package models

// Plan describes a purchasable subscription tier. The engine does not
// interpret plans beyond validating the reference and handing the word
// allowance to the credit hook on success.
type Plan struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Words     int64  `json:"words"`
}
