package models

// Requests for HTTP endpoints. Defined in domain for consistency and reuse.

type AnalyzeRequest struct {
	Ticker    string `json:"ticker" validate:"required,ticker"`
	AccountID string `json:"account_id" validate:"required,max=64"`
}

type AnalyzeMultiRequest struct {
	Tickers   []string `json:"tickers" validate:"required,min=1,max=20,dive,required,ticker"`
	AccountID string   `json:"account_id" validate:"required,max=64"`
}

type ScanAndAnalyzeRequest struct {
	AccountID     string   `json:"account_id" validate:"required,max=64"`
	ScanType      string   `json:"scan_type" default:"technical" validate:"oneof=technical fundamental"`
	Symbols       []string `json:"symbols" validate:"max=100,dive,ticker"`
	MaxCandidates int      `json:"max_candidates" default:"5" validate:"gte=1,lte=20"`
}

type RollbackRequest struct {
	SnapshotID string `json:"snapshot_id" validate:"required,max=64"`
}

type SnapshotListRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}
