package models

// Requests for the sync control endpoints.

type InstrumentRequest struct {
	Instrument string `json:"instrument" validate:"required,max=32"`
}

type TimeframeRequest struct {
	Timeframe string `json:"timeframe" validate:"required,oneof=m1 m5 m15 m30 H1 H4 D1"`
}

type WeeksRequest struct {
	Start string `query:"start" json:"start"`
	End   string `query:"end" json:"end"`
}

type SelectWeekRequest struct {
	Key string `json:"key" validate:"required,weekkey"`
}

type SelectRangeRequest struct {
	Start string `json:"start" validate:"required,caldate"`
	End   string `json:"end" validate:"required,caldate"`
}

type DownloadBody struct {
	Timeframes []string `json:"timeframes" validate:"omitempty,max=7,dive,oneof=m1 m5 m15 m30 H1 H4 D1"`
}

type PreviewRequest struct {
	Start string `json:"start" validate:"omitempty,caldate"`
	End   string `json:"end" validate:"omitempty,caldate"`
}

type ViewportRequest struct {
	From int64 `json:"from" validate:"gt=0"`
	To   int64 `json:"to" validate:"gtefield=From"`
}

type ViewportResponse struct {
	Triggered bool `json:"triggered"`
}
