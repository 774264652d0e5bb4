package models

// Requests for the pipeline HTTP endpoints.

type Ohlc1mRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}
