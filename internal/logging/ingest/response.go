package ingest

import (
	"errors"

	"github.com/goccy/go-json"
)

// Response is the server's answer to an accepted batch.
type Response struct {
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
	BatchID  string `json:"batch_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

type wireResponse struct {
	Status   *string `json:"status"`
	Accepted int     `json:"accepted"`
	Rejected int     `json:"rejected"`
	BatchID  string  `json:"batch_id"`
	Error    string  `json:"error"`
}

func parseResponse(body []byte) (Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return Response{}, &ParseError{Err: err}
	}
	if wire.Status == nil {
		return Response{}, &ParseError{Err: errors.New("missing status field")}
	}

	return Response{
		Status:   *wire.Status,
		Accepted: wire.Accepted,
		Rejected: wire.Rejected,
		BatchID:  wire.BatchID,
		Error:    wire.Error,
	}, nil
}
