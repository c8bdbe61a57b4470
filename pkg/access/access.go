// Package access implements the client-side half of the analytics
// pipeline: an in-process batching queue ("Access Pool") that other HTTP
// services install as Gin middleware, plus the Access record it collects.
//
// This replaces the tower Layer/Service pair in
// _examples/original_source/gateway-api/src/analytics.rs with a Gin
// middleware of equivalent behavior.
package access

import (
	"encoding/json"
	"time"
)

// Access is one observed inbound HTTP request. It is immutable once
// constructed.
type Access struct {
	Date      time.Time `json:"-"`
	PeerAddr  *string   `json:"peer_addr"`
	UserAgent *string   `json:"user_agent"`
	Referer   *string   `json:"referer"`
	Method    string    `json:"method"`
	URI       string    `json:"uri"`
}

// wireAccess is the JSON shape on the wire (§6): date is a Unix second
// integer, not Go's default RFC3339 string.
type wireAccess struct {
	Date      int64   `json:"date"`
	PeerAddr  *string `json:"peer_addr"`
	UserAgent *string `json:"user_agent"`
	Referer   *string `json:"referer"`
	Method    string  `json:"method"`
	URI       string  `json:"uri"`
}

// MarshalJSON encodes Access per the wire format in spec.md §6.
func (a Access) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireAccess{
		Date:      a.Date.Unix(),
		PeerAddr:  a.PeerAddr,
		UserAgent: a.UserAgent,
		Referer:   a.Referer,
		Method:    a.Method,
		URI:       a.URI,
	})
}

// UnmarshalJSON decodes Access per the wire format in spec.md §6. It is
// used server-side when the ingestion endpoint reads a batch.
func (a *Access) UnmarshalJSON(data []byte) error {
	var w wireAccess
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a.Date = time.Unix(w.Date, 0).UTC()
	a.PeerAddr = w.PeerAddr
	a.UserAgent = w.UserAgent
	a.Referer = w.Referer
	a.Method = w.Method
	a.URI = w.URI
	return nil
}
