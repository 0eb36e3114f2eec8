package query

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/wortwatch/wortwatch/internal/storage"
)

// Page tokens are opaque to callers: URL-safe base64 over a small JSON
// envelope carrying the boundary position, the direction of travel,
// and the batch filter the token was minted under. A token presented
// with a different batch filter is rejected rather than applied to the
// wrong result set.
//
// Tokens are versioned so the format can change without breaking
// clients mid-flight.

const (
	tokenVersion = 1

	tokenDirForward  = "fwd"
	tokenDirBackward = "bwd"
)

type pageToken struct {
	Version   int    `json:"v"`
	Direction string `json:"dir"`
	Timestamp string `json:"ts"`
	ReadingID string `json:"id"`
	Batch     string `json:"batch,omitempty"`
}

// encodeToken mints the continuation token for the given boundary
// position and direction of travel.
func encodeToken(cur storage.Cursor, dir storage.Direction, batch string) string {
	direction := tokenDirForward
	if dir == storage.DirectionBackward {
		direction = tokenDirBackward
	}

	payload, err := json.Marshal(pageToken{
		Version:   tokenVersion,
		Direction: direction,
		Timestamp: cur.Timestamp.UTC().Format(time.RFC3339Nano),
		ReadingID: cur.ReadingID,
		Batch:     batch,
	})
	if err != nil {
		// A pageToken of plain strings cannot fail to marshal.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(payload)
}

// decodeToken validates raw against the requesting batch filter and
// returns the position and direction it carries. All failures surface
// as *storage.InvalidPageTokenError; a bad token is never silently
// treated as the first page.
func decodeToken(raw, batch string) (storage.Cursor, storage.Direction, error) {
	payload, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return storage.Cursor{}, 0, &storage.InvalidPageTokenError{Reason: "not base64"}
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	var tok pageToken
	if err := dec.Decode(&tok); err != nil {
		return storage.Cursor{}, 0, &storage.InvalidPageTokenError{Reason: "not a page token"}
	}

	if tok.Version != tokenVersion {
		return storage.Cursor{}, 0, &storage.InvalidPageTokenError{Reason: "unsupported token version"}
	}

	var dir storage.Direction
	switch tok.Direction {
	case tokenDirForward:
		dir = storage.DirectionForward
	case tokenDirBackward:
		dir = storage.DirectionBackward
	default:
		return storage.Cursor{}, 0, &storage.InvalidPageTokenError{Reason: "unknown direction"}
	}

	if tok.ReadingID == "" {
		return storage.Cursor{}, 0, &storage.InvalidPageTokenError{Reason: "missing position"}
	}
	ts, err := time.Parse(time.RFC3339Nano, tok.Timestamp)
	if err != nil {
		return storage.Cursor{}, 0, &storage.InvalidPageTokenError{Reason: "invalid position"}
	}

	if tok.Batch != batch {
		return storage.Cursor{}, 0, &storage.InvalidPageTokenError{Reason: "token does not match the requested batch"}
	}

	return storage.Cursor{Timestamp: ts.UTC(), ReadingID: tok.ReadingID}, dir, nil
}
