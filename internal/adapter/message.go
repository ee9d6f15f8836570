package adapter

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/rogersnm/skillmap/internal/id"
	"github.com/rogersnm/skillmap/internal/model"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMissingRequestID = errors.New("missing requestId")
)

// UnknownRequestID is echoed when a request carries no usable requestId.
const UnknownRequestID = "unknown"

// Payload holds the raw documents of a request. Which field is read depends
// on the command.
type Payload struct {
	Fallback json.RawMessage `json:"fallback,omitempty"`
	Tree     json.RawMessage `json:"tree,omitempty"`
	Status   json.RawMessage `json:"status,omitempty"`
}

type Request struct {
	Type      string  `json:"type"`
	TreeID    string  `json:"treeId,omitempty"`
	Payload   Payload `json:"payload"`
	RequestID string  `json:"requestId"`
}

// UnmarshalJSON never rejects a JSON object: fields of the wrong type are
// treated as absent so the request can still be answered.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      json.RawMessage `json:"type"`
		TreeID    json.RawMessage `json:"treeId"`
		Payload   json.RawMessage `json:"payload"`
		RequestID json.RawMessage `json:"requestId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Request{
		Type:      rawString(raw.Type),
		RequestID: rawString(raw.RequestID),
	}
	if !absent(raw.Payload) {
		var p Payload
		if err := json.Unmarshal(raw.Payload, &p); err == nil {
			r.Payload = p
		}
	}
	if !absent(raw.TreeID) {
		// an explicit non-null treeId wins even when unusable
		var s string
		if err := json.Unmarshal(raw.TreeID, &s); err == nil {
			r.TreeID = id.Sanitize(s)
		} else {
			r.TreeID = id.DefaultTreeID
		}
	}
	return nil
}

// ResolveTreeID picks the target id: the explicit treeId, else the id of
// payload.tree, else the id of payload.fallback. The result is sanitized.
func (r Request) ResolveTreeID() string {
	if r.TreeID != "" {
		return id.Sanitize(r.TreeID)
	}
	for _, doc := range []json.RawMessage{r.Payload.Tree, r.Payload.Fallback} {
		if v, ok := embeddedID(doc); ok {
			return id.Sanitize(v)
		}
	}
	return id.DefaultTreeID
}

type Response struct {
	OK        bool            `json:"ok"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"requestId"`
}

func protocolError(requestID string, err error) Response {
	if requestID == "" {
		requestID = UnknownRequestID
	}
	return Response{OK: false, Error: "invalid request: " + err.Error(), RequestID: requestID}
}

func absent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func rawString(raw json.RawMessage) string {
	var s string
	if absent(raw) || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// embeddedID reports the "id" member of a document. A present non-string id
// resolves to "" so the caller falls back to the default id.
func embeddedID(doc json.RawMessage) (string, bool) {
	if absent(doc) {
		return "", false
	}
	var obj struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(doc, &obj); err != nil || absent(obj.ID) {
		return "", false
	}
	return rawString(obj.ID), true
}

func treeDraft(raw json.RawMessage) *model.TreeDraft {
	if absent(raw) {
		return nil
	}
	var d model.TreeDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil
	}
	return &d
}

func statusDraft(raw json.RawMessage) *model.StatusDraft {
	if absent(raw) {
		return nil
	}
	var d model.StatusDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil
	}
	return &d
}

func valueOrZero[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
