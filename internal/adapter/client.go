package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/rogersnm/skillmap/internal/service"
)

const DefaultTimeout = 5 * time.Second

// Caller delivers a request to an adapter and returns its reply.
type Caller interface {
	Call(ctx context.Context, req Request) (Response, error)
}

// QueueCaller calls an adapter serving the same process.
type QueueCaller struct {
	Queue *Queue
}

func (c QueueCaller) Call(ctx context.Context, req Request) (Response, error) {
	return c.Queue.Send(ctx, req)
}

// HTTPCaller posts requests to the /rpc endpoint of a remote adapter.
type HTTPCaller struct {
	BaseURL string
	Client  *http.Client
}

func (c HTTPCaller) Call(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/rpc", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decoding response (HTTP %d): %w", httpResp.StatusCode, err)
	}
	return resp, nil
}

// RemoteError is an {ok:false} reply.
type RemoteError struct {
	Command Command
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// Client issues correlated requests and decodes their replies.
type Client struct {
	caller  Caller
	timeout time.Duration
	newID   func() string
}

func NewClient(caller Caller, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{caller: caller, timeout: timeout, newID: uuid.NewString}
}

// Do sends cmd and decodes the reply data into out (when non-nil). Giving up
// on a timeout does not undo a mutation already dispatched.
func (c *Client) Do(ctx context.Context, cmd Command, treeID string, payload Payload, out any) error {
	req := Request{
		Type:      cmd.String(),
		TreeID:    treeID,
		Payload:   payload,
		RequestID: c.newID(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.caller.Call(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	if resp.RequestID != req.RequestID {
		return fmt.Errorf("%s: reply for %q, expected %q", cmd, resp.RequestID, req.RequestID)
	}
	if !resp.OK {
		return &RemoteError{Command: cmd, Message: resp.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%s: decoding reply: %w", cmd, err)
	}
	return nil
}

func encodeDoc(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (c *Client) GetTree(ctx context.Context, treeID string, fallback *model.SkillTree) (model.SkillTree, error) {
	return c.treeCall(ctx, CommandGetTree, treeID, fallback, true)
}

func (c *Client) ExportTree(ctx context.Context, treeID string, fallback *model.SkillTree) (model.SkillTree, error) {
	return c.treeCall(ctx, CommandExport, treeID, fallback, true)
}

func (c *Client) SaveTree(ctx context.Context, tree model.SkillTree) (model.SkillTree, error) {
	return c.treeCall(ctx, CommandSaveTree, tree.ID, &tree, false)
}

func (c *Client) ImportTree(ctx context.Context, tree model.SkillTree) (model.SkillTree, error) {
	return c.treeCall(ctx, CommandImport, tree.ID, &tree, false)
}

func (c *Client) treeCall(ctx context.Context, cmd Command, treeID string, doc *model.SkillTree, asFallback bool) (model.SkillTree, error) {
	var payload Payload
	if doc != nil {
		raw, err := encodeDoc(doc)
		if err != nil {
			return model.SkillTree{}, err
		}
		if asFallback {
			payload.Fallback = raw
		} else {
			payload.Tree = raw
		}
	}
	var tree model.SkillTree
	err := c.Do(ctx, cmd, treeID, payload, &tree)
	return tree, err
}

func (c *Client) DeleteTree(ctx context.Context, treeID string) error {
	var result service.DeleteResult
	if err := c.Do(ctx, CommandDeleteTree, treeID, Payload{}, &result); err != nil {
		return err
	}
	if !result.OK {
		return &RemoteError{Command: CommandDeleteTree, Message: "delete not acknowledged"}
	}
	return nil
}

func (c *Client) ListTrees(ctx context.Context) ([]model.SkillTreeSummary, error) {
	var items []model.SkillTreeSummary
	err := c.Do(ctx, CommandListTrees, "", Payload{}, &items)
	return items, err
}

func (c *Client) GetStatus(ctx context.Context, treeID string) (model.SkillStatus, error) {
	var status model.SkillStatus
	err := c.Do(ctx, CommandGetStatus, treeID, Payload{}, &status)
	return status, err
}

func (c *Client) SaveStatus(ctx context.Context, status model.SkillStatus) (model.SkillStatus, error) {
	raw, err := encodeDoc(status)
	if err != nil {
		return model.SkillStatus{}, err
	}
	var saved model.SkillStatus
	err = c.Do(ctx, CommandSaveStatus, status.TreeID, Payload{Status: raw}, &saved)
	return saved, err
}
