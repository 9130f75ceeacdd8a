package platform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// RESTGateway implements Gateway against the platform bridge HTTP API. The
// bridge owns authentication and session state with the chat platform; this
// client only speaks its JSON surface.
type RESTGateway struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewRESTGateway constructs the bridge client.
func NewRESTGateway(baseURL, token string, logger *zap.Logger) *RESTGateway {
	return &RESTGateway{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (g *RESTGateway) CreateContainer(ctx context.Context, workspaceID, name string, acl []ACLEntry) (string, error) {
	payload := map[string]any{"workspace_id": workspaceID, "name": name, "acl": acl}
	var out struct {
		ID string `json:"id"`
	}
	if err := g.do(ctx, http.MethodPost, "/containers", payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (g *RESTGateway) ListContainers(ctx context.Context, workspaceID string) ([]Container, error) {
	var out struct {
		Containers []Container `json:"containers"`
	}
	path := "/containers?workspace_id=" + url.QueryEscape(workspaceID)
	if err := g.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Containers, nil
}

func (g *RESTGateway) CreateChannel(ctx context.Context, workspaceID, name, parentID string, acl []ACLEntry) (*Channel, error) {
	payload := map[string]any{
		"workspace_id": workspaceID,
		"name":         name,
		"parent_id":    parentID,
		"acl":          acl,
	}
	var out Channel
	if err := g.do(ctx, http.MethodPost, "/channels", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *RESTGateway) FetchChannel(ctx context.Context, channelID string) (*Channel, error) {
	var out Channel
	err := g.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID), nil, &out)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (g *RESTGateway) MoveChannel(ctx context.Context, channelID, parentID string) error {
	payload := map[string]any{"parent_id": parentID}
	return g.do(ctx, http.MethodPatch, "/channels/"+url.PathEscape(channelID)+"/parent", payload, nil)
}

func (g *RESTGateway) SetChannelACL(ctx context.Context, channelID string, entries []ACLEntry) error {
	payload := map[string]any{"acl": entries}
	return g.do(ctx, http.MethodPut, "/channels/"+url.PathEscape(channelID)+"/acl", payload, nil)
}

func (g *RESTGateway) RenameChannel(ctx context.Context, channelID, name string) error {
	payload := map[string]any{"name": name}
	return g.do(ctx, http.MethodPatch, "/channels/"+url.PathEscape(channelID)+"/name", payload, nil)
}

func (g *RESTGateway) DeleteChannel(ctx context.Context, channelID string) error {
	err := g.do(ctx, http.MethodDelete, "/channels/"+url.PathEscape(channelID), nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (g *RESTGateway) SendMessage(ctx context.Context, channelID, content string) (*MessageRef, error) {
	payload := map[string]any{"content": content}
	var out MessageRef
	if err := g.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/messages", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *RESTGateway) SendFile(ctx context.Context, channelID, fileName string, content []byte, message string) (*MessageRef, error) {
	payload := map[string]any{
		"file_name": fileName,
		"content":   base64.StdEncoding.EncodeToString(content),
		"message":   message,
	}
	var out MessageRef
	if err := g.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/files", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *RESTGateway) FetchMessages(ctx context.Context, channelID string, opts FetchMessagesOptions) ([]Message, error) {
	query := url.Values{}
	if opts.Before != "" {
		query.Set("before", opts.Before)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := g.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (g *RESTGateway) FetchRole(ctx context.Context, workspaceID, roleID string) (*Role, error) {
	var out Role
	path := fmt.Sprintf("/workspaces/%s/roles/%s", url.PathEscape(workspaceID), url.PathEscape(roleID))
	err := g.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (g *RESTGateway) FetchMember(ctx context.Context, workspaceID, memberID string) (*Member, error) {
	var out Member
	path := fmt.Sprintf("/workspaces/%s/members/%s", url.PathEscape(workspaceID), url.PathEscape(memberID))
	err := g.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

type bridgeError struct {
	Status  int
	Message string
}

func (e *bridgeError) Error() string {
	return fmt.Sprintf("bridge returned %d: %s", e.Status, e.Message)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	bridgeErr, ok := err.(*bridgeError)
	return ok && bridgeErr.Status == http.StatusNotFound
}

func (g *RESTGateway) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &bridgeError{Status: resp.StatusCode, Message: string(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
