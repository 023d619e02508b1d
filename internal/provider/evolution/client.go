package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnauthorized means the provider rejected the api key. Never retried
	// automatically; the tenant has to reconfigure credentials.
	ErrUnauthorized = errors.New("evolution: invalid api key")
	// ErrNameConflict means the requested instance name is already taken at
	// the provider. Recoverable by regenerating a unique name.
	ErrNameConflict = errors.New("evolution: instance name already in use")
)

// ConnectionState is the provider-reported session state. Transport failures
// are folded into Connected=false / State="error" because this is consumed by
// a polling loop that must not crash on transient errors.
type ConnectionState struct {
	Connected bool
	State     string
}

type CreateInstanceResult struct {
	ProviderInstanceID string
	PairingCodeImage   string
	CredentialToken    string
}

type Chat struct {
	RemoteID     string `json:"remoteJid"`
	LastActivity int64  `json:"lastMsgTimestamp"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for one Evolution API deployment. Every call
// carries the api key explicitly because instance-scoped operations use the
// credential token issued at instance creation, not the global key.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// CreateInstance provisions a new provider instance with QR pairing enabled.
func (c *Client) CreateInstance(ctx context.Context, apiKey, instanceName string) (*CreateInstanceResult, error) {
	payload := map[string]any{
		"instanceName": instanceName,
		"qrcode":       true,
		"integration":  "WHATSAPP-BAILEYS",
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/instance/create", apiKey, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrNameConflict
	case resp.StatusCode >= http.StatusBadRequest:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("evolution: create instance failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Instance struct {
			InstanceName string `json:"instanceName"`
			InstanceID   string `json:"instanceId"`
		} `json:"instance"`
		Hash struct {
			APIKey string `json:"apikey"`
		} `json:"hash"`
		QRCode struct {
			Base64 string `json:"base64"`
		} `json:"qrcode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("evolution: decode create response: %w", err)
	}

	providerID := parsed.Instance.InstanceID
	if providerID == "" {
		providerID = parsed.Instance.InstanceName
	}

	return &CreateInstanceResult{
		ProviderInstanceID: providerID,
		PairingCodeImage:   parsed.QRCode.Base64,
		CredentialToken:    parsed.Hash.APIKey,
	}, nil
}

// ConnectionState polls the provider session state. Any transport or decode
// failure maps to a disconnected "error" state instead of an error return.
func (c *Client) ConnectionState(ctx context.Context, apiKey, providerInstanceID string) ConnectionState {
	resp, err := c.doRequest(ctx, http.MethodGet, "/instance/connectionState/"+providerInstanceID, apiKey, nil)
	if err != nil {
		c.logger.Warn("connection state check failed", "instance", providerInstanceID, "error", err.Error())
		return ConnectionState{Connected: false, State: "error"}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return ConnectionState{Connected: false, State: "error"}
	}

	var parsed struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ConnectionState{Connected: false, State: "error"}
	}

	return ConnectionState{
		Connected: parsed.Instance.State == "open",
		State:     parsed.Instance.State,
	}
}

// PairingCode fetches the current QR image for an instance, or "" when the
// provider has none pending.
func (c *Client) PairingCode(ctx context.Context, apiKey, providerInstanceID string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/instance/connect/"+providerInstanceID, apiKey, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("evolution: get pairing code failed: status=%d", resp.StatusCode)
	}

	var parsed struct {
		Base64 string `json:"base64"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("evolution: decode pairing response: %w", err)
	}

	return parsed.Base64, nil
}

// SendText sends a plain text message. Non-2xx responses come back as a
// false success, not an error; callers decide whether that is fatal.
func (c *Client) SendText(ctx context.Context, apiKey, providerInstanceID, to, body string) bool {
	payload := map[string]any{
		"number": to,
		"text":   body,
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/message/sendText/"+providerInstanceID, apiKey, payload)
	if err != nil {
		c.logger.Error("send text request failed", "instance", providerInstanceID, "error", err.Error())
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Error("send text rejected by provider",
			"instance", providerInstanceID,
			"statusCode", resp.StatusCode,
			"body", string(respBody))
		return false
	}

	return true
}

// DeleteInstance removes the provider instance. Used by the reconnect
// recovery sequence and by explicit tenant disconnects.
func (c *Client) DeleteInstance(ctx context.Context, apiKey, providerInstanceID string) bool {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/instance/delete/"+providerInstanceID, apiKey, nil)
	if err != nil {
		c.logger.Error("delete instance request failed", "instance", providerInstanceID, "error", err.Error())
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusMultipleChoices
}

// ListChats returns the provider's chat list for an instance.
func (c *Client) ListChats(ctx context.Context, apiKey, providerInstanceID string) ([]Chat, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/chat/findChats/"+providerInstanceID, apiKey, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("evolution: list chats failed: status=%d", resp.StatusCode)
	}

	var chats []Chat
	if err := json.NewDecoder(resp.Body).Decode(&chats); err != nil {
		return nil, fmt.Errorf("evolution: decode chats response: %w", err)
	}

	return chats, nil
}

// ListMessages returns the provider-native message records for one chat. The
// records are kept opaque; normalization happens only where the dashboard
// needs it.
func (c *Client) ListMessages(ctx context.Context, apiKey, providerInstanceID, remoteID string) (json.RawMessage, error) {
	payload := map[string]any{
		"where": map[string]any{
			"key": map[string]any{
				"remoteJid": remoteID,
			},
		},
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/chat/findMessages/"+providerInstanceID, apiKey, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("evolution: list messages failed: status=%d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("evolution: read messages response: %w", err)
	}

	return json.RawMessage(raw), nil
}

func (c *Client) doRequest(ctx context.Context, method, path, apiKey string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonPayload, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(jsonPayload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}
