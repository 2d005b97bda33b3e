package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/JRI98/smartchat/internal/identity"
	"github.com/JRI98/smartchat/internal/smartmessage"
	"github.com/JRI98/smartchat/internal/thread"
	"github.com/JRI98/smartchat/internal/wallet"
)

var ErrUnexpectedStatus = errors.New("unexpected status code")

// StatusError is returned when the relay answers with a status other than the
// one the call expects. It matches ErrUnexpectedStatus.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrUnexpectedStatus, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// Client talks to the relay on behalf of a single wallet.
type Client struct {
	baseURL    string
	wallet     *wallet.Wallet
	httpClient *http.Client
}

func New(baseURL string, w *wallet.Wallet) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		wallet:     w,
		httpClient: http.DefaultClient,
	}
}

func (client *Client) do(ctx context.Context, method string, path string, data any, expected int, out any) error {
	var body []byte
	if data != nil {
		var err error
		body, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}

	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if data != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Authorization", client.wallet.Authorize(method, request.URL.RequestURI(), body))

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode != expected {
		return &StatusError{Code: response.StatusCode, Body: strings.TrimSpace(string(responseBody))}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response body: %w", err)
	}

	return nil
}

func threadPath(address identity.Identity) string {
	return "/api/threads/" + url.PathEscape(address.String())
}

type CreateThreadData struct {
	OtherMembers []identity.Identity `json:"other_members"`
	Encrypted    bool                `json:"encrypted"`
}

func (client *Client) CreateThread(ctx context.Context, data CreateThreadData) (thread.Thread, error) {
	var created thread.Thread
	err := client.do(ctx, http.MethodPost, "/api/threads", data, http.StatusCreated, &created)
	return created, err
}

type Summary struct {
	Thread        thread.Thread   `json:"thread"`
	LatestMessage *thread.Message `json:"latest_message,omitempty"`
}

// ListThreads returns the wallet's threads, most recently active first.
func (client *Client) ListThreads(ctx context.Context) ([]Summary, error) {
	var summaries []Summary
	err := client.do(ctx, http.MethodGet, "/api/threads", nil, http.StatusOK, &summaries)
	return summaries, err
}

func (client *Client) GetThread(ctx context.Context, address identity.Identity) (thread.Thread, error) {
	var t thread.Thread
	err := client.do(ctx, http.MethodGet, threadPath(address), nil, http.StatusOK, &t)
	return t, err
}

func (client *Client) DeleteThread(ctx context.Context, address identity.Identity) error {
	return client.do(ctx, http.MethodDelete, threadPath(address), nil, http.StatusNoContent, nil)
}

// Messages returns up to limit messages, newest first. A zero limit uses the
// relay default.
func (client *Client) Messages(ctx context.Context, address identity.Identity, limit int) ([]thread.Message, error) {
	path := threadPath(address) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var messages []thread.Message
	err := client.do(ctx, http.MethodGet, path, nil, http.StatusOK, &messages)
	return messages, err
}

type SendData struct {
	Text       string `json:"text,omitempty"`
	Ciphertext []byte `json:"ciphertext,omitempty"`
}

func (client *Client) Send(ctx context.Context, address identity.Identity, data SendData) error {
	return client.do(ctx, http.MethodPost, threadPath(address)+"/messages", data, http.StatusNoContent, nil)
}

func (client *Client) Classify(ctx context.Context, text string) (smartmessage.ParsedMessage, error) {
	var parsed smartmessage.ParsedMessage
	err := client.do(ctx, http.MethodPost, "/api/classify", map[string]string{"text": text}, http.StatusOK, &parsed)
	return parsed, err
}
