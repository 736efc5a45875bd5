// Package mesh is a client for the store-and-forward mailbox that delivers
// the appointment feed. It covers the inbound half of the protocol:
// handshake, inbox listing, chunked retrieval and acknowledgement.
package mesh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"screeningcomms/internal/external"
	"screeningcomms/internal/security"
	"screeningcomms/internal/types"
)

const (
	authSchema   = "NHSMESH"
	acceptHeader = "application/vnd.mesh.v2+json"
	clientName   = "screeningcomms"
)

// Config identifies the mailbox and its credentials.
type Config struct {
	BaseURL   string
	Mailbox   string
	Password  string
	SharedKey string
}

// Message is a retrieved inbox message. Body is already inflated.
type Message struct {
	ID       string
	Filename string
	Body     []byte
}

// Client talks to one mailbox. It is not safe to share one Client across
// sessions that expect independent nonce counters.
type Client struct {
	base   *external.BaseClient
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	nonceCount atomic.Int64
}

// NewClient returns a mailbox client. base should wrap an http.Client with
// the mutual-TLS transport from security.NewMTLSClient.
func NewClient(base *external.BaseClient, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{base: base, cfg: cfg, logger: logger, now: time.Now}
}

// authorization builds the NHSMESH token:
//
//	NHSMESH mailbox:nonce:count:timestamp:hmac
//
// where hmac is HMAC-SHA256(shared_key, "mailbox:nonce:count:password:timestamp").
func (c *Client) authorization() string {
	nonce := uuid.NewString()
	count := strconv.FormatInt(c.nonceCount.Add(1)-1, 10)
	timestamp := c.now().UTC().Format("200601021504")

	signed := strings.Join([]string{c.cfg.Mailbox, nonce, count, c.cfg.Password, timestamp}, ":")
	mac := security.Sign(c.cfg.SharedKey, []byte(signed))

	return fmt.Sprintf("%s %s:%s:%s:%s:%s", authSchema, c.cfg.Mailbox, nonce, count, timestamp, mac)
}

func (c *Client) mailboxURL(parts ...string) string {
	segs := []string{c.cfg.BaseURL, "messageexchange", url.PathEscape(c.cfg.Mailbox)}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/")
}

func (c *Client) newRequest(ctx context.Context, method, target string, body []byte) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("mesh: failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Mex-ClientVersion", clientName)
	req.Header.Set("Mex-OSName", "linux")
	return req, nil
}

// authorize sets a fresh Authorization header. The mailbox rejects a
// reused nonce, so it runs before every attempt.
func (c *Client) authorize(req *http.Request) error {
	req.Header.Set("Authorization", c.authorization())
	return nil
}

// do executes req and returns the response when its status is 2xx.
func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.base.DoEach(req, c.authorize)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamMailbox,
			fmt.Sprintf("mesh %s returned %d", op, resp.StatusCode), nil,
			map[string]any{"body": string(body)})
	}
	return resp, nil
}

// Handshake validates the mailbox credentials. It is called once at the
// start of every session.
func (c *Client) Handshake(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, c.mailboxURL(), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req, "handshake")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ListMessages returns the ids of the messages waiting in the inbox.
func (c *Client) ListMessages(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.mailboxURL("inbox"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, "list inbox")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Messages []string `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMailbox, "failed to decode inbox listing", err)
	}
	return out.Messages, nil
}

// RetrieveMessage downloads a message and every remaining chunk, inflating
// gzip-encoded parts.
func (c *Client) RetrieveMessage(ctx context.Context, id string) (*Message, error) {
	first, err := c.fetchChunk(ctx, id, 1)
	if err != nil {
		return nil, err
	}
	msg := &Message{ID: id, Filename: first.filename, Body: first.body}

	for n := 2; n <= first.total; n++ {
		chunk, err := c.fetchChunk(ctx, id, n)
		if err != nil {
			return nil, err
		}
		msg.Body = append(msg.Body, chunk.body...)
	}
	if msg.Filename == "" {
		msg.Filename = id + ".dat"
	}
	return msg, nil
}

type chunk struct {
	filename string
	total    int
	body     []byte
}

func (c *Client) fetchChunk(ctx context.Context, id string, n int) (*chunk, error) {
	target := c.mailboxURL("inbox", id)
	if n > 1 {
		target = c.mailboxURL("inbox", id, strconv.Itoa(n))
	}
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.do(req, "retrieve")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamMailbox, "failed to open gzip body", err)
		}
		defer zr.Close()
		body = zr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMailbox, "failed to read message body", err)
	}

	return &chunk{
		filename: resp.Header.Get("Mex-Filename"),
		total:    parseChunkTotal(resp.Header.Get("Mex-Chunk-Range")),
		body:     data,
	}, nil
}

// parseChunkTotal reads the "n:total" chunk range header. A missing or
// malformed value means a single chunk.
func parseChunkTotal(v string) int {
	_, after, ok := strings.Cut(v, ":")
	if !ok {
		return 1
	}
	total, err := strconv.Atoi(strings.TrimSpace(after))
	if err != nil || total < 1 {
		return 1
	}
	return total
}

// Acknowledge removes the message from the inbox.
func (c *Client) Acknowledge(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodPut, c.mailboxURL("inbox", id, "status", "acknowledged"), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req, "acknowledge")
	if err != nil {
		return err
	}
	resp.Body.Close()
	c.logger.InfoContext(ctx, "mesh message acknowledged", "message_id", id)
	return nil
}
