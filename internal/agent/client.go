// Package agent is the JSON-over-HTTP client for the data-plane agent: the
// process (outside this module) that actually programs switches. Every
// call is synchronous with a bounded timeout; a non-2xx response or a
// transport error is surfaced as a typed apperror so the Allocator and
// Controller Adapter can tell "agent said no" from "agent unreachable".
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"

	"slicectl/pkg/apperror"
	"slicectl/pkg/interceptors"
)

// Config controls how the client reaches the agent.
type Config struct {
	// BaseURL is the agent's address, e.g. "http://localhost:5000".
	BaseURL string
	// Timeout bounds every individual call. Defaults to 2s if zero.
	Timeout time.Duration
}

// Client talks to one data-plane agent instance.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// New constructs a Client from cfg, applying the spec's default 2s timeout.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	transport := &http.Transport{}
	// Most agents are plain HTTP on the local network, so this only takes
	// effect when BaseURL points at a TLS-terminating proxy in front of
	// one; ConfigureTransport is a no-op otherwise.
	_ = http2.ConfigureTransport(transport)

	return &Client{
		baseURL: cfg.BaseURL,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout, Transport: transport},
	}
}

// FlowCommand is the body of POST /flow.
type FlowCommand struct {
	Command       string   `json:"command"` // "add", "delete" or "query"
	Path          []string `json:"path"`
	TCPPort       int      `json:"tcp_port"`
	Rate          int      `json:"rate"`
	Bidirectional bool     `json:"bidirectional"`
}

type flowResponse struct {
	Status  string         `json:"status"`
	OutPort map[string]int `json:"out_ports"`
	InPort  map[string]int `json:"in_ports"`
}

// InstallFlow asks the agent to program the forward (and reverse, if
// Bidirectional) flow rules for a path and returns the physical port
// mapping learned while doing so.
func (c *Client) InstallFlow(ctx context.Context, cmd FlowCommand) (outPorts, inPorts map[string]int, err error) {
	cmd.Command = "add"
	var resp flowResponse
	if err := c.postJSON(ctx, "/flow", cmd, &resp); err != nil {
		return nil, nil, err
	}
	return resp.OutPort, resp.InPort, nil
}

// DeleteFlow asks the agent to remove the rules for a path.
func (c *Client) DeleteFlow(ctx context.Context, cmd FlowCommand) error {
	cmd.Command = "delete"
	var resp flowResponse
	return c.postJSON(ctx, "/flow", cmd, &resp)
}

// QueryPorts re-derives the physical out/in port mapping for an already
// installed (or about-to-be-installed) path without mutating anything,
// used by the Controller Adapter when reconciling after a restart. It
// reuses the /flow endpoint with command "query" rather than a dedicated
// route, since the agent RPC surface is fixed at three endpoints (§6).
func (c *Client) QueryPorts(ctx context.Context, path []string) (outPorts, inPorts map[string]int, err error) {
	cmd := FlowCommand{Command: "query", Path: path}
	var resp flowResponse
	if err := c.postJSON(ctx, "/flow", cmd, &resp); err != nil {
		return nil, nil, err
	}
	return resp.OutPort, resp.InPort, nil
}

// SetLinkBandwidth updates the shaper on both ends of the (u, v) link.
func (c *Client) SetLinkBandwidth(ctx context.Context, u, v string, bwMbps int) error {
	body := struct {
		Node1 string `json:"node1"`
		Node2 string `json:"node2"`
		BW    int    `json:"bw"`
	}{Node1: u, Node2: v, BW: bwMbps}
	var resp struct {
		Status string `json:"status"`
	}
	return c.postJSON(ctx, "/set_bw", body, &resp)
}

// StaticARP installs a static ARP entry for ip/mac on host, via the agent's
// generic exec endpoint.
func (c *Client) StaticARP(ctx context.Context, host, ip, mac string) error {
	body := struct {
		Cmd string `json:"cmd"`
	}{Cmd: fmt.Sprintf("%s arp -s %s %s", host, ip, mac)}
	var resp struct {
		Result string `json:"result"`
	}
	return c.postJSON(ctx, "/exec", body, &resp)
}

func (c *Client) postJSON(ctx context.Context, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to encode agent request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to build agent request")
	}
	req.Header.Set("Content-Type", "application/json")

	correlationID := interceptors.RequestIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	req.Header.Set("X-Correlation-Id", correlationID)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeAgentUnavailable, fmt.Sprintf("agent request to %s failed", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperror.New(apperror.CodeAgentRejected,
			fmt.Sprintf("agent returned status %d for %s", resp.StatusCode, path))
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return apperror.Wrap(err, apperror.CodeAgentUnavailable, fmt.Sprintf("failed to decode agent response from %s", path))
		}
	}
	return nil
}
