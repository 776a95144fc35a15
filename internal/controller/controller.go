// Package controller implements the Controller Adapter: it turns a Tunnel
// into per-switch Flow Programs and drives the Absent -> Pending ->
// Installed -> Pending-Delete -> Absent state machine against the
// data-plane agent, retrying transient failures.
package controller

import (
	"context"
	"fmt"
	"time"

	"slicectl/internal/agent"
	"slicectl/internal/domain"
	"slicectl/pkg/apperror"
	"slicectl/pkg/logger"
)

const (
	installRetries = 3
	retryBackoff   = 500 * time.Millisecond
)

// Agent is the subset of the data-plane agent client the adapter needs.
// Defined here (rather than depending on *agent.Client directly) so tests
// can substitute a fake.
type Agent interface {
	InstallFlow(ctx context.Context, cmd agent.FlowCommand) (outPorts, inPorts map[string]int, err error)
	DeleteFlow(ctx context.Context, cmd agent.FlowCommand) error
	QueryPorts(ctx context.Context, path []string) (outPorts, inPorts map[string]int, err error)
	SetLinkBandwidth(ctx context.Context, u, v string, bwMbps int) error
	StaticARP(ctx context.Context, host, ip, mac string) error
}

// Adapter drives tunnel install/remove against one Agent.
type Adapter struct {
	agent Agent
}

// New constructs an Adapter over the given agent client.
func New(a Agent) *Adapter {
	return &Adapter{agent: a}
}

// Install programs a tunnel end to end: learns port mappings via
// QueryPorts, installs the flow rules (forward, and reverse if
// bidirectional) on every interior switch, shapes every traversed link,
// and installs static ARP entries on both endpoint hosts. It mutates t in
// place with the learned OutPorts/InPorts. Transient agent errors are
// attempted up to installRetries times in total with retryBackoff between attempts;
// a permanent failure (AgentRejected) is not retried.
func (a *Adapter) Install(ctx context.Context, t *domain.Tunnel) error {
	var outPorts, inPorts map[string]int
	err := a.withRetry(ctx, func(ctx context.Context) error {
		op, ip, err := a.agent.QueryPorts(ctx, t.Path)
		if err != nil {
			return err
		}
		outPorts, inPorts = op, ip
		return nil
	})
	if err != nil {
		return fmt.Errorf("query_ports: %w", err)
	}
	t.OutPorts, t.InPorts = outPorts, inPorts

	cmd := agent.FlowCommand{
		Path:          t.Path,
		TCPPort:       t.TCPPort,
		Rate:          t.Rate,
		Bidirectional: t.Bidirectional,
	}
	if err := a.withRetry(ctx, func(ctx context.Context) error {
		_, _, err := a.agent.InstallFlow(ctx, cmd)
		return err
	}); err != nil {
		return fmt.Errorf("install_flow: %w", err)
	}

	for _, link := range t.Links {
		if err := a.withRetry(ctx, func(ctx context.Context) error {
			return a.agent.SetLinkBandwidth(ctx, link.U, link.V, t.Rate)
		}); err != nil {
			return fmt.Errorf("set_link_bw %s: %w", link, err)
		}
	}

	if err := a.withRetry(ctx, func(ctx context.Context) error {
		return a.agent.StaticARP(ctx, t.Src(), t.DstIP, t.DstMAC)
	}); err != nil {
		return fmt.Errorf("static_arp on %s: %w", t.Src(), err)
	}
	if err := a.withRetry(ctx, func(ctx context.Context) error {
		return a.agent.StaticARP(ctx, t.Dst(), t.SrcIP, t.SrcMAC)
	}); err != nil {
		return fmt.Errorf("static_arp on %s: %w", t.Dst(), err)
	}

	return nil
}

// Remove deletes a tunnel's flow rules. Idempotent: the agent is expected
// to treat deleting an already-absent program as a success.
func (a *Adapter) Remove(ctx context.Context, t *domain.Tunnel) error {
	cmd := agent.FlowCommand{
		Path:          t.Path,
		TCPPort:       t.TCPPort,
		Rate:          t.Rate,
		Bidirectional: t.Bidirectional,
	}
	if err := a.withRetry(ctx, func(ctx context.Context) error {
		return a.agent.DeleteFlow(ctx, cmd)
	}); err != nil {
		return fmt.Errorf("delete_flow: %w", err)
	}
	return nil
}

// FlowPrograms exposes the per-switch programs Install would generate,
// used by the Reconciler for logging/diffing without calling the agent.
func FlowPrograms(t *domain.Tunnel) []domain.FlowProgram {
	return domain.NewFlowPrograms(t)
}

// withRetry runs fn up to installRetries times, sleeping retryBackoff
// between attempts, stopping early on a non-transient (AgentRejected)
// error or a canceled context.
func (a *Adapter) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= installRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if apperror.Code(lastErr) == apperror.CodeAgentRejected {
			return lastErr
		}
		if attempt < installRetries {
			logger.Log.Warn("agent call failed, retrying", "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
