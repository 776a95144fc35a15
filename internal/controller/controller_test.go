package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slicectl/internal/agent"
	"slicectl/internal/domain"
	"slicectl/pkg/apperror"
)

type fakeAgent struct {
	queryPortsErr   error
	installFlowErr  error
	deleteFlowErr   error
	setBWErr        error
	staticARPErr    error
	installCalls    int
	failFirstNCalls int
}

func (f *fakeAgent) QueryPorts(ctx context.Context, path []string) (map[string]int, map[string]int, error) {
	if f.queryPortsErr != nil {
		return nil, nil, f.queryPortsErr
	}
	return map[string]int{"s1": 2}, map[string]int{"s1": 1}, nil
}

func (f *fakeAgent) InstallFlow(ctx context.Context, cmd agent.FlowCommand) (map[string]int, map[string]int, error) {
	f.installCalls++
	if f.installCalls <= f.failFirstNCalls {
		return nil, nil, apperror.New(apperror.CodeAgentUnavailable, "transient")
	}
	return nil, nil, f.installFlowErr
}

func (f *fakeAgent) DeleteFlow(ctx context.Context, cmd agent.FlowCommand) error { return f.deleteFlowErr }
func (f *fakeAgent) SetLinkBandwidth(ctx context.Context, u, v string, bw int) error {
	return f.setBWErr
}
func (f *fakeAgent) StaticARP(ctx context.Context, host, ip, mac string) error { return f.staticARPErr }

func testTunnel() *domain.Tunnel {
	return &domain.Tunnel{
		TunnelID:      1,
		Path:          []string{"h1", "s1", "h2"},
		Rate:          10,
		TCPPort:       5002,
		Bidirectional: true,
		SrcIP:         "10.0.0.1",
		DstIP:         "10.0.0.2",
		SrcMAC:        "00:00:00:00:00:01",
		DstMAC:        "00:00:00:00:00:02",
		Links:         domain.LinksForPath([]string{"h1", "s1", "h2"}),
	}
}

func TestInstall_Success_PopulatesPorts(t *testing.T) {
	fa := &fakeAgent{}
	a := New(fa)
	tun := testTunnel()

	err := a.Install(context.Background(), tun)
	require.NoError(t, err)
	assert.Equal(t, 2, tun.OutPorts["s1"])
	assert.Equal(t, 1, tun.InPorts["s1"])
}

func TestInstall_RetriesTransientFailures(t *testing.T) {
	fa := &fakeAgent{failFirstNCalls: 2}
	a := New(fa)
	tun := testTunnel()

	err := a.Install(context.Background(), tun)
	require.NoError(t, err)
	assert.Equal(t, 3, fa.installCalls)
}

func TestInstall_DoesNotRetryAgentRejected(t *testing.T) {
	fa := &fakeAgent{installFlowErr: apperror.New(apperror.CodeAgentRejected, "bad request")}
	a := New(fa)
	tun := testTunnel()

	err := a.Install(context.Background(), tun)
	require.Error(t, err)
	assert.Equal(t, 1, fa.installCalls)
}

func TestRemove_Idempotent(t *testing.T) {
	fa := &fakeAgent{}
	a := New(fa)
	err := a.Remove(context.Background(), testTunnel())
	assert.NoError(t, err)
}
