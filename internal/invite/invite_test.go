// internal/invite/invite_test.go
package invite

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xoduel/xoduel/internal/clock"
	"github.com/xoduel/xoduel/internal/protocol"
)

func newTestManager() (*Manager, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewManager(clk, logger, nil, 30*time.Minute, "http://localhost:8080"), clk
}

func hostAlwaysOnline(string) bool  { return true }
func hostAlwaysOffline(string) bool { return false }

func TestCreateOrReuseReturnsSamePendingInvite(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	first, reason := m.CreateOrReuse(ctx, "host")
	require.Empty(t, reason)
	require.NotNil(t, first)
	assert.Len(t, first.Code, codeLength)
	assert.Equal(t, StatusPending, first.Status)

	second, reason := m.CreateOrReuse(ctx, "host")
	require.Empty(t, reason)
	assert.Equal(t, first.Code, second.Code)
}

func TestCreateAfterExpiryMintsFreshCode(t *testing.T) {
	m, clk := newTestManager()
	ctx := context.Background()

	first, _ := m.CreateOrReuse(ctx, "host")
	clk.Advance(31 * time.Minute)

	second, reason := m.CreateOrReuse(ctx, "host")
	require.Empty(t, reason)
	assert.NotEqual(t, first.Code, second.Code)
}

func TestAcceptHappyPath(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	inv, _ := m.CreateOrReuse(ctx, "host")
	accepted, reason := m.Accept(ctx, inv.Code, "guest", hostAlwaysOnline)
	require.Empty(t, reason)
	require.NotNil(t, accepted)
	assert.Equal(t, StatusAccepted, accepted.Status)
	assert.Equal(t, "guest", accepted.GuestID)
	assert.Equal(t, "host", accepted.HostID)
}

func TestAcceptOnlyOnce(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	inv, _ := m.CreateOrReuse(ctx, "host")
	_, reason := m.Accept(ctx, inv.Code, "guest", hostAlwaysOnline)
	require.Empty(t, reason)

	_, reason = m.Accept(ctx, inv.Code, "other", hostAlwaysOnline)
	assert.Equal(t, protocol.InviteUsed, reason)
}

func TestAcceptUnknownCode(t *testing.T) {
	m, _ := newTestManager()
	_, reason := m.Accept(context.Background(), "nope", "guest", hostAlwaysOnline)
	assert.Equal(t, protocol.InviteNotFound, reason)
}

func TestAcceptSelf(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	inv, _ := m.CreateOrReuse(ctx, "host")
	_, reason := m.Accept(ctx, inv.Code, "host", hostAlwaysOnline)
	assert.Equal(t, protocol.InviteSelf, reason)
}

func TestAcceptExpiredFlipsStatus(t *testing.T) {
	m, clk := newTestManager()
	ctx := context.Background()

	inv, _ := m.CreateOrReuse(ctx, "host")
	clk.Advance(30 * time.Minute)

	_, reason := m.Accept(ctx, inv.Code, "guest", hostAlwaysOnline)
	assert.Equal(t, protocol.InviteExpired, reason)
	assert.Equal(t, StatusExpired, inv.Status)
}

func TestAcceptHostOffline(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	inv, _ := m.CreateOrReuse(ctx, "host")
	_, reason := m.Accept(ctx, inv.Code, "guest", hostAlwaysOffline)
	assert.Equal(t, protocol.InviteHostOffline, reason)

	// The invite is still pending and redeemable once the host returns.
	_, reason = m.Accept(ctx, inv.Code, "guest", hostAlwaysOnline)
	assert.Empty(t, reason)
}

func TestLinkEmbedsCode(t *testing.T) {
	m, _ := newTestManager()
	assert.Equal(t, "http://localhost:8080/?ref=abc123", m.Link("abc123"))
}
