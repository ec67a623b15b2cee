package notify

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// recordSender records every delivered notification.
type recordSender struct {
	titles   []string
	messages []string
}

func (s *recordSender) Send(_ context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordSender) Name() string { return "record" }

func mintEvent() domain.Event {
	return domain.Event{
		Kind: domain.EventBondsMinted,
		Key: domain.MarketKey{
			Underlying: common.HexToAddress("0x4DBCdF9B62e891a7cec5A2568C3F4FAF9E8Abe2b"),
			Maturity:   1672547973,
		},
		Caller:  common.HexToAddress("0x000000000000000000000000000000000000a11c"),
		Deposit: uint256.NewInt(95),
		Bonds:   uint256.NewInt(100),
		At:      time.Unix(1672000000, 0).UTC(),
	}
}

func TestNotifyEventFormatsMint(t *testing.T) {
	sender := &recordSender{}
	n := NewNotifier([]Sender{sender}, nil, slog.Default())

	require.NoError(t, n.NotifyEvent(context.Background(), mintEvent()))

	require.Len(t, sender.titles, 1)
	assert.Equal(t, "Bonds minted", sender.titles[0])
	assert.Contains(t, sender.messages[0], "0x4dbcdf9b62e891a7cec5a2568c3f4faf9e8abe2b:1672547973")
	assert.Contains(t, sender.messages[0], "deposit 95")
	assert.Contains(t, sender.messages[0], "bonds 100")
}

func TestNotifyEventFiltersByKind(t *testing.T) {
	sender := &recordSender{}
	n := NewNotifier([]Sender{sender}, []string{"market_created"}, slog.Default())

	require.NoError(t, n.NotifyEvent(context.Background(), mintEvent()))
	assert.Empty(t, sender.titles, "filtered kinds must not be delivered")

	ev := domain.Event{
		Kind:   domain.EventMarketCreated,
		Caller: common.HexToAddress("0x00000000000000000000000000000000000000ad"),
	}
	require.NoError(t, n.NotifyEvent(context.Background(), ev))
	require.Len(t, sender.titles, 1)
	assert.Equal(t, "Market created", sender.titles[0])
}

func TestNotifyWithoutSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, slog.Default())
	assert.NoError(t, n.NotifyEvent(context.Background(), mintEvent()))
	assert.NoError(t, n.NotifyAll(context.Background(), "title", "message"))
}
