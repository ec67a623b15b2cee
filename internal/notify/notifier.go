// Package notify delivers operator alerts for ledger events over one or more
// channels (Telegram, Discord). Alerts can be filtered by event kind so
// operators receive only what they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier formats ledger events and dispatches them to all registered
// senders. Only events whose kind is in the allowed set are forwarded; an
// empty set allows everything.
type Notifier struct {
	senders []Sender
	kinds   map[domain.EventKind]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[domain.EventKind(strings.TrimSpace(k))] = true
	}
	return &Notifier{
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyEvent formats and dispatches a ledger event, subject to the kind
// filter.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	if len(n.kinds) > 0 && !n.kinds[ev.Kind] {
		return nil
	}
	title, message := formatEvent(ev)
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all senders regardless of the kind filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch fans out to every sender. A single sender failure does not prevent
// delivery to the remaining senders; failures are combined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// formatEvent renders a ledger event as an alert title and body.
func formatEvent(ev domain.Event) (title, message string) {
	switch ev.Kind {
	case domain.EventMarketCreated:
		title = "Market created"
		message = fmt.Sprintf("market %s\ncreated by %s", ev.Key, ev.Caller.Hex())
		if ev.Params != nil {
			message += fmt.Sprintf("\ncap %s\nprice %s\nsymbol %s",
				ev.Params.MaximumDebt.Dec(), ev.Params.Price.Dec(), ev.Params.Symbol)
		}
	case domain.EventBondsMinted:
		title = "Bonds minted"
		message = fmt.Sprintf("market %s\nholder %s\ndeposit %s\nbonds %s",
			ev.Key, ev.Caller.Hex(), ev.Deposit.Dec(), ev.Bonds.Dec())
	case domain.EventBondsRedeemed:
		title = "Bonds redeemed"
		message = fmt.Sprintf("market %s\nholder %s\nbonds %s\nunderlying %s",
			ev.Key, ev.Caller.Hex(), ev.Bonds.Dec(), ev.Underlying.Dec())
	case domain.EventAdminTransferred:
		title = "Admin transferred"
		message = fmt.Sprintf("from %s\nto %s", ev.Caller.Hex(), ev.NewAdmin.Hex())
	default:
		title = string(ev.Kind)
		message = fmt.Sprintf("event %s", ev.ID)
	}
	return title, message
}
