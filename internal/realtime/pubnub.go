package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"
)

type Config struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

// Publisher pushes a JSON message onto a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// Client wraps a PubNub connection used both for buyer notifications and
// for the bank's payment notification channel.
type Client struct {
	pn *pubnub.PubNub
}

var _ Publisher = (*Client)(nil)

func New(cfg Config) *Client {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey
	return &Client{pn: pubnub.NewPubNub(pnCfg)}
}

func (c *Client) Publish(ctx context.Context, channel string, payload any) error {
	_, st, err := c.pn.PublishWithContext(ctx).
		Channel(channel).
		Message(payload).
		Execute()
	if err != nil {
		return fmt.Errorf("pubnub publish to %s (status %d): %w", channel, st.StatusCode, err)
	}
	return nil
}

// Subscribe delivers the raw JSON body of every message on channel to
// handle until ctx is done.
func (c *Client) Subscribe(ctx context.Context, channel string, handle func(ctx context.Context, body []byte)) {
	listener := pubnub.NewListener()
	c.pn.AddListener(listener)
	c.pn.Subscribe().Channels([]string{channel}).Execute()

	defer func() {
		c.pn.Unsubscribe().Channels([]string{channel}).Execute()
		c.pn.RemoveListener(listener)
	}()

	for {
		select {
		case st := <-listener.Status:
			logStatus(channel, st)

		case message := <-listener.Message:
			body, err := messageBody(message.Message)
			if err != nil {
				slog.Warn("undecodable pubnub message", "channel", channel, "error", err)
				continue
			}
			handle(ctx, body)

		case <-ctx.Done():
			slog.Info("pubnub subscription closed", "channel", channel)
			return
		}
	}
}

func logStatus(channel string, st *pubnub.PNStatus) {
	if st == nil {
		return
	}
	switch st.Category {
	case pubnub.PNConnectedCategory:
		slog.Info("connected to pubnub", "channel", channel)
	case pubnub.PNReconnectedCategory:
		slog.Info("reconnected to pubnub", "channel", channel)
	case pubnub.PNDisconnectedCategory, pubnub.PNCancelledCategory, pubnub.PNLoopStopCategory:
		slog.Warn("pubnub subscription stopped", "channel", channel, "category", st.Category)
	case pubnub.PNAccessDeniedCategory, pubnub.PNBadRequestCategory, pubnub.PNReconnectionAttemptsExhausted:
		slog.Error("pubnub subscription failed", "channel", channel, "category", st.Category)
	default:
		slog.Debug("pubnub status", "channel", channel, "category", st.Category)
	}
}

// messageBody normalizes a PubNub payload, which arrives either as a JSON
// string or as an already decoded value.
func messageBody(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case nil:
		return nil, fmt.Errorf("empty message")
	case string:
		return []byte(m), nil
	case []byte:
		return m, nil
	default:
		return json.Marshal(m)
	}
}
