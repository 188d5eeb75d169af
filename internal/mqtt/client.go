package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"

	"github.com/meshmap/mesh2graph/internal/configuration"
	"github.com/meshmap/mesh2graph/internal/logger"
	"github.com/meshmap/mesh2graph/internal/metrics"
)

// Client owns the connection state machine:
// DISCONNECTED -> CONNECTING -> CONNECTED -> BACKOFF -> CONNECTING ...
// Reconnection is handled here, not by the paho auto-reconnect, so the
// backoff and subscription behavior stay explicit.
type Client struct {
	transport   transport
	topic       string
	backoff     *backoff
	stableReset time.Duration
	state       atomic.Int32
	metrics     *metrics.Metrics
	log         logger.Logger

	// test hook, observes every state transition
	stateHook func(ConnState)
}

func NewClient(cfg *configuration.Configuration, handler MessageHandler, m *metrics.Metrics, log logger.Logger) *Client {
	bc := cfg.BackoffConfiguration

	return &Client{
		transport:   newPahoTransport(&cfg.MqttConfiguration, handler, log),
		topic:       cfg.MqttConfiguration.Topic,
		backoff:     newBackoff(time.Duration(bc.MinSeconds)*time.Second, time.Duration(bc.MaxSeconds)*time.Second),
		stableReset: time.Duration(bc.StableResetSeconds) * time.Second,
		metrics:     m,
		log:         log,
	}
}

func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) setState(s ConnState) {
	c.state.Store(int32(s))
	if c.stateHook != nil {
		c.stateHook(s)
	}
}

// Run drives the connection until ctx is canceled. It never returns an
// error: broker failures are transient by definition and retried forever.
func (c *Client) Run(ctx context.Context) {
	defer c.setState(StateDisconnected)

	for {
		c.setState(StateConnecting)
		c.metrics.Reconnects.Inc()

		if err := c.connectAndSubscribe(); err != nil {
			c.log.Warn("connect failed: %v", err)
			if !c.waitBackoff(ctx) {
				return
			}
			continue
		}

		c.log.Info("connected, subscribed to '%v'", c.topic)
		c.setState(StateConnected)
		connectedAt := time.Now()

		select {
		case <-ctx.Done():
			c.transport.Disconnect()
			return
		case err := <-c.transport.Lost():
			c.log.Warn("connection lost: %v", err)
			if time.Since(connectedAt) >= c.stableReset {
				c.backoff.Reset()
			}
			if !c.waitBackoff(ctx) {
				return
			}
		}
	}
}

func (c *Client) connectAndSubscribe() error {
	// Drop any lost notification left over from the previous session.
	select {
	case <-c.transport.Lost():
	default:
	}

	if err := c.transport.Connect(); err != nil {
		return err
	}

	if err := c.transport.Subscribe(c.topic); err != nil {
		c.transport.Disconnect()
		return fmt.Errorf("subscribing to %q: %w", c.topic, err)
	}

	return nil
}

// waitBackoff sleeps the next backoff delay. Returns false when ctx ended.
func (c *Client) waitBackoff(ctx context.Context) bool {
	c.setState(StateBackoff)
	delay := c.backoff.Next()
	c.log.Info("reconnecting in %v", delay)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

type pahoTransport struct {
	client  mqttlib.Client
	handler MessageHandler
	lost    chan error
}

func newPahoTransport(cfg *configuration.MqttConfiguration, handler MessageHandler, lg logger.Logger) *pahoTransport {
	t := &pahoTransport{
		handler: handler,
		lost:    make(chan error, 1),
	}

	mqttlib.ERROR = log.New(lg.GetWriter(), "[MQTT Client]", 0)

	scheme := "tcp"
	opts := mqttlib.NewClientOptions()
	if cfg.UseTLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: cfg.TLSInsecure})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Address, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.AutoReconnect = false
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOrderMatters(false)
	opts.OnConnectionLost = func(client mqttlib.Client, err error) {
		select {
		case t.lost <- err:
		default:
		}
	}

	t.client = mqttlib.NewClient(opts)

	return t
}

func (t *pahoTransport) Connect() error {
	token := t.client.Connect()
	token.Wait()
	return token.Error()
}

func (t *pahoTransport) Subscribe(topic string) error {
	token := t.client.Subscribe(topic, 0, func(client mqttlib.Client, msg mqttlib.Message) {
		t.handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (t *pahoTransport) Disconnect() {
	t.client.Disconnect(250)
}

func (t *pahoTransport) Lost() <-chan error {
	return t.lost
}
