package tracking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
)

// #region options
// MQTTOptions configures the broker connection and topics.
type MQTTOptions struct {
	Broker          string
	ClientID        string
	MotionTopic     string
	CorrectionTopic string
	Buffer          int // motion samples queued before the subscriber blocks
}

// #endregion options

// #region client
// MQTTClient subscribes to motion samples and publishes corrections.
// Samples are delivered on Samples() in arrival order; paho keeps ordered
// delivery so the handler blocks when the buffer is full instead of dropping.
type MQTTClient struct {
	client  mqtt.Client
	opts    MQTTOptions
	logger  *slog.Logger
	samples chan redirect.MotionSample
	done    chan struct{}
}

// DialMQTT connects to the broker and subscribes to the motion topic.
func DialMQTT(opts MQTTOptions, logger *slog.Logger) (*MQTTClient, error) {
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetOrderMatters(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", opts.Broker, token.Error())
	}

	c := NewMQTTClient(client, opts, logger)
	if err := c.Subscribe(); err != nil {
		client.Disconnect(250)
		return nil, err
	}
	return c, nil
}

// NewMQTTClient wraps an already connected paho client.
func NewMQTTClient(client mqtt.Client, opts MQTTOptions, logger *slog.Logger) *MQTTClient {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	return &MQTTClient{
		client:  client,
		opts:    opts,
		logger:  logger,
		samples: make(chan redirect.MotionSample, opts.Buffer),
		done:    make(chan struct{}),
	}
}

// Subscribe registers the motion topic handler.
func (c *MQTTClient) Subscribe() error {
	token := c.client.Subscribe(c.opts.MotionTopic, 0, c.handleMotion)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", c.opts.MotionTopic, token.Error())
	}
	c.logger.Info("subscribed to motion topic", slog.String("topic", c.opts.MotionTopic))
	return nil
}

func (c *MQTTClient) handleMotion(_ mqtt.Client, msg mqtt.Message) {
	s, err := DecodeSample(msg.Payload())
	if err != nil {
		c.logger.Warn("dropping malformed motion sample",
			slog.String("topic", msg.Topic()), slog.Any("error", err))
		return
	}
	select {
	case c.samples <- s:
	case <-c.done:
	}
}

// Samples returns the ordered motion sample stream.
func (c *MQTTClient) Samples() <-chan redirect.MotionSample {
	return c.samples
}

// PublishCorrection sends one correction on the correction topic.
func (c *MQTTClient) PublishCorrection(corr Correction) error {
	b, err := json.Marshal(corr)
	if err != nil {
		return fmt.Errorf("encode correction: %w", err)
	}
	token := c.client.Publish(c.opts.CorrectionTopic, 0, false, b)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish correction: %w", token.Error())
	}
	return nil
}

// Close unblocks the handler and disconnects.
func (c *MQTTClient) Close() {
	close(c.done)
	c.client.Disconnect(250)
}

// #endregion client
