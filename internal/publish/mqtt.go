// Package publish delivers detection results to an MQTT broker so downstream
// consumers (home automation, alerting) can react to presence changes.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/banshee-data/presence.report/internal/detect"
	"github.com/banshee-data/presence.report/internal/monitoring"
)

const connectTimeout = 10 * time.Second

// Publisher forwards detection results to a single MQTT topic as JSON.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// NewPublisher connects to the broker and returns a ready publisher.
func NewPublisher(brokerURL, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("presence-" + uuid.NewString()[:8]).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", brokerURL, err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// NewPublisherWithClient wraps an already connected client. Used by tests.
func NewPublisherWithClient(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// Publish sends one detection result as a JSON payload at QoS 0. Results are
// a live stream; a dropped message is superseded by the next one, so there is
// no retry.
func (p *Publisher) Publish(result detect.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	token := p.client.Publish(p.topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Run drains the result channel into the broker until the channel closes or
// the context is canceled. Publish failures are logged and skipped; the
// detection loop must never stall on a flaky broker.
func (p *Publisher) Run(ctx context.Context, results <-chan detect.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-results:
			if !ok {
				return
			}
			if err := p.Publish(result); err != nil {
				monitoring.Logf("publish: dropping result %d: %v", result.Sequence, err)
			}
		}
	}
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
