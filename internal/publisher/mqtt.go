package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jgoulah/meterfeed/internal/config"
	"github.com/jgoulah/meterfeed/pkg/models"
)

const publishTimeout = 10 * time.Second

// Notifier publishes run status to an MQTT broker
type Notifier struct {
	client      mqtt.Client
	topicPrefix string
}

// StatusMessage is the retained payload on <prefix>/status
type StatusMessage struct {
	RunID      string  `json:"run_id"`
	Outcome    string  `json:"outcome"`
	StartedAt  string  `json:"started_at"`
	FinishedAt string  `json:"finished_at"`
	Duration   float64 `json:"duration_seconds"`
	Since      string  `json:"since,omitempty"`
	Until      string  `json:"until,omitempty"`
	Points     int     `json:"points"`
	Bytes      int     `json:"bytes"`
	Published  bool    `json:"published"`
	Error      string  `json:"error,omitempty"`
}

// NewNotifier connects to the configured broker
func NewNotifier(cfg config.MQTTConfig) (*Notifier, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("meterfeed")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return newNotifier(client, cfg.TopicPrefix), nil
}

func newNotifier(client mqtt.Client, prefix string) *Notifier {
	if prefix == "" {
		prefix = "meterfeed"
	}
	return &Notifier{client: client, topicPrefix: prefix}
}

// StatusTopic is where run status is retained
func (n *Notifier) StatusTopic() string {
	return n.topicPrefix + "/status"
}

// NotifyRun publishes the outcome of run as a retained QoS 1 message
func (n *Notifier) NotifyRun(run *models.Run) error {
	msg := StatusMessage{
		RunID:      run.ID,
		Outcome:    run.Outcome,
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339),
		Duration:   run.Duration().Seconds(),
		Since:      run.Since,
		Until:      run.Until,
		Points:     run.Points,
		Bytes:      run.Bytes,
		Published:  run.Published,
		Error:      run.Error,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	token := n.client.Publish(n.StatusTopic(), 1, true, body)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timed out", n.StatusTopic())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", n.StatusTopic(), err)
	}
	return nil
}

// Close disconnects from the MQTT broker
func (n *Notifier) Close() {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
	}
}
