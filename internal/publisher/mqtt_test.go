package publisher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/meterfeed/internal/config"
	"github.com/jgoulah/meterfeed/pkg/models"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mqtt.Client
	messages     []published
	err          error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) IsConnected() bool { return !c.disconnected }

func (c *fakeClient) Disconnect(quiesce uint) { c.disconnected = true }

func TestNotifyRun(t *testing.T) {
	client := &fakeClient{}
	n := newNotifier(client, "home/eon")

	started := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	run := &models.Run{
		ID:         "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Outcome:    models.OutcomeOK,
		Since:      "2024-01-01",
		Until:      "2024-04-01",
		Points:     96,
		Bytes:      512,
		Published:  true,
	}
	require.NoError(t, n.NotifyRun(run))

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, "home/eon/status", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var status StatusMessage
	require.NoError(t, json.Unmarshal(msg.payload, &status))
	assert.Equal(t, "run-1", status.RunID)
	assert.Equal(t, models.OutcomeOK, status.Outcome)
	assert.Equal(t, "2024-03-15T10:00:00Z", status.StartedAt)
	assert.Equal(t, 3.0, status.Duration)
	assert.Equal(t, 96, status.Points)
	assert.True(t, status.Published)

	n.Close()
	assert.True(t, client.disconnected)
}

func TestNotifyRunError(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	n := newNotifier(client, "")
	assert.Equal(t, "meterfeed/status", n.StatusTopic())

	err := n.NotifyRun(&models.Run{ID: "x", Outcome: models.OutcomeFailed})
	assert.ErrorContains(t, err, "not connected")
}

func TestNewNotifierRequiresBroker(t *testing.T) {
	_, err := NewNotifier(config.MQTTConfig{Enabled: true})
	assert.ErrorContains(t, err, "broker")
}
