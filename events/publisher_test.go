package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPublisher_InjectsEventIDAndType(t *testing.T) {
	var received Envelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	p := NewHTTPPublisher(nil, map[string]string{TopicTranlog: server.URL})
	err := p.Publish(context.Background(), TopicTranlog, "tranlog", "evt-42", map[string]any{"transaction_no": 1})
	require.NoError(t, err)

	assert.Equal(t, "evt-42", received.EventID)
	assert.Equal(t, "tranlog", received.EventType)
}

func TestHTTPPublisher_UnknownTopicFails(t *testing.T) {
	p := NewHTTPPublisher(nil, map[string]string{})
	err := p.Publish(context.Background(), "topic-unknown", "x", "evt-1", nil)
	require.Error(t, err)
}

func TestHTTPPublisher_BrokerErrorStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewHTTPPublisher(nil, map[string]string{TopicCashLog: server.URL})
	err := p.Publish(context.Background(), TopicCashLog, EventTypeCashInOut, "evt-1", nil)
	require.Error(t, err)
}

func TestInMemoryPublisher_RecordsAndFailsOnDemand(t *testing.T) {
	p := NewInMemoryPublisher()
	p.FailNext = true
	require.Error(t, p.Publish(context.Background(), TopicTranlog, "tranlog", "evt-1", nil))

	require.NoError(t, p.Publish(context.Background(), TopicTranlog, "tranlog", "evt-2", nil))
	require.Len(t, p.Published, 1)
	assert.Equal(t, "evt-2", p.Published[0].EventID)
}
