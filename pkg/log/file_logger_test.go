package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.vlog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	events := []Event{
		{
			Timestamp: time.Now().UTC(),
			SessionID: "s1",
			Direction: DirectionOut,
			Category:  CategoryConnect,
			Connect:   &ConnectEvent{CredentialKind: "pairing", ClientID: "c1"},
		},
		{
			Timestamp: time.Now().UTC(),
			SessionID: "s1",
			Direction: DirectionIn,
			Category:  CategoryMessage,
			Message:   NewMessageEvent("/remoteapp/mobile/c1/ui_service/data/authentication", []byte(`""`)),
		},
		{
			Timestamp: time.Now().UTC(),
			SessionID: "s1",
			Category:  CategoryState,
			StateChange: &StateChangeEvent{
				Entity:   StateEntityPairing,
				OldState: "Connecting",
				NewState: "AwaitingAppConnectAck",
			},
		},
	}
	for _, ev := range events {
		logger.Log(ev)
	}
	require.NoError(t, logger.Close())

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	var got []Event
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, ev)
	}

	require.Len(t, got, len(events))
	assert.Equal(t, CategoryConnect, got[0].Category)
	assert.Equal(t, "pairing", got[0].Connect.CredentialKind)
	assert.Equal(t, CategoryMessage, got[1].Category)
	assert.Equal(t, []byte(`""`), got[1].Message.Payload)
	assert.Equal(t, "AwaitingAppConnectAck", got[2].StateChange.NewState)
}

func TestFileLoggerCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.vlog")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	// Logging after close must not panic.
	logger.Log(Event{SessionID: "late"})
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.vlog")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	logger.Log(Event{SessionID: "s1", Category: CategoryMessage, Message: NewMessageEvent("a", nil)})
	logger.Log(Event{SessionID: "s2", Category: CategoryMessage, Message: NewMessageEvent("b", nil)})
	logger.Log(Event{SessionID: "s1", Category: CategoryError, Error: &ErrorEventData{Message: "boom"}})
	require.NoError(t, logger.Close())

	cat := CategoryMessage
	reader, err := NewFilteredReader(path, Filter{SessionID: "s1", Category: &cat})
	require.NoError(t, err)
	defer reader.Close()

	ev, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", ev.Message.Topic)

	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
}
