package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spabas/libreo-bridge/internal/models"
)

const rs = models.RecordSeparator

func TestSplitFrames_MultipleConcatenated(t *testing.T) {
	message := "{}" + rs + `{"target":"receiveMetrics","arguments":[]}` + rs

	frames := SplitFrames(message)

	assert.Equal(t, []string{"{}", `{"target":"receiveMetrics","arguments":[]}`}, frames)
}

func TestSplitFrames_DropsEmptyFragments(t *testing.T) {
	assert.Empty(t, SplitFrames(""))
	assert.Empty(t, SplitFrames(rs+rs))
	assert.Equal(t, []string{"{}"}, SplitFrames(rs+"{}"+rs))
}

func TestSplitFrames_NoSeparator(t *testing.T) {
	assert.Equal(t, []string{`{"type":6}`}, SplitFrames(`{"type":6}`))
}

func TestIsHandshakeAck(t *testing.T) {
	assert.True(t, isHandshakeAck("{}"))
	assert.False(t, isHandshakeAck(`{"type":6}`))
	assert.False(t, isHandshakeAck(""))
}

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "wss://portal.example.com", websocketURL("https://portal.example.com"))
	assert.Equal(t, "ws://127.0.0.1:8080", websocketURL("http://127.0.0.1:8080"))
}
