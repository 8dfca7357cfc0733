package realtime

import (
	"strings"

	"github.com/spabas/libreo-bridge/internal/models"
)

// SplitFrames breaks a raw socket message into its JSON frames. A single
// message may carry several concatenated frames, each terminated by the
// record separator; empty fragments are dropped.
func SplitFrames(message string) []string {
	parts := strings.Split(message, models.RecordSeparator)
	frames := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			frames = append(frames, part)
		}
	}
	return frames
}

// isHandshakeAck reports whether a frame is the hub's empty-object
// handshake acknowledgment
func isHandshakeAck(frame string) bool {
	return frame == "{}"
}
