package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"nimbus-chat/relay/pkg/providers"
)

// streamEvent is one decoded SSE data frame.
type streamEvent struct {
	delta        string
	finishReason string
}

// streamReader reads Server-Sent Events from an OpenAI-compatible
// streaming response body.
type streamReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
}

func newStreamReader(body io.ReadCloser) *streamReader {
	scanner := bufio.NewScanner(body)
	// Allow frames larger than the default 64K token limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &streamReader{
		body:    body,
		scanner: scanner,
	}
}

// Read returns the next decoded event.
// Returns io.EOF when the stream ends normally (including the [DONE] frame).
func (s *streamReader) Read(ctx context.Context) (*streamEvent, error) {
	if s.closed {
		return nil, io.EOF
	}

	for {
		// Cancellation is checked at every frame boundary.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		line := s.scanner.Text()
		if line == "" {
			continue
		}

		// Skip comments and event-type lines; only data frames carry chunks.
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			return nil, io.EOF
		}

		var chunk streamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, &providers.ClassifiedError{
				Provider: providers.KindOpenAICompat,
				Class:    providers.ClassFatal,
				Code:     providers.CodeUnknown,
				Message:  "failed to decode stream chunk",
				Cause:    err,
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		return &streamEvent{
			delta:        choice.Delta.Content,
			finishReason: choice.FinishReason,
		}, nil
	}
}

// Close closes the underlying response body.
func (s *streamReader) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
