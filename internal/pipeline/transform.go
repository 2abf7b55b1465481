package pipeline

import (
	"context"

	"github.com/seawhisper/alert-monitor/internal/domain"
)

// ReadingDecoder implements Decoder with the shared reading wire format.
type ReadingDecoder struct{}

// NewDecoder creates a ReadingDecoder.
func NewDecoder() *ReadingDecoder {
	return &ReadingDecoder{}
}

// Decode parses raw.Value. Messages without a broker timestamp fall back to
// the current time for ObservedAt.
func (ReadingDecoder) Decode(_ context.Context, raw domain.RawReading) (domain.Reading, error) {
	if raw.Timestamp.IsZero() {
		raw.Timestamp = domain.Now()
	}
	return domain.ParseRawReading(raw)
}
