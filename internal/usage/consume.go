package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrBadEvent = errors.New("usage: malformed event")

// Handle decodes one queued event and persists it. ErrBadEvent means the
// message can never succeed and should be dead-lettered.
func Handle(ctx context.Context, sink *DBSink, body []byte) error {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if e.Kind == "" || e.BotID == "" {
		return fmt.Errorf("%w: kind and bot_id required", ErrBadEvent)
	}
	return sink.Deliver(ctx, e)
}
