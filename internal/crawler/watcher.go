package crawler

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventDocument EventType = "document"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is one observation from a crawl watch. Document events arrive in
// discovery order with at most one terminal event (done or error) last. When
// the watch is cancelled the terminal error is delivered best-effort; the
// channel close is the authoritative end signal either way.
type Event struct {
	Type        EventType
	Page        *Page
	Total       int
	Completed   int
	CreditsUsed int
	Err         error
}

// Watch polls the crawl job until it reaches a terminal state, the watch
// timeout elapses, or ctx is cancelled. Pages already emitted are never
// re-emitted; polling errors are retried until the timeout.
func (c *Client) Watch(ctx context.Context, id string) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)

		watchCtx, cancel := context.WithTimeout(ctx, c.watchTimeout)
		defer cancel()

		// cancelled delivers the terminal error without blocking: the caller
		// may have stopped reading, and a full buffer must not pin this
		// goroutine past the watch.
		cancelled := func() {
			select {
			case events <- Event{Type: EventError, Err: watchCtx.Err()}:
			default:
			}
		}
		// terminal sends block only while the watch is live; a consumer that
		// went away cancels the request context and releases the send.
		terminal := func(evt Event) {
			select {
			case events <- evt:
			case <-watchCtx.Done():
			}
		}

		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		seen := 0
		for {
			status, err := c.Status(watchCtx, id)
			if err != nil {
				if watchCtx.Err() != nil {
					cancelled()
					return
				}
				slog.Warn("crawl status poll failed, retrying", "crawl_id", id, "error", err)
			} else {
				for seen < len(status.Pages) {
					page := status.Pages[seen]
					select {
					case events <- Event{Type: EventDocument, Page: &page}:
						seen++
					case <-watchCtx.Done():
						cancelled()
						return
					}
				}

				switch status.Status {
				case JobCompleted:
					terminal(Event{
						Type:        EventDone,
						Total:       status.Total,
						Completed:   status.Completed,
						CreditsUsed: status.CreditsUsed,
					})
					return
				case JobFailed:
					terminal(Event{Type: EventError, Err: errJobFailed})
					return
				}
			}

			select {
			case <-watchCtx.Done():
				cancelled()
				return
			case <-ticker.C:
			}
		}
	}()

	return events
}

type crawlError string

func (e crawlError) Error() string { return string(e) }

const errJobFailed = crawlError("crawl job failed")
