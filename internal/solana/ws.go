package solana

import "context"

// LogStream delivers logsSubscribe notifications for one connection
// session. Stream returns when the connection drops or ctx is cancelled;
// reconnecting is the caller's job.
type LogStream interface {
	Stream(ctx context.Context, filters []LogsFilter, out chan<- LogNotification) error
}

// LogsFilter defines a logsSubscribe filter.
type LogsFilter struct {
	// Mentions filters logs that mention any of these program IDs.
	Mentions []string
	// Commitment defaults to confirmed.
	Commitment string
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// Failed reports whether the logged transaction errored.
func (n LogNotification) Failed() bool {
	return n.Err != nil
}
