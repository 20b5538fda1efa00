package uploader

// Status is the lifecycle state of a Session, emitted strictly in causal order
// as Starting, then zero or more Uploading, then exactly one of Completed,
// Failed, or Cancelled.
type Status int

const (
	Starting Status = iota
	Uploading
	Completed
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Starting:
		return "starting"
	case Uploading:
		return "uploading"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Progress is a point-in-time snapshot of a Session's upload state. BytesSent
// is non-decreasing across the events of one session. Err is only set when
// Status is Failed or Cancelled.
type Progress struct {
	Status    Status
	BytesSent int64
	Err       error
}

// Result is delivered once on the channel returned by Session.UploadAsync.
type Result struct {
	Progress Progress
	Err      error
}

// ProgressFunc is invoked synchronously on the driver's goroutine for every
// emitted Progress event, in causal order. It must not block.
type ProgressFunc func(Progress)

// ResponseFunc is invoked once, before the terminal Completed event, with the
// decoded typed response body (see SessionOptions.NewResponse). It is never invoked on a
// failed or cancelled upload.
type ResponseFunc func(any)
