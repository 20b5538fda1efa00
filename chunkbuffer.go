package uploader

import "io"

// chunkBuffer holds the bytes of the in-flight chunk when the source's total
// length isn't known up front. It lets the driver resend an arbitrary suffix
// of a previously-built chunk without re-reading the (possibly non-seekable)
// source stream.
type chunkBuffer struct {
	buf         []byte
	usedLen     int
	startOffset int64

	lookAhead    byte
	hasLookAhead bool

	src io.Reader
}

func newChunkBuffer(src io.Reader, chunkSize int) *chunkBuffer {
	return &chunkBuffer{
		buf: make([]byte, chunkSize),
		src: src,
	}
}

// window returns the bytes currently sendable, starting at the absolute
// offset the server last acknowledged (ack): compacting a fully-accepted
// chunk, or shifting down to the unacknowledged suffix of a partially-accepted
// one.
func (b *chunkBuffer) window(ack int64) (startOffset int64, data []byte) {
	sentStart := b.startOffset
	sentLen := int64(b.usedLen)

	switch {
	case ack == sentStart+sentLen:
		b.startOffset = ack
		b.usedLen = 0
	case ack > sentStart && ack < sentStart+sentLen:
		delta := ack - sentStart
		copy(b.buf, b.buf[delta:sentLen])
		b.startOffset = ack
		b.usedLen = int(sentLen - delta)
	default:
		// ack == sentStart: nothing was acknowledged yet, buffer unchanged.
	}

	return b.startOffset, b.buf[:b.usedLen]
}

// fill tops the buffer up from the source (consuming any cached look-ahead
// byte first), then probes for EOF. It returns whether the stream is known to
// be exhausted, and the total length if EOF was discovered this call.
//
// checkCancel is polled between reads; if it returns a non-nil error, fill
// stops early and returns that error.
func (b *chunkBuffer) fill(checkCancel func() error) (isFinal bool, total int64, err error) {
	if b.hasLookAhead && b.usedLen < len(b.buf) {
		b.buf[b.usedLen] = b.lookAhead
		b.usedLen++
		b.hasLookAhead = false
	}

	for b.usedLen < len(b.buf) {
		if checkCancel != nil {
			if cErr := checkCancel(); cErr != nil {
				return false, 0, cErr
			}
		}
		n, rErr := b.src.Read(b.buf[b.usedLen:])
		b.usedLen += n
		if rErr != nil {
			if rErr == io.EOF {
				break
			}
			return false, 0, rErr
		}
		if n == 0 {
			break
		}
	}

	if b.usedLen < len(b.buf) {
		return true, b.startOffset + int64(b.usedLen), nil
	}

	// Buffer still full from a previous attempt with the look-ahead byte still
	// cached: that byte already proves more data follows, so don't probe again.
	if b.hasLookAhead {
		return false, 0, nil
	}

	// Buffer exactly full: probe one byte to tell "ends here" from "more to come".
	probe := make([]byte, 1)
	n, rErr := b.src.Read(probe)
	if n == 1 {
		b.lookAhead = probe[0]
		b.hasLookAhead = true
		return false, 0, nil
	}
	if rErr != nil && rErr != io.EOF {
		return false, 0, rErr
	}
	return true, b.startOffset + int64(b.usedLen), nil
}
