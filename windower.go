package uploader

import "io"

// sizer is implemented by sources that can report a finite length up front.
// *bytes.Reader and *strings.Reader satisfy it out of the box.
type sizer interface {
	Size() int64
}

// knownSizeWindower produces chunks by reseeking the source to the driver's
// current bytesSent cursor and reading exactly chunkLen bytes on every
// attempt. It holds no buffer across attempts: a resend after a partial
// acknowledgement just re-enters with the updated offset.
type knownSizeWindower struct {
	src       io.ReadSeeker
	total     int64
	chunkSize int
}

func newKnownSizeWindower(src io.ReadSeeker, total int64, chunkSize int) *knownSizeWindower {
	return &knownSizeWindower{src: src, total: total, chunkSize: chunkSize}
}

// next reads the chunk starting at offset, returning its bytes and whether
// this is the final chunk of the upload.
func (w *knownSizeWindower) next(offset int64) (data []byte, isFinal bool, err error) {
	remaining := w.total - offset
	if remaining < 0 {
		remaining = 0
	}
	length := int64(w.chunkSize)
	if remaining < length {
		length = remaining
	}

	if _, err := w.src.Seek(offset, io.SeekStart); err != nil {
		return nil, false, err
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(w.src, buf); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, false, err
	}

	return buf, offset+length >= w.total, nil
}
