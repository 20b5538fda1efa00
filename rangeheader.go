package uploader

import (
	"strconv"
	"strings"
)

const totalUnknown = "*"

// formatContentRange builds the outgoing Content-Range header value for a chunk
// covering absolute byte positions [start, start+length). total is the decimal
// total length as a string, or "*" if unknown. The empty-payload special case
// returns "bytes */0"; it applies only when length == 0 and total == "0".
func formatContentRange(start, length int64, total string) string {
	if length == 0 && total == "0" {
		return "bytes */0"
	}
	return "bytes " + strconv.FormatInt(start, 10) + "-" + strconv.FormatInt(start+length-1, 10) + "/" + total
}

// formatStatusQueryRange builds the Content-Range header for a zero-body status
// query: "bytes */{total}".
func formatStatusQueryRange(total string) string {
	return "bytes */" + total
}

// totalLengthString renders a known/unknown total length for use in a
// Content-Range header.
func totalLengthString(total int64, known bool) string {
	if !known {
		return totalUnknown
	}
	return strconv.FormatInt(total, 10)
}

// parseRangeHeader parses a server-returned "Range: bytes 0-N" header and
// returns N+1, the next byte index the client should send from. It tolerates
// leading whitespace and requires the "bytes " prefix; the number after the
// final "-" is decimal. Any malformed input is reported via ok=false.
func parseRangeHeader(value string) (nextByte int64, ok bool) {
	value = strings.TrimSpace(value)
	const prefix = "bytes "
	if !strings.HasPrefix(value, prefix) {
		return 0, false
	}
	value = strings.TrimSpace(value[len(prefix):])

	dash := strings.LastIndexByte(value, '-')
	if dash < 0 || dash == len(value)-1 {
		return 0, false
	}

	n, err := strconv.ParseInt(value[dash+1:], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n + 1, true
}
