package media

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is an inclusive byte interval within an object.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range header value for an object of total bytes.
func (r ByteRange) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// UnsatisfiedContentRange formats the Content-Range value sent with a 416.
func UnsatisfiedContentRange(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

// ParseRange interprets a single-range "bytes=" header against an object of
// size bytes. It returns (nil, nil) when the header is absent, malformed, or
// asks for several ranges; callers then serve the whole object. A well formed
// range that cannot be satisfied yields a RangeError.
func ParseRange(header string, size int64) (*ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	set, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, nil
	}
	set = strings.TrimSpace(set)
	if set == "" || strings.Contains(set, ",") {
		return nil, nil
	}
	rawStart, rawEnd, found := strings.Cut(set, "-")
	if !found {
		return nil, nil
	}
	rawStart = strings.TrimSpace(rawStart)
	rawEnd = strings.TrimSpace(rawEnd)

	// suffix form: bytes=-N
	if rawStart == "" {
		n, err := parseOffset(rawEnd)
		if err != nil {
			return nil, nil
		}
		if n == 0 || size == 0 {
			return nil, RangeError(size)
		}
		if n > size {
			n = size
		}
		return &ByteRange{Start: size - n, End: size - 1}, nil
	}

	start, err := parseOffset(rawStart)
	if err != nil {
		return nil, nil
	}
	end := size - 1
	if rawEnd != "" {
		end, err = parseOffset(rawEnd)
		if err != nil {
			return nil, nil
		}
		if end < start {
			return nil, RangeError(size)
		}
	}
	if start >= size {
		return nil, RangeError(size)
	}
	if end >= size {
		end = size - 1
	}
	return &ByteRange{Start: start, End: end}, nil
}

func parseOffset(raw string) (int64, error) {
	if raw == "" {
		return 0, strconv.ErrSyntax
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseInt(raw, 10, 64)
}
