package progress

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/eternisai/agent-stream/pkg/events"
)

// maxFrameSize bounds a single frame. Larger frames are skipped, not fatal.
const maxFrameSize = 4 << 20

// ParseErrorKind tells why a frame could not become an Event.
type ParseErrorKind string

const (
	// NotJSON frames are kept as raw content.
	NotJSON ParseErrorKind = "not_json"
	// BadEnvelope frames are JSON without a usable type.
	BadEnvelope ParseErrorKind = "bad_envelope"
	// TooLarge frames exceeded maxFrameSize and were dropped unread.
	TooLarge ParseErrorKind = "too_large"
)

// ParseError describes a frame that could not be parsed.
type ParseError struct {
	Kind ParseErrorKind
	Body string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("frame %s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result is the outcome of parsing one frame. Exactly one of Event, Done or
// Err is meaningful; frames without data lines yield an empty Result.
type Result struct {
	Event events.Event
	Done  bool
	Err   *ParseError
}

// Empty reports whether the frame carried nothing to act on.
func (r Result) Empty() bool {
	return !r.Done && r.Err == nil && r.Event.Type == ""
}

// ErrFrameTooLarge is yielded by Frames in place of a frame that exceeded
// maxFrameSize. It does not end the sequence; the oversized frame is
// discarded up to the next blank line.
var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// Frames splits r into SSE frames on blank lines. Both \n\n and \r\n\r\n
// terminators are accepted; a trailing frame without terminator is yielded at
// EOF. Any error other than ErrFrameTooLarge is a read error and ends the
// sequence.
func Frames(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		br := bufio.NewReaderSize(r, 64<<10)

		var (
			frame     []byte
			line      []byte
			lineLen   int
			oversized bool
		)
		flush := func() bool {
			defer func() { frame, oversized = frame[:0], false }()
			if oversized {
				return yield("", ErrFrameTooLarge)
			}
			text := strings.TrimRight(string(frame), "\r\n")
			if strings.TrimSpace(text) == "" {
				return true
			}
			return yield(text, nil)
		}

		for {
			chunk, err := br.ReadSlice('\n')
			lineLen += len(chunk)
			if !oversized {
				if len(frame)+len(line)+len(chunk) > maxFrameSize {
					oversized = true
					frame, line = frame[:0], nil
				} else {
					line = append(line, chunk...)
				}
			}
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}

			if lineLen > 0 {
				// A blank line is at most "\r\n", so it always arrives in one chunk.
				if lineLen <= 2 && len(bytes.TrimRight(chunk, "\r\n")) == 0 {
					if !flush() {
						return
					}
				} else if !oversized {
					frame = append(frame, line...)
				}
			}
			line, lineLen = line[:0], 0

			if err != nil {
				if errors.Is(err, io.EOF) {
					if oversized || len(frame) > 0 {
						flush()
					}
					return
				}
				yield("", err)
				return
			}
		}
	}
}

// ParseFrame turns one frame into a Result. It never panics and never
// returns an error value: failures are carried in Result.Err.
func ParseFrame(frame string) Result {
	var data []string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			// Comments, event/id/retry fields and stray text.
			continue
		}
		value := strings.TrimPrefix(line, "data:")
		value = strings.TrimPrefix(value, " ")
		data = append(data, value)
	}
	if len(data) == 0 {
		return Result{}
	}

	body := strings.Join(data, "\n")
	if strings.TrimSpace(body) == events.DoneSentinel {
		return Result{Done: true}
	}

	if !json.Valid([]byte(body)) {
		return Result{Err: &ParseError{Kind: NotJSON, Body: body, Err: errors.New("invalid json")}}
	}

	var ev events.Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return Result{Err: &ParseError{Kind: BadEnvelope, Body: body, Err: err}}
	}
	if ev.Type == "" {
		return Result{Err: &ParseError{Kind: BadEnvelope, Body: body, Err: errors.New("missing event type")}}
	}
	return Result{Event: ev}
}

// Parse yields a Result for every frame read from r.
func Parse(r io.Reader) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		for frame, err := range Frames(r) {
			if errors.Is(err, ErrFrameTooLarge) {
				if !yield(Result{Err: &ParseError{Kind: TooLarge, Err: err}}, nil) {
					return
				}
				continue
			}
			if err != nil {
				yield(Result{}, err)
				return
			}
			res := ParseFrame(frame)
			if res.Empty() {
				continue
			}
			if !yield(res, nil) {
				return
			}
		}
	}
}
