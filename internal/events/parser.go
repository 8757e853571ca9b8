package events

import (
	"bytes"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultMaxRecordBytes bounds a single record; longer output without a
// newline is cut into Log records of this size.
const DefaultMaxRecordBytes = 1 << 20

// Options configures a Parser.
type Options struct {
	Stream Stream
	// Heuristic enables marker-phrase completion detection over Log lines.
	Heuristic bool
	// Markers are matched case-insensitively. Empty uses DefaultMarkers.
	Markers        []string
	Window         int
	MaxRecordBytes int
	Now            func() time.Time
}

// Parser splits one output stream into records and classifies them. A
// Parser is not safe for concurrent use; use one per stream.
type Parser struct {
	stream  Stream
	maxSize int
	now     func() time.Time
	buf     []byte
	scanner *CompletionScanner
}

// NewParser returns a parser for a single stream.
func NewParser(opts Options) *Parser {
	p := &Parser{
		stream:  opts.Stream,
		maxSize: opts.MaxRecordBytes,
		now:     opts.Now,
	}
	if p.stream == "" {
		p.stream = StreamStdout
	}
	if p.maxSize <= 0 {
		p.maxSize = DefaultMaxRecordBytes
	}
	if p.now == nil {
		p.now = time.Now
	}
	if opts.Heuristic {
		p.scanner = NewCompletionScanner(opts.Markers, opts.Window)
	}
	return p
}

// Feed consumes an arbitrary chunk and returns the events for every record
// completed by it. Chunk boundaries need not align with records.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)
	var out []Event
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]
		if len(line) > p.maxSize {
			out = p.appendOversized(out, line)
			continue
		}
		out = p.appendRecord(out, string(line))
	}
	for len(p.buf) > p.maxSize {
		out = p.appendLog(out, string(p.buf[:p.maxSize]))
		p.buf = p.buf[p.maxSize:]
	}
	if len(p.buf) == 0 {
		p.buf = nil
	}
	return out
}

// Flush emits a trailing record that was never newline-terminated.
func (p *Parser) Flush() []Event {
	if len(p.buf) == 0 {
		return nil
	}
	line := string(p.buf)
	p.buf = nil
	return p.appendRecord(nil, line)
}

func (p *Parser) appendOversized(out []Event, line []byte) []Event {
	for len(line) > 0 {
		n := min(len(line), p.maxSize)
		out = p.appendLog(out, string(line[:n]))
		line = line[n:]
	}
	return out
}

func (p *Parser) appendRecord(out []Event, line string) []Event {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return out
	}
	ev, ok := classifyStructured(line)
	if !ok {
		return p.appendLog(out, line)
	}
	ev.Time = p.now()
	ev.Stream = p.stream
	return append(out, ev)
}

func (p *Parser) appendLog(out []Event, line string) []Event {
	now := p.now()
	out = append(out, Event{
		Kind:    KindLog,
		Time:    now,
		Stream:  p.stream,
		Message: line,
		Raw:     line,
	})
	if p.scanner == nil {
		return out
	}
	if marker, ok := p.scanner.Observe(line); ok {
		out = append(out, Event{
			Kind:    KindComplete,
			Time:    now,
			Stream:  p.stream,
			Message: line,
			Raw:     line,
			Completion: &Completion{
				Success:  true,
				ExitCode: -1,
				Source:   SourceHeuristic,
				Message:  "matched completion marker " + `"` + marker + `"`,
			},
		})
	}
	return out
}

// Classify returns the event for a single complete record, without the
// heuristic scan.
func Classify(line string) Event {
	if ev, ok := classifyStructured(line); ok {
		return ev
	}
	return Event{Kind: KindLog, Message: line, Raw: line}
}

// classifyStructured handles records that are JSON objects. ok is false for
// anything else, which callers treat as a Log line.
func classifyStructured(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") || !gjson.Valid(trimmed) {
		return Event{}, false
	}
	doc := gjson.Parse(trimmed)
	if !doc.IsObject() {
		return Event{}, false
	}

	typ := doc.Get("type")
	ev := Event{Raw: trimmed, Type: typ.String(), Message: doc.Get("message").String()}
	if typ.Type != gjson.String {
		ev.Kind = KindUnknown
		return ev, true
	}

	switch strings.ToLower(strings.TrimSpace(typ.Str)) {
	case "progress":
		ev.Kind = KindProgress
		ev.Progress = &Progress{
			Current: int(doc.Get("current").Int()),
			Total:   int(doc.Get("total").Int()),
			Item:    firstString(doc, "item", "id", "file"),
			Phase:   doc.Get("phase").String(),
			Message: ev.Message,
			percent: doc.Get("percent").Float(),
		}
	case "result":
		ev.Kind = KindResult
		ev.Result = &Result{
			ID:      firstString(doc, "id", "item", "file"),
			Success: resultSuccess(doc),
			Message: ev.Message,
			Output:  firstString(doc, "output", "path"),
		}
	case "error":
		ev.Kind = KindError
		if ev.Message == "" {
			ev.Message = doc.Get("error").String()
		}
	case "complete", "completion", "done":
		ev.Kind = KindComplete
		success := true
		if v := doc.Get("success"); v.Exists() {
			success = v.Bool()
		}
		ev.Completion = &Completion{
			Success:  success,
			ExitCode: -1,
			Source:   SourceStructured,
			Message:  ev.Message,
		}
	default:
		ev.Kind = KindUnknown
	}
	return ev, true
}

// resultSuccess reads "success" when present, then "status"; a result with
// an "error" field is a failure. A bare result reports a finished item.
func resultSuccess(doc gjson.Result) bool {
	if v := doc.Get("success"); v.Exists() {
		return v.Bool()
	}
	if v := doc.Get("status"); v.Exists() {
		switch strings.ToLower(strings.TrimSpace(v.String())) {
		case "success", "succeeded", "ok", "done", "processed":
			return true
		default:
			return false
		}
	}
	return doc.Get("error").String() == ""
}

func firstString(doc gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := doc.Get(key); v.Exists() && strings.TrimSpace(v.String()) != "" {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}
