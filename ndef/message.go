package ndef

import "fmt"

// Message is an ordered list of logical records. Decoded messages never
// contain chunks: a chunk run is reassembled into a single record.
type Message struct {
	Records []Record
}

// NewMessage returns a message holding records in order.
func NewMessage(records ...Record) *Message {
	return &Message{Records: records}
}

// First returns the first record of the message.
func (m *Message) First() (Record, bool) {
	if m == nil || len(m.Records) == 0 {
		return Record{}, false
	}
	return m.Records[0], true
}

// DecodeMessage decodes a complete NDEF message from b.
// Bytes after the record carrying ME are ignored.
func DecodeMessage(b []byte) (*Message, error) {
	m, _, err := DecodeMessagePrefix(b)
	return m, err
}

// DecodeMessagePrefix decodes the message at the start of b and also returns
// the number of bytes it occupied.
func DecodeMessagePrefix(b []byte) (*Message, int, error) {
	const op = "DecodeMessage"
	if len(b) == 0 {
		return nil, 0, newError(CodeTruncatedMessage, op, 0, "empty buffer")
	}

	c := NewCursor(b)
	msg := &Message{}

	var (
		inRun      bool
		runHead    Record
		runPayload []byte
	)

	for physical := 0; ; physical++ {
		if c.Remaining() == 0 {
			if inRun {
				return nil, 0, newError(CodeTruncatedMessage, op, c.Offset(), "buffer ends inside chunk run")
			}
			return nil, 0, newError(CodeTruncatedMessage, op, c.Offset(), "buffer ends before message end")
		}

		start := c.Offset()
		rec, err := DecodeRecord(c)
		if err != nil {
			return nil, 0, err
		}

		if physical == 0 && !rec.MessageBegin {
			return nil, 0, newError(CodeInvalidFraming, op, start, "first record does not set MB")
		}
		if physical > 0 && rec.MessageBegin {
			return nil, 0, newError(CodeInvalidFraming, op, start, "record %d sets MB", physical)
		}
		if rec.Chunked && rec.MessageEnd {
			return nil, 0, newError(CodeTruncatedMessage, op, start, "message ends on a chunk that expects continuation")
		}

		if inRun {
			if rec.TNF != TNFUnchanged || len(rec.Type) != 0 || rec.ID != nil {
				return nil, 0, newError(CodeInvalidFraming, op, start, "chunk continuation must be TNF Unchanged without type or id (got %s)", rec.TNF)
			}
			runPayload = append(runPayload, rec.Payload...)
			if rec.Chunked {
				continue
			}
			runHead.Payload = runPayload
			runHead.Chunked = false
			runHead.MessageEnd = rec.MessageEnd
			msg.Records = append(msg.Records, runHead)
			inRun = false
			runHead, runPayload = Record{}, nil
		} else {
			if rec.TNF == TNFUnchanged {
				return nil, 0, newError(CodeInvalidFraming, op, start, "TNF Unchanged outside a chunk run")
			}
			if rec.Chunked {
				inRun = true
				runHead = rec
				runPayload = append([]byte(nil), rec.Payload...)
				continue
			}
			msg.Records = append(msg.Records, rec)
		}

		if rec.MessageEnd {
			return msg, c.Offset(), nil
		}
	}
}

// EncodeMessage serializes m. It always sets MB on the first record and ME
// on the last one and clears both (and CF) everywhere else, overriding the
// flags carried by the records; m itself is not modified.
func EncodeMessage(m *Message) ([]byte, error) {
	if m == nil || len(m.Records) == 0 {
		return nil, ErrEmptyMessage
	}
	last := len(m.Records) - 1
	var out []byte
	for i, r := range m.Records {
		r.MessageBegin = i == 0
		r.MessageEnd = i == last
		r.Chunked = false
		var err error
		out, err = appendRecord(out, r)
		if err != nil {
			return nil, wrapError(CodeMalformedRecord, "EncodeMessage", -1, fmt.Sprintf("record %d", i), err)
		}
	}
	return out, nil
}

// EncodeChunked serializes r as a complete single-record message whose
// payload is split into chunks of at most chunkSize bytes. A payload that
// fits in one chunk is encoded as an ordinary record.
func EncodeChunked(r Record, chunkSize int) ([]byte, error) {
	const op = "EncodeChunked"
	if chunkSize < 1 {
		return nil, newError(CodeMalformedRecord, op, -1, "chunk size %d must be positive", chunkSize)
	}
	if r.TNF == TNFUnchanged {
		return nil, newError(CodeMalformedRecord, op, -1, "cannot chunk a TNF Unchanged record")
	}
	if len(r.Payload) <= chunkSize {
		return EncodeMessage(NewMessage(r))
	}

	var out []byte
	payload := r.Payload
	for first := true; len(payload) > 0; first = false {
		n := min(chunkSize, len(payload))
		chunk := Record{
			TNF:     TNFUnchanged,
			Payload: payload[:n],
			Chunked: n < len(payload),
		}
		if first {
			chunk.TNF = r.TNF
			chunk.Type = r.Type
			chunk.ID = r.ID
			chunk.MessageBegin = true
		}
		chunk.MessageEnd = !chunk.Chunked

		var err error
		if out, err = appendRecord(out, chunk); err != nil {
			return nil, err
		}
		payload = payload[n:]
	}
	return out, nil
}
