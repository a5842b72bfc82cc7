package server

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dotside-studios/ndefscan/ndef"
	"github.com/dotside-studios/ndefscan/nfc"
	"github.com/dotside-studios/ndefscan/protocol"
)

// MessagePayload converts a decoded message for JSON output.
func MessagePayload(m *ndef.Message) *protocol.NDEFMessagePayload {
	if m == nil {
		return nil
	}
	records := make([]protocol.NDEFRecordPayload, 0, len(m.Records))
	for _, r := range m.Records {
		records = append(records, protocol.NDEFRecordPayload{
			TNF:     uint8(r.TNF),
			TNFName: r.TNF.String(),
			Type:    r.TypeString(),
			ID:      r.ID,
			Payload: r.Payload,
		})
	}
	return &protocol.NDEFMessagePayload{Type: "ndef", Records: records}
}

// ValuePayload converts an interpreted record for JSON output.
func ValuePayload(v ndef.DisplayValue) protocol.DisplayValuePayload {
	return protocol.DisplayValuePayload{
		Kind:     v.Kind.String(),
		Text:     v.Text,
		Language: v.Language,
		Encoding: v.Encoding,
		URI:      v.URI,
		MIMEType: v.MIMEType,
		Data:     v.Data,
		Display:  v.String(),
	}
}

func valuePayloads(values []ndef.DisplayValue) []protocol.DisplayValuePayload {
	if len(values) == 0 {
		return nil
	}
	out := make([]protocol.DisplayValuePayload, 0, len(values))
	for _, v := range values {
		out = append(out, ValuePayload(v))
	}
	return out
}

// ResultPayload converts the terminal result of a session.
func ResultPayload(r nfc.Result) protocol.SessionResultPayload {
	p := protocol.SessionResultPayload{
		SessionID:  r.SessionID,
		State:      r.State.String(),
		Text:       r.DisplayText(),
		Values:     valuePayloads(r.Values),
		Message:    MessagePayload(r.Message),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if h := r.Handle; h != nil {
		p.UID = h.UIDString()
		p.Technology = h.Technology.String()
		p.Type = h.Type
		p.Source = h.Source
	}
	if r.Value != nil {
		v := ValuePayload(*r.Value)
		p.Value = &v
	}
	if r.InterpretErr != nil {
		p.InterpretErr = r.InterpretErr.Error()
	}
	if r.Err != nil {
		errStr := r.Err.Error()
		p.Error = &errStr
		p.ErrorCode = nfc.GetErrorCode(r.Err).String()
	}
	return p
}

// DecodeNDEF decodes the message carried by req.
func DecodeNDEF(req protocol.DecodeRequest) (protocol.DecodeResponse, error) {
	raw, err := decodeData(req.Data, req.Encoding)
	if err != nil {
		return protocol.DecodeResponse{}, err
	}
	msg, err := ndef.DecodeMessage(raw)
	if err != nil {
		return protocol.DecodeResponse{}, err
	}

	resp := protocol.DecodeResponse{Message: MessagePayload(msg)}
	values, interpretErr := ndef.InterpretMessage(msg)
	resp.Values = valuePayloads(values)
	if interpretErr != nil {
		resp.InterpretErr = interpretErr.Error()
	}
	if first, ok := msg.First(); ok {
		if v, err := ndef.Interpret(first); err == nil {
			resp.Text = v.String()
		}
	}
	return resp, nil
}

func decodeData(data, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", "hex":
		cleaned := strings.NewReplacer(" ", "", ":", "", "\n", "").Replace(data)
		b, err := hex.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("invalid hex data: %w", err)
		}
		return b, nil
	case "base64":
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q (must be 'hex' or 'base64')", encoding)
	}
}

// BuildNDEFMessage builds the records of an encode request.
func BuildNDEFMessage(req protocol.EncodeRequest) (*ndef.Message, error) {
	if len(req.Records) == 0 {
		return nil, fmt.Errorf("no records provided in encode request")
	}

	records := make([]ndef.Record, 0, len(req.Records))
	for i, input := range req.Records {
		recordType := input.Type
		if recordType == "" {
			recordType = "text"
		}

		switch recordType {
		case "text":
			language := input.Language
			if language == "" {
				language = "en"
			}
			r, err := ndef.NewTextRecord(input.Content, language)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			records = append(records, r)
		case "uri":
			records = append(records, ndef.NewURIRecord(input.Content))
		case "mime":
			if input.MimeType == "" {
				return nil, fmt.Errorf("record %d: mimeType is required", i)
			}
			records = append(records, ndef.NewMIMERecord(input.MimeType, []byte(input.Content)))
		case "external":
			if input.MimeType == "" {
				return nil, fmt.Errorf("record %d: external type name is required in mimeType", i)
			}
			records = append(records, ndef.NewExternalRecord(input.MimeType, []byte(input.Content)))
		default:
			return nil, fmt.Errorf("unsupported record type '%s' at index %d", recordType, i)
		}
	}
	return ndef.NewMessage(records...), nil
}

// EncodeNDEF encodes the records of req.
func EncodeNDEF(req protocol.EncodeRequest) (protocol.EncodeResponse, error) {
	msg, err := BuildNDEFMessage(req)
	if err != nil {
		return protocol.EncodeResponse{}, err
	}

	var b []byte
	if req.ChunkSize > 0 {
		if len(msg.Records) != 1 {
			return protocol.EncodeResponse{}, fmt.Errorf("chunked encoding needs exactly one record, got %d", len(msg.Records))
		}
		b, err = ndef.EncodeChunked(msg.Records[0], req.ChunkSize)
	} else {
		b, err = ndef.EncodeMessage(msg)
	}
	if err != nil {
		return protocol.EncodeResponse{}, err
	}
	return protocol.EncodeResponse{
		Hex:    hex.EncodeToString(b),
		Base64: base64.StdEncoding.EncodeToString(b),
		Length: len(b),
	}, nil
}
