package protocol

// NDEFRecordPayload is the JSON-friendly representation of an NDEF record.
type NDEFRecordPayload struct {
	TNF     uint8  `json:"tnf"`
	TNFName string `json:"tnfName"`
	Type    string `json:"type"`
	ID      []byte `json:"id,omitempty"`
	Payload []byte `json:"payload"` // base64 in JSON
}

// NDEFMessagePayload is the JSON-friendly representation of an NDEF message.
type NDEFMessagePayload struct {
	Type    string              `json:"type"` // "ndef"
	Records []NDEFRecordPayload `json:"records"`
}

// DisplayValuePayload is an interpreted record.
type DisplayValuePayload struct {
	Kind     string `json:"kind"` // "text", "uri" or "mime"
	Text     string `json:"text,omitempty"`
	Language string `json:"language,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	URI      string `json:"uri,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`

	// Display is the rendered value
	Display string `json:"display"`
}
