package sink

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/gesk/internal/ingest"
	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects the payload format of forwarded and jsonl records.
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

func ParseEncoding(raw string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(strings.TrimSpace(raw))); e {
	case "":
		return EncodingJSON, nil
	case EncodingJSON, EncodingMsgpack:
		return e, nil
	default:
		return "", fmt.Errorf("sink: unknown encoding %q", raw)
	}
}

// Message is the structured form of an entry.
type Message struct {
	Time     time.Time `json:"time" msgpack:"time"`
	Severity string    `json:"severity" msgpack:"severity"`
	Payload  string    `json:"payload" msgpack:"payload"`
	Source   string    `json:"source" msgpack:"source"`
	Session  string    `json:"session" msgpack:"session"`
	Plain    bool      `json:"plain,omitempty" msgpack:"plain,omitempty"`
}

func NewMessage(e ingest.Entry) Message {
	return Message{
		Time:     e.Time,
		Severity: e.Record.Severity.String(),
		Payload:  e.Record.Payload,
		Source:   e.Source,
		Session:  e.Session,
		Plain:    e.Plain,
	}
}

func (enc Encoding) Marshal(e ingest.Entry) ([]byte, error) {
	msg := NewMessage(e)
	switch enc {
	case EncodingMsgpack:
		return msgpack.Marshal(&msg)
	case EncodingJSON, "":
		return json.Marshal(msg)
	default:
		return nil, fmt.Errorf("sink: unknown encoding %q", string(enc))
	}
}
