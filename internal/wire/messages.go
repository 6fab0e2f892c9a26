package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMalformed marks a message or record that does not decode.
var ErrMalformed = errors.New("malformed message")

// Record is the server copy of one entity. SeqTime is the server time of the
// last change in unix milliseconds.
type Record struct {
	ID         string          `json:"id"`
	Category   string          `json:"category"`
	IncidentID int64           `json:"incident_id"`
	RoomID     int64           `json:"room_id"`
	Owner      string          `json:"owner"`
	Payload    json.RawMessage `json:"payload"`
	SeqTime    int64           `json:"seq_time"`
}

// Validate checks the fields every stored record must carry.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: record without id", ErrMalformed)
	}
	if r.Category == "" {
		return fmt.Errorf("%w: record %s without category", ErrMalformed, r.ID)
	}
	if len(r.Payload) == 0 || r.Payload[0] != '{' {
		return fmt.Errorf("%w: record %s payload is not an object", ErrMalformed, r.ID)
	}
	return nil
}

type PingResponse struct {
	Status string `json:"status"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type PushRequest struct {
	Record Record `json:"record"`
}

type PushResponse struct {
	Record Record `json:"record"`
}

type DeleteRequest struct {
	Category string `json:"category"`
	ID       string `json:"id"`
}

type PullRequest struct {
	Category   string `json:"category"`
	IncidentID int64  `json:"incident_id"`
	RoomID     int64  `json:"room_id"`
	Since      int64  `json:"since"`
}

// PullResponse keeps records raw so one bad record does not spoil the rest.
// Until is the newest seq time of the response in unix milliseconds,
// tombstones included; the next pull asks for what came after it.
type PullResponse struct {
	Records []json.RawMessage `json:"records"`
	Deleted []string          `json:"deleted"`
	Until   int64             `json:"until"`
}

type Empty struct{}

// Encode converts v to a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// Decode fills v from s. A nil s decodes as an empty object.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %T: %v", ErrMalformed, v, err)
	}
	return nil
}

// DecodeRecord decodes and validates one raw record of a pull response.
func DecodeRecord(raw json.RawMessage) (Record, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}
