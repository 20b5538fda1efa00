package uploader

import "encoding/json"

// Serializer encodes the metadata body and decodes the typed completion
// response. The core never guesses at wire formats beyond JSON's ubiquity in
// this protocol family; callers with a different metadata format supply their
// own Serializer.
type Serializer interface {
	// Marshal encodes v into bytes plus the Content-Type that describes them.
	Marshal(v any) (data []byte, contentType string, err error)
	// Unmarshal decodes data into a new value of the response type and
	// returns it as `any`.
	Unmarshal(data []byte) (any, error)
}

// jsonSerializer is the default Serializer. Marshal turns a nil metadata
// value into no body and no Content-Type, rather than guessing at "null"
// semantics.
type jsonSerializer struct {
	// newResponse, when non-nil, builds a fresh value (typically a pointer)
	// for Unmarshal to decode into; when nil, Unmarshal decodes nothing.
	newResponse func() any
}

func newJSONSerializer(newResponse func() any) *jsonSerializer {
	return &jsonSerializer{newResponse: newResponse}
}

func (s *jsonSerializer) Marshal(v any) ([]byte, string, error) {
	if v == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json; charset=UTF-8", nil
}

func (s *jsonSerializer) Unmarshal(data []byte) (any, error) {
	if s.newResponse == nil || len(data) == 0 {
		return nil, nil
	}
	out := s.newResponse()
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}
