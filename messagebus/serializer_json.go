package messagebus

import "encoding/json"

// jsonSerializer is the standards-based encoder: UTF-8, non-ASCII
// preserved (json.Marshal writes valid UTF-8 as is, except that it
// escapes <, >, & and U+2028/U+2029 to \uXXXX).
type jsonSerializer struct{}

func (jsonSerializer) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonSerializer) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
