package messagebus

import "github.com/vmihailenco/msgpack/v5"

// msgpackSerializer is the "fast" native encoder, trading JSON's
// readability for a smaller and quicker-to-parse wire format.
type msgpackSerializer struct{}

func (msgpackSerializer) Encode(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackSerializer) Decode(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}
