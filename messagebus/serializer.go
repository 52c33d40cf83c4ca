package messagebus

import "fmt"

// Serializer encodes and decodes opaque payload objects for the wire.
// Both ends of a link must agree on the choice; it is fixed at bus
// construction.
type Serializer interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// newSerializer resolves the Config.Serializer name to a concrete
// Serializer, defaulting to JSON for an empty value. An unrecognized
// name is an error.
func newSerializer(name string) (Serializer, error) {
	switch name {
	case "", "json":
		return jsonSerializer{}, nil
	case "fast":
		return msgpackSerializer{}, nil
	default:
		return nil, fmt.Errorf("messagebus: unknown serializer %q", name)
	}
}
