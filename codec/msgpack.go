package codec

import "github.com/vmihailenco/msgpack/v5"

// MsgpackCodec is the optional binary codec spec.md calls out as an
// alternate capability alongside the default JSON codec.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackCodec) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

func (MsgpackCodec) Name() string { return "msgpack" }
