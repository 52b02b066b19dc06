package lineage

import (
	"encoding/hex"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
)

// ContentHash computes content_hash = BLAKE3(payload), hex-encoded.
func ContentHash(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// EncodeJSON and EncodeMsgpack/DecodeJSON/DecodeMsgpack give every
// typed lineage record dual encodings.

func EncodeJSON(v any) ([]byte, error) { return json.Marshal(v) }

func DecodeJSON(data []byte, v any) error { return json.Unmarshal(data, v) }

func EncodeMsgpack(v any) ([]byte, error) { return msgpack.Marshal(v) }

func DecodeMsgpack(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// DecodeAs decodes data as JSON if it looks like JSON (a leading '{' or
// '[' byte), otherwise as msgpack. Typed-record decoders use this so a
// StoredTurn's Payload can be read back regardless of which encoding
// the writer used.
func DecodeAs(data []byte, v any) error {
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return DecodeJSON(data, v)
	}
	return DecodeMsgpack(data, v)
}
