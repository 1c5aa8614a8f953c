package chain

import (
	"encoding/hex"
	"fmt"

	"github.com/protocolbridge/ln-escrow-bridge/internal/escrow"
)

// ByteArray is the on-chain byte-array representation of a preimage: a list
// of 31-byte big-endian chunks plus a trailing partial word, matching the
// encoding the chain RPC requires exactly.
type ByteArray struct {
	Data           []string `json:"data"`
	PendingWord    string   `json:"pending_word"`
	PendingWordLen int      `json:"pending_word_len"`
}

const chunkSize = 31

// EncodeByteArray splits preimage into 31-byte big-endian chunks encoded as
// 0x-hex, with the final 0..30 remainder bytes carried separately as
// pending_word/pending_word_len.
func EncodeByteArray(preimage []byte) ByteArray {
	var out ByteArray
	out.Data = make([]string, 0, len(preimage)/chunkSize)
	i := 0
	for ; i+chunkSize <= len(preimage); i += chunkSize {
		out.Data = append(out.Data, "0x"+hex.EncodeToString(preimage[i:i+chunkSize]))
	}
	remainder := preimage[i:]
	out.PendingWord = "0x" + hex.EncodeToString(remainder)
	out.PendingWordLen = len(remainder)
	return out
}

// ParsePhase accepts the multiple serializations a chain client library may
// emit for the Phase enum (numeric, bare string, or a tagged variant object
// with a "variant"/"phase" field) and returns the typed Phase.
func ParsePhase(raw interface{}) (escrow.Phase, error) {
	switch v := raw.(type) {
	case float64:
		return phaseFromInt(int(v))
	case int:
		return phaseFromInt(v)
	case string:
		return phaseFromString(v)
	case map[string]interface{}:
		for _, key := range []string{"variant", "phase", "value"} {
			if inner, ok := v[key]; ok {
				return ParsePhase(inner)
			}
		}
		return 0, fmt.Errorf("chain: unrecognized phase object %+v", v)
	default:
		return 0, fmt.Errorf("chain: unrecognized phase encoding %T", raw)
	}
}

func phaseFromInt(v int) (escrow.Phase, error) {
	switch v {
	case 0:
		return escrow.PhaseNone, nil
	case 1:
		return escrow.PhaseLocked, nil
	case 2:
		return escrow.PhaseClaimed, nil
	case 3:
		return escrow.PhaseRefunded, nil
	default:
		return 0, fmt.Errorf("chain: phase value %d out of range", v)
	}
}

func phaseFromString(v string) (escrow.Phase, error) {
	switch v {
	case "None", "none", "0":
		return escrow.PhaseNone, nil
	case "Locked", "locked", "1":
		return escrow.PhaseLocked, nil
	case "Claimed", "claimed", "2":
		return escrow.PhaseClaimed, nil
	case "Refunded", "refunded", "3":
		return escrow.PhaseRefunded, nil
	default:
		return 0, fmt.Errorf("chain: unrecognized phase string %q", v)
	}
}
