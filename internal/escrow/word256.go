package escrow

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Word256 is an unsigned 256-bit integer represented as two big-endian
// 128-bit limbs, matching the on-chain word layout: hashes and amounts
// both compare high-limb-first then low-limb-first.
type Word256 struct {
	High big.Int
	Low  big.Int
}

var maxLimb = new(big.Int).Lsh(big.NewInt(1), 128)

// Word256FromBigEndianBytes splits a 32-byte big-endian buffer into its
// high and low 128-bit limbs. Buffers shorter than 32 bytes are treated as
// left-padded with zeros.
func Word256FromBigEndianBytes(b []byte) Word256 {
	var buf [32]byte
	copy(buf[32-len(b):], b)
	var w Word256
	w.High.SetBytes(buf[:16])
	w.Low.SetBytes(buf[16:])
	return w
}

// Bytes32 renders the word back to its 32-byte big-endian form.
func (w Word256) Bytes32() [32]byte {
	var out [32]byte
	hb := w.High.Bytes()
	lb := w.Low.Bytes()
	copy(out[16-len(hb):16], hb)
	copy(out[32-len(lb):32], lb)
	return out
}

// Cmp compares two 256-bit values: high limb first, then low limb.
func (w Word256) Cmp(other Word256) int {
	if c := w.High.Cmp(&other.High); c != 0 {
		return c
	}
	return w.Low.Cmp(&other.Low)
}

// IsZero reports whether both limbs are zero.
func (w Word256) IsZero() bool {
	return w.High.Sign() == 0 && w.Low.Sign() == 0
}

// Sign reports the sign of the combined value (0 or 1; these are unsigned).
func (w Word256) Sign() int {
	if w.High.Sign() != 0 {
		return 1
	}
	return w.Low.Sign()
}

// String renders the combined decimal value, for logging and error fields.
func (w Word256) String() string {
	return w.AsBigInt().String()
}

// AsBigInt combines the limbs into a single big.Int: (high << 128) | low.
func (w Word256) AsBigInt() *big.Int {
	v := new(big.Int).Lsh(&w.High, 128)
	return v.Or(v, &w.Low)
}

// Word256FromUint64 builds a value whose high limb is zero.
func Word256FromUint64(v uint64) Word256 {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[24:], v)
	return Word256FromBigEndianBytes(buf[:])
}

// Word256FromBigInt builds a Word256 from a non-negative big.Int that fits
// in 256 bits; a wider value makes it panic (big.Int.FillBytes).
func Word256FromBigInt(v *big.Int) Word256 {
	b := new(big.Int).Set(v).FillBytes(make([]byte, 32))
	return Word256FromBigEndianBytes(b)
}

// Word256FromHex parses a hex string (with or without a 0x prefix) into a
// Word256.
func Word256FromHex(s string) (Word256, error) {
	s = trimHexPrefix(s)
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return Word256{}, fmt.Errorf("escrow: invalid hex 256-bit value %q", s)
	}
	if v.Sign() < 0 || v.BitLen() > 256 {
		return Word256{}, fmt.Errorf("escrow: hex value %q out of 256-bit range", s)
	}
	b := v.FillBytes(make([]byte, 32))
	return Word256FromBigEndianBytes(b), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}

// IsWellFormedAddress reports whether address is a plausible on-chain
// address: hex with an optional 0x prefix, no more than 64 hex digits after
// the prefix (66 characters with it, a 32-byte felt), and non-empty once the
// prefix is stripped.
func IsWellFormedAddress(address string) bool {
	hexPart := trimHexPrefix(address)
	if hexPart == "" || len(hexPart) > 64 {
		return false
	}
	for _, r := range hexPart {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

// Word256FromDecimal parses a base-10 string into a Word256, used when
// reading amounts that arrive as decimal strings off the chain RPC.
func Word256FromDecimal(s string) (Word256, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Word256{}, fmt.Errorf("escrow: invalid decimal 256-bit value %q", s)
	}
	if v.Sign() < 0 || v.BitLen() > 256 {
		return Word256{}, fmt.Errorf("escrow: decimal value %q out of 256-bit range", s)
	}
	b := v.FillBytes(make([]byte, 32))
	return Word256FromBigEndianBytes(b), nil
}

// LowHigh256 is the little-endian (low, high) u128 pair the chain RPC
// expects for entrypoint arguments, per §6.1.
type LowHigh256 struct {
	Low  *big.Int
	High *big.Int
}

// LowHigh returns the (low, high) pair for submitting this value as a chain
// call argument.
func (w Word256) LowHigh() LowHigh256 {
	return LowHigh256{Low: new(big.Int).Set(&w.Low), High: new(big.Int).Set(&w.High)}
}
