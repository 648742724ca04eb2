// Package codec builds the 512-byte encrypted command frames the LCD
// expects: a 500-byte plaintext header+argument region, DES-CBC encrypted
// with PKCS#7 padding to 504 bytes, copied into a zeroed 512-byte frame and
// trailer-stamped. The cipher key and IV are both the fixed ASCII string
// "slv3tuzx" — an obfuscation, not a security measure, preserved exactly
// for wire compatibility.
package codec

import (
	"crypto/cipher"
	"crypto/des"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"lcdring/internal/devproto"
)

// clock is the process-wide monotonic millisecond counter used for the
// header timestamp. It is fixed at package init, matching spec.md's "the
// timestamp epoch is a process-wide constant fixed at startup".
var clock = newMonotonicClock()

type monotonicClock struct {
	start time.Time
}

func newMonotonicClock() *monotonicClock {
	return &monotonicClock{start: time.Now()}
}

// millis returns the elapsed milliseconds since process start, wrapped
// modulo 2^32 as the wire format requires.
func (c *monotonicClock) millis() uint32 {
	return uint32(uint64(time.Since(c.start).Milliseconds()) & 0xFFFFFFFF)
}

// overrideMillis lets tests pin a timestamp deterministically.
var overrideMillis atomic.Pointer[uint32]

// SetTimestampOverride pins the header timestamp for deterministic tests.
// Passing nil restores the real clock.
func SetTimestampOverride(ms *uint32) {
	overrideMillis.Store(ms)
}

func currentMillis() uint32 {
	if p := overrideMillis.Load(); p != nil {
		return *p
	}
	return clock.millis()
}

// Build constructs a 512-byte encrypted command frame for cmd, with args
// copied into the argument region starting at plaintext offset 8
// (truncated at 492 bytes, i.e. plaintext offset 500). Deterministic given
// (cmd, args, timestamp); the timestamp is the only source of
// non-determinism.
func Build(cmd byte, args []byte) [devproto.CommandFrameSize]byte {
	plaintext := make([]byte, devproto.PlaintextSize)
	plaintext[0] = cmd
	plaintext[2] = 0x1A
	plaintext[3] = 0x6D
	binary.LittleEndian.PutUint32(plaintext[4:8], currentMillis())

	n := copy(plaintext[8:], args)
	_ = n // truncation is implicit: copy never exceeds len(plaintext[8:])

	ciphertext := encrypt(plaintext)

	// ciphertext is always exactly PlaintextSize+pad (504) bytes, less
	// than the 512-byte frame; copy handles that without truncating.
	// Any future change to the padding scheme that produced a longer
	// ciphertext would be truncated here, per spec.
	var frame [devproto.CommandFrameSize]byte
	copy(frame[:], ciphertext)
	frame[510] = devproto.TrailerByte0
	frame[511] = devproto.TrailerByte1
	return frame
}

// BuildPayloadPacket builds a PayloadPacket: a CommandFrame immediately
// followed by payload bytes, ready for a single bulk OUT transfer.
func BuildPayloadPacket(cmd byte, args []byte, payload []byte) []byte {
	frame := Build(cmd, args)
	out := make([]byte, devproto.CommandFrameSize+len(payload))
	copy(out, frame[:])
	copy(out[devproto.CommandFrameSize:], payload)
	return out
}

// encrypt DES-CBC encrypts plaintext with PKCS#7 padding to a multiple of
// the 8-byte block size, using the fixed key as both key and IV.
func encrypt(plaintext []byte) []byte {
	block, err := des.NewCipher(devproto.CipherKey)
	if err != nil {
		// The key is a fixed 8-byte constant; this can never fail.
		panic(fmt.Sprintf("codec: des.NewCipher: %v", err))
	}

	padded := pkcs7Pad(plaintext, devproto.CipherBlockSize)
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, devproto.CipherKey)
	cbc.CryptBlocks(ciphertext, padded)
	return ciphertext
}

// decrypt reverses encrypt; used only by tests to assert round-trip
// invariants from spec.md §8.
func decrypt(ciphertext []byte) ([]byte, error) {
	block, err := des.NewCipher(devproto.CipherKey)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%devproto.CipherBlockSize != 0 {
		return nil, fmt.Errorf("codec: ciphertext not block-aligned: %d bytes", len(ciphertext))
	}
	plaintext := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, devproto.CipherKey)
	cbc.CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("codec: empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("codec: invalid PKCS#7 padding")
	}
	return data[:len(data)-padLen], nil
}
