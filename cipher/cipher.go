// Package cipher provides the AES-128-CTR confidentiality layer for the
// radio link, with the implicit nonce derivation described in spec §4.2.
//
// No third-party AES implementation appears anywhere in the retrieved
// example pack; Go's standard crypto/aes and crypto/cipher are the
// idiomatic and only reasonable choice here (see DESIGN.md).
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
)

// KeySize is the AES-128 key length in bytes.
const KeySize = 16

// Cipher encrypts/decrypts packet payloads in place under a shared
// 128-bit key. AES-CTR is its own inverse: the same Apply call both
// encrypts and decrypts.
//
// Nonce uniqueness is only as strong as (seq, src, dst) distinctness: with
// a 16-bit seq and no rekey, two messages from the same transmitter can
// reuse a nonce once 65536 distinct messages have been sent in one
// direction under one key. This is accepted by design (spec §9 Open
// Question 4) — adopters requiring stronger guarantees must widen seq or
// rotate keys; this package does neither.
type Cipher struct {
	block cipher.Block
}

// New constructs a Cipher from a 16-byte AES-128 key.
func New(key [KeySize]byte) (*Cipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &Cipher{block: block}, nil
}

// nonce builds the 16-byte CTR nonce: bytes 0-3 are seq little-endian,
// byte 4 is src, byte 5 is dst, bytes 6-15 are zero.
func nonce(seq uint16, src, dst uint8) [aes.BlockSize]byte {
	var n [aes.BlockSize]byte
	n[0] = byte(seq)
	n[1] = byte(seq >> 8)
	n[2] = 0
	n[3] = 0
	n[4] = src
	n[5] = dst
	return n
}

// Apply XORs payload with the AES-CTR keystream derived from (seq, src,
// dst), in place. Calling Apply twice with the same arguments recovers the
// original bytes. Decryption always "succeeds" mathematically; rejection
// of a wrong key or corrupt ciphertext is the caller's job via CRC, per
// spec §4.2.
func (c *Cipher) Apply(payload []byte, seq uint16, src, dst uint8) {
	n := nonce(seq, src, dst)
	stream := cipher.NewCTR(c.block, n[:])
	stream.XORKeyStream(payload, payload)
}
