// Package crypt implements the pluggable encryption codecs behind the
// EncryptAlgo option (§6). AES-GCM stands in for the legacy
// blowfish-pluggable cipher slot named in SPEC_FULL.md §1: it is the
// authenticated cipher golang.org/x/crypto/pbkdf2 makes easiest to key
// correctly from a low-entropy passphrase, and it gives the archive
// integrity-checked ciphertext for free on top of the Fletcher-32 the
// format already carries.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// kdfIterations and kdfSalt fix the PBKDF2 derivation so the same
// passphrase always yields the same key across an independent save and
// restore run; there is no per-archive salt field in the wire format to
// carry a random one.
const kdfIterations = 100000

var kdfSalt = []byte("fsarchiver-aes-gcm-pbkdf2-salt-v1")

// Algorithm ids stored in a data block header (§3).
const (
	AlgoNone byte = iota
	AlgoAESGCM
)

// Codec encrypts/decrypts one data block's already-compressed payload.
type Codec interface {
	ID() byte
	Name() string
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// NoneCodec performs no encryption; used when EncryptAlgo is unset.
type NoneCodec struct{}

func (NoneCodec) ID() byte     { return AlgoNone }
func (NoneCodec) Name() string { return "none" }
func (NoneCodec) Encrypt(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
func (NoneCodec) Decrypt(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// AESGCMCodec derives a 256-bit key from a passphrase (EncryptPass,
// 6..64 chars per §6) via PBKDF2-HMAC-SHA256 and encrypts each block
// independently with a fresh random nonce prefixed to the ciphertext.
type AESGCMCodec struct {
	aead cipher.AEAD
}

// NewAESGCMCodec builds a codec from a passphrase.
func NewAESGCMCodec(passphrase string) (*AESGCMCodec, error) {
	if len(passphrase) < 6 || len(passphrase) > 64 {
		return nil, errs.New(errs.InvalidArg, "encryption passphrase must be 6..64 characters")
	}
	key := pbkdf2.Key([]byte(passphrase), kdfSalt, kdfIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, "construct AES cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, "construct AES-GCM AEAD", err)
	}
	return &AESGCMCodec{aead: aead}, nil
}

func (c *AESGCMCodec) ID() byte     { return AlgoAESGCM }
func (c *AESGCMCodec) Name() string { return "aes-gcm" }

func (c *AESGCMCodec) Encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.Wrap(errs.Unknown, "generate nonce", err)
	}
	return c.aead.Seal(nonce, nonce, data, nil), nil
}

func (c *AESGCMCodec) Decrypt(data []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(data) < n {
		return nil, errs.New(errs.Corrupt, "ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:n], data[n:]
	out, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// A failed authentication tag on the very first block is exactly
		// how a wrong passphrase manifests (§8 scenario 5, §7 WrongArchive).
		return nil, errs.Wrap(errs.WrongArchive, "AES-GCM authentication failed", err)
	}
	return out, nil
}
