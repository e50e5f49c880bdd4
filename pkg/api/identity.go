package api

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
)

var (
	ErrKeyBadBase64       = errors.New("public key is not valid base64")
	ErrKeyBadPoint        = errors.New("public key is not a valid curve point")
	ErrSignatureBadBase64 = errors.New("signature is not valid base64")
	ErrSignatureBadLength = errors.New("signature has wrong length")
	ErrSignatureInvalid   = errors.New("signature verification failed")
)

const (
	compressedPointSize = 33
	signatureSize       = 64
)

var identityCurve = elliptic.P256()

// Identity — публичный ключ ECDSA P-256. Каноническая форма: base64
// сжатой точки SEC1 (33 байта). Неизменяемое значение, сравнение структурное.
type Identity struct {
	x, y *big.Int
}

func ParseIdentity(s string) (Identity, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Identity{}, ErrKeyBadBase64
	}

	if len(raw) != compressedPointSize {
		return Identity{}, ErrKeyBadPoint
	}

	x, y := elliptic.UnmarshalCompressed(identityCurve, raw)
	if x == nil {
		return Identity{}, ErrKeyBadPoint
	}

	return Identity{x: x, y: y}, nil
}

func (id Identity) String() string {
	raw := elliptic.MarshalCompressed(identityCurve, id.x, id.y)
	return base64.StdEncoding.EncodeToString(raw)
}

func (id Identity) Equal(other Identity) bool {
	if id.x == nil || other.x == nil {
		return id.x == nil && other.x == nil
	}

	return id.x.Cmp(other.x) == 0 && id.y.Cmp(other.y) == 0
}

func (id Identity) IsZero() bool {
	return id.x == nil
}

func (id Identity) publicKey() *ecdsa.PublicKey {
	return &ecdsa.PublicKey{Curve: identityCurve, X: id.x, Y: id.y}
}

func (id Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *Identity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("public key must be a string: %w", err)
	}

	parsed, err := ParseIdentity(s)
	if err != nil {
		return err
	}

	*id = parsed

	return nil
}

// SigningKey — приватная половина Identity, живёт только на стороне клиента.
type SigningKey struct {
	priv *ecdsa.PrivateKey
}

func GenerateSigningKey() (*SigningKey, error) {
	priv, err := ecdsa.GenerateKey(identityCurve, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	return &SigningKey{priv: priv}, nil
}

func (k *SigningKey) Identity() Identity {
	return Identity{x: k.priv.PublicKey.X, y: k.priv.PublicKey.Y}
}

// Sign подписывает message: подпись считается над SHA-256 дайджестом,
// кодируется как 64 байта r||s с выравниванием по старшему разряду.
func (k *SigningKey) Sign(message []byte) (Signature, error) {
	digest := sha256.Sum256(message)

	r, s, err := ecdsa.Sign(rand.Reader, k.priv, digest[:])
	if err != nil {
		return Signature{}, fmt.Errorf("ecdsa sign: %w", err)
	}

	var sig Signature
	r.FillBytes(sig.raw[:signatureSize/2])
	s.FillBytes(sig.raw[signatureSize/2:])

	return sig, nil
}

// Signature — ECDSA подпись фиксированного размера, base64 на проводе.
type Signature struct {
	raw [signatureSize]byte
}

func ParseSignature(s string) (Signature, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Signature{}, ErrSignatureBadBase64
	}

	if len(raw) != signatureSize {
		return Signature{}, ErrSignatureBadLength
	}

	var sig Signature
	copy(sig.raw[:], raw)

	return sig, nil
}

func (sig Signature) String() string {
	return base64.StdEncoding.EncodeToString(sig.raw[:])
}

// Verify проверяет подпись signer над ровно теми байтами message,
// которые были подписаны.
func (sig Signature) Verify(signer Identity, message []byte) error {
	if signer.IsZero() {
		return ErrKeyBadPoint
	}

	digest := sha256.Sum256(message)
	r := new(big.Int).SetBytes(sig.raw[:signatureSize/2])
	s := new(big.Int).SetBytes(sig.raw[signatureSize/2:])

	if !ecdsa.Verify(signer.publicKey(), digest[:], r, s) {
		return ErrSignatureInvalid
	}

	return nil
}

func (sig Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(sig.String())
}

func (sig *Signature) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("signature must be a string: %w", err)
	}

	parsed, err := ParseSignature(s)
	if err != nil {
		return err
	}

	*sig = parsed

	return nil
}

// readRandom выведен отдельно, чтобы тесты могли подменять источник энтропии.
func readRandom(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
