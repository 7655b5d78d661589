// Package signer wraps commands into signed, expiring, replay-protected
// envelopes for the ledger command endpoint.
package signer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"ledger-lists/domain"
)

const (
	DefaultExpiryOffset = 120 * time.Second
	DefaultFuel         = 100000
)

var (
	errMissingAuth = errors.New("identity has no auth id")
	errMissingKey  = errors.New("identity has no signing key")
	errBadKey      = errors.New("signing key must be 32 bytes of hex")
)

// NonceSource hands out replay-protection counters. Values for the same
// (auth, db) pair must never repeat.
type NonceSource interface {
	Next(ctx context.Context, auth, db string) (int64, error)
}

// Signer produces signed envelopes for one ledger database.
type Signer struct {
	db     string
	expiry time.Duration
	fuel   int64
	nonces NonceSource
	now    func() time.Time
}

// Option customises a Signer.
type Option func(*Signer)

// WithExpiry overrides the validity window of signed envelopes.
func WithExpiry(d time.Duration) Option {
	return func(s *Signer) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithFuel overrides the resource budget attached to every envelope.
func WithFuel(fuel int64) Option {
	return func(s *Signer) {
		if fuel > 0 {
			s.fuel = fuel
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Signer for db ("network/database").
func New(db string, nonces NonceSource, opts ...Option) *Signer {
	if nonces == nil {
		nonces = NewMemoryNonces()
	}
	s := &Signer{
		db:     db,
		expiry: DefaultExpiryOffset,
		fuel:   DefaultFuel,
		nonces: nonces,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// signedCommand is the document the signature covers. Field order is part of
// the signed bytes.
type signedCommand struct {
	Type   string `json:"type"`
	DB     string `json:"db"`
	Tx     string `json:"tx"`
	Auth   string `json:"auth"`
	Fuel   int64  `json:"fuel"`
	Nonce  int64  `json:"nonce"`
	Expire int64  `json:"expire"`
}

// Sign wraps cmd into an envelope signed by id.
func (s *Signer) Sign(ctx context.Context, id domain.Identity, cmd domain.Command) (domain.SignedEnvelope, error) {
	key, err := privateKey(id)
	if err != nil {
		return domain.SignedEnvelope{}, &domain.SigningError{Auth: id.AuthID, Err: err}
	}
	nonce, err := s.nonces.Next(ctx, id.AuthID, s.db)
	if err != nil {
		return domain.SignedEnvelope{}, &domain.SigningError{Auth: id.AuthID, Err: fmt.Errorf("nonce: %w", err)}
	}

	env := domain.SignedEnvelope{
		Auth:   id.AuthID,
		DB:     s.db,
		Expire: s.now().Add(s.expiry).UnixMilli(),
		Fuel:   s.fuel,
		Nonce:  nonce,
		Tx:     string(cmd.Tx),
	}
	msg, err := Message(env)
	if err != nil {
		return domain.SignedEnvelope{}, &domain.SigningError{Auth: id.AuthID, Err: err}
	}
	hash := sha256.Sum256(msg)
	env.Signature = hex.EncodeToString(ecdsa.SignCompact(key, hash[:], true))
	return env, nil
}

// Message returns the exact bytes covered by an envelope's signature.
func Message(env domain.SignedEnvelope) ([]byte, error) {
	return sonic.Marshal(signedCommand{
		Type:   "tx",
		DB:     env.DB,
		Tx:     env.Tx,
		Auth:   env.Auth,
		Fuel:   env.Fuel,
		Nonce:  env.Nonce,
		Expire: env.Expire,
	})
}

// Verify recovers the public key from the envelope signature and reports
// whether it matches pub.
func Verify(env domain.SignedEnvelope, pub *secp256k1.PublicKey) (bool, error) {
	sig, err := hex.DecodeString(env.Signature)
	if err != nil {
		return false, err
	}
	msg, err := Message(env)
	if err != nil {
		return false, err
	}
	hash := sha256.Sum256(msg)
	recovered, _, err := ecdsa.RecoverCompact(sig, hash[:])
	if err != nil {
		return false, err
	}
	return recovered.IsEqual(pub), nil
}

func privateKey(id domain.Identity) (*secp256k1.PrivateKey, error) {
	if strings.TrimSpace(id.AuthID) == "" {
		return nil, errMissingAuth
	}
	raw := strings.TrimPrefix(strings.TrimSpace(id.PrivateKey), "0x")
	if raw == "" {
		return nil, errMissingKey
	}
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != secp256k1.PrivKeyBytesLen {
		return nil, errBadKey
	}
	key := secp256k1.PrivKeyFromBytes(b)
	if key.Key.IsZero() {
		return nil, errBadKey
	}
	return key, nil
}
