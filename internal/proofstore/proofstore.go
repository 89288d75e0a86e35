// Package proofstore persists submitted proof artifacts. Artifacts are
// content-addressed by SHA-256 so repeat submissions of the same bytes
// resolve to the same reference.
package proofstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// MaxProofBytes caps the accepted proof artifact size.
const MaxProofBytes = 5 << 20

var (
	// ErrEmpty indicates a proof submission with no content.
	ErrEmpty = errors.New("proof content is empty")
	// ErrTooLarge indicates a proof above MaxProofBytes.
	ErrTooLarge = errors.New("proof content exceeds size limit")
	// ErrUnsupportedType indicates a content type outside the accepted set.
	ErrUnsupportedType = errors.New("proof content type is not supported")
	// ErrInvalidRef indicates a malformed proof reference.
	ErrInvalidRef = errors.New("proof ref is malformed")
)

// Ref is a content address of one stored proof, in "sha256/<hex>" form.
type Ref string

// Metadata describes the submission context of one proof artifact.
type Metadata struct {
	OwnerID     string
	ProtocolID  string
	CycleID     string
	ContentType string
}

// Store is the persistence boundary for proof artifacts.
type Store interface {
	Put(ctx context.Context, data []byte, meta Metadata) (Ref, error)
	Exists(ctx context.Context, ref Ref) (bool, error)
}

var acceptedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// Validate checks proof content and type limits before storage.
func Validate(data []byte, contentType string) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > MaxProofBytes {
		return ErrTooLarge
	}
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	if semicolon := strings.Index(normalized, ";"); semicolon >= 0 {
		normalized = strings.TrimSpace(normalized[:semicolon])
	}
	if _, ok := acceptedTypes[normalized]; !ok {
		return ErrUnsupportedType
	}
	return nil
}

// RefFor computes the content address of proof bytes.
func RefFor(data []byte) Ref {
	sum := sha256.Sum256(data)
	return Ref("sha256/" + hex.EncodeToString(sum[:]))
}

// Digest extracts the hex digest from a ref.
func Digest(ref Ref) (string, error) {
	value := string(ref)
	if !strings.HasPrefix(value, "sha256/") {
		return "", ErrInvalidRef
	}
	digest := strings.TrimPrefix(value, "sha256/")
	if len(digest) != sha256.Size*2 {
		return "", ErrInvalidRef
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", ErrInvalidRef
	}
	return digest, nil
}
