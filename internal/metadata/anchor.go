package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/intersect-mbo/treasury-indexer/internal/adapter"
	"github.com/intersect-mbo/treasury-indexer/internal/domain"
)

// DefaultHashAlgorithm is assumed when an anchor does not declare one.
const DefaultHashAlgorithm = "blake2b-256"

// AnchorFetcher dereferences remote anchors and verifies the fetched bytes
// against the declared content hash before anything downstream sees them.
type AnchorFetcher struct {
	client   adapter.HTTPClient
	maxBytes int64
}

// NewAnchorFetcher creates an anchor fetcher. maxBytes bounds the size of any
// fetched document.
func NewAnchorFetcher(client adapter.HTTPClient, maxBytes int64) *AnchorFetcher {
	return &AnchorFetcher{
		client:   client,
		maxBytes: maxBytes,
	}
}

// Resolve fetches the document behind the anchor and, when the anchor declares
// a data hash, requires the computed digest of the fetched bytes to match it
// exactly. The returned value is the parsed document tree. Every failure mode
// here is a decode failure for the owning transaction: fetch error, oversized
// document, unsupported hash algorithm, or digest mismatch.
func (f *AnchorFetcher) Resolve(ctx context.Context, anchor *domain.AnchorRef, hashAlgorithm string) (domain.Value, error) {
	if anchor == nil || anchor.URL == "" {
		return domain.Value{}, fmt.Errorf("anchor has no url")
	}

	body, err := f.client.GetRaw(ctx, anchor.URL, f.maxBytes)
	if err != nil {
		return domain.Value{}, fmt.Errorf("failed to fetch anchor %s: %w", anchor.URL, err)
	}

	if anchor.DataHash != "" {
		if err := verifyDigest(body, hashAlgorithm, anchor.DataHash); err != nil {
			return domain.Value{}, fmt.Errorf("anchor %s: %w", anchor.URL, err)
		}
	}

	doc, err := domain.FromJSON(body)
	if err != nil {
		return domain.Value{}, fmt.Errorf("anchor %s returned unparseable document: %w", anchor.URL, err)
	}
	return doc, nil
}

// verifyDigest computes the digest of body under the named algorithm and
// compares it to the declared hex hash. An algorithm this indexer does not
// implement is an error, never a silent pass.
func verifyDigest(body []byte, algorithm, declared string) error {
	if algorithm == "" {
		algorithm = DefaultHashAlgorithm
	}

	var computed string
	switch strings.ToLower(algorithm) {
	case "blake2b-256":
		sum := blake2b.Sum256(body)
		computed = hex.EncodeToString(sum[:])
	case "sha-256", "sha256":
		sum := sha256.Sum256(body)
		computed = hex.EncodeToString(sum[:])
	default:
		return fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}

	if !strings.EqualFold(computed, declared) {
		return fmt.Errorf("content hash mismatch: declared %s, computed %s", declared, computed)
	}
	return nil
}
