package metadata

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/intersect-mbo/treasury-indexer/internal/domain"
	"github.com/intersect-mbo/treasury-indexer/internal/logger"
)

// Decoder turns the raw metadata label map of a transaction into a typed
// ParsedEvent. Documents referenced through a remote anchor are dereferenced
// and hash verified first.
type Decoder struct {
	anchors *AnchorFetcher
}

// NewDecoder creates a decoder backed by the given anchor fetcher.
func NewDecoder(anchors *AnchorFetcher) *Decoder {
	return &Decoder{anchors: anchors}
}

// Decode resolves and parses the treasury document carried under the protocol
// label. It returns (nil, nil) when the transaction carries no treasury
// document at all, a non-nil event on success, and an error for any decode
// failure. A decode failure never mutates state; the caller drops the event.
func (d *Decoder) Decode(ctx context.Context, labels map[string]domain.Value) (*domain.ParsedEvent, error) {
	raw, ok := labels[domain.MetadataLabel]
	if !ok || raw.IsNull() {
		return nil, nil
	}

	doc := raw
	var anchor *domain.AnchorRef

	// A nested object carrying anchorUrl is a remote reference, not the
	// document itself.
	if url, found := optString(raw, "anchorUrl"); found {
		anchor = &domain.AnchorRef{URL: *url}
		if hash, found := optString(raw, "anchorDataHash"); found {
			anchor.DataHash = *hash
		}
		algorithm := ""
		if algo, found := optString(raw, "hashAlgorithm"); found {
			algorithm = *algo
		}

		resolved, err := d.anchors.Resolve(ctx, anchor, algorithm)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve anchor: %w", err)
		}
		doc = resolved
	}

	if _, ok := doc.AsMapping(); !ok {
		return nil, fmt.Errorf("treasury document is not an object")
	}

	body, ok := doc.Get("body")
	if !ok {
		return nil, fmt.Errorf("treasury document has no body")
	}
	if _, ok := body.AsMapping(); !ok {
		return nil, fmt.Errorf("treasury document body is not an object")
	}

	eventName, found := optString(body, "event")
	if !found {
		return nil, fmt.Errorf("treasury document body has no event discriminant")
	}

	eventType := domain.EventType(*eventName)
	if !domain.IsValidEventType(eventType) {
		logger.Warn("unrecognized treasury event type, skipping",
			zap.String("event", *eventName))
		return nil, nil
	}

	parsed := &domain.ParsedEvent{
		Type:   eventType,
		Anchor: anchor,
	}
	if v, found := optString(doc, "@context"); found {
		parsed.Context = *v
	}
	if v, found := optString(doc, "hashAlgorithm"); found {
		parsed.HashAlgorithm = *v
	}
	if v, found := optString(doc, "txAuthor"); found {
		parsed.TxAuthor = *v
	}
	if v, found := optString(doc, "instance"); found {
		parsed.Instance = *v
	}

	switch eventType {
	case domain.EventTypePublish:
		parsed.Payload = decodePublish(body)
	case domain.EventTypeFund:
		parsed.Payload = decodeFund(body)
	case domain.EventTypeDisburse:
		parsed.Payload = decodeDisburse(body)
	case domain.EventTypeComplete:
		parsed.Payload = decodeComplete(body)
	case domain.EventTypeWithdraw:
		parsed.Payload = decodeWithdraw(body)
	case domain.EventTypePause:
		parsed.Payload = decodePause(body)
	case domain.EventTypeResume:
		parsed.Payload = decodeResume(body)
	case domain.EventTypeModify, domain.EventTypeCancel:
		parsed.Payload = decodeModify(body)
	case domain.EventTypeSweep:
		parsed.Payload = decodeSweep(body)
	case domain.EventTypeInitialize, domain.EventTypeReorganize:
		parsed.Payload = decodeReorganize(body)
	}

	return parsed, nil
}

func decodePublish(body domain.Value) domain.PublishPayload {
	p := domain.PublishPayload{}
	p.Label, _ = optString(body, "label")
	p.Description, _ = optString(body, "description")
	p.Expiration, _ = optInt64(body, "expiration")
	p.PayoutUpperbound, _ = optInt64(body, "payoutUpperbound")
	p.VendorExpiration, _ = optInt64(body, "vendorExpiration")
	if v, ok := body.Get("permissions"); ok {
		p.Permissions = v
	} else {
		p.Permissions = domain.Null()
	}
	return p
}

func decodeFund(body domain.Value) domain.FundPayload {
	p := domain.FundPayload{}
	if v, found := optString(body, "identifier"); found {
		p.Identifier = *v
	}
	p.OtherIdentifiers = optStringSlice(body, "otherIdentifiers")
	p.Label, _ = optString(body, "label")
	p.Description, _ = optString(body, "description")

	if vendor, ok := body.Get("vendor"); ok {
		if _, isMap := vendor.AsMapping(); isMap {
			info := &domain.VendorInfo{Details: domain.Null()}
			info.Label, _ = optString(vendor, "label")
			if details, ok := vendor.Get("details"); ok {
				info.Details = details
			}
			p.Vendor = info
		}
	}

	if contract, ok := body.Get("contract"); ok {
		if url, found := optString(contract, "anchorUrl"); found {
			ref := &domain.AnchorRef{URL: *url}
			if hash, found := optString(contract, "anchorDataHash"); found {
				ref.DataHash = *hash
			}
			p.Contract = ref
		}
	}

	if milestones, ok := body.Get("milestones"); ok {
		if entries, isMap := milestones.AsMapping(); isMap {
			p.Milestones = make(map[string]domain.FundMilestone, len(entries))
			for key, entry := range entries {
				m := domain.FundMilestone{}
				m.Identifier, _ = optString(entry, "identifier")
				m.Label, _ = optString(entry, "label")
				m.Description, _ = optString(entry, "description")
				m.AcceptanceCriteria, _ = optString(entry, "acceptanceCriteria")
				p.Milestones[key] = m
			}
		}
	}
	return p
}

func decodeDisburse(body domain.Value) domain.DisbursePayload {
	p := domain.DisbursePayload{}
	p.Label, _ = optString(body, "label")
	p.Description, _ = optString(body, "description")
	p.Justification, _ = optString(body, "justification")
	p.EstimatedReturn, _ = optInt64(body, "estimatedReturn")
	return p
}

func decodeComplete(body domain.Value) domain.CompletePayload {
	p := domain.CompletePayload{}
	if v, found := optString(body, "identifier"); found {
		p.Identifier = *v
	}
	milestones, ok := body.Get("milestones")
	if !ok {
		return p
	}
	entries, isMap := milestones.AsMapping()
	if !isMap {
		return p
	}
	p.Milestones = make(map[string]domain.CompleteMilestone, len(entries))
	for key, entry := range entries {
		m := domain.CompleteMilestone{}
		m.Description, _ = optString(entry, "description")
		if evidence, ok := entry.Get("evidence"); ok {
			if items, isSeq := evidence.AsSequence(); isSeq {
				for _, item := range items {
					e := domain.Evidence{}
					e.Label, _ = optString(item, "label")
					e.AnchorURL, _ = optString(item, "anchorUrl")
					e.AnchorDataHash, _ = optString(item, "anchorDataHash")
					m.Evidence = append(m.Evidence, e)
				}
			}
		}
		p.Milestones[key] = m
	}
	return p
}

func decodeWithdraw(body domain.Value) domain.WithdrawPayload {
	p := domain.WithdrawPayload{}
	if v, found := optString(body, "identifier"); found {
		p.Identifier = *v
	}
	milestones, ok := body.Get("milestones")
	if !ok {
		return p
	}
	entries, isMap := milestones.AsMapping()
	if !isMap {
		return p
	}
	p.Milestones = make(map[string]domain.WithdrawMilestone, len(entries))
	for key, entry := range entries {
		m := domain.WithdrawMilestone{}
		m.Comment, _ = optString(entry, "comment")
		p.Milestones[key] = m
	}
	return p
}

func decodePause(body domain.Value) domain.PausePayload {
	p := domain.PausePayload{}
	if v, found := optString(body, "identifier"); found {
		p.Identifier = *v
	}
	milestones, ok := body.Get("milestones")
	if !ok {
		return p
	}
	entries, isMap := milestones.AsMapping()
	if !isMap {
		return p
	}
	p.Milestones = make(map[string]domain.PauseMilestone, len(entries))
	for key, entry := range entries {
		m := domain.PauseMilestone{}
		m.Reason, _ = optString(entry, "reason")
		m.Resolution, _ = optString(entry, "resolution")
		p.Milestones[key] = m
	}
	return p
}

func decodeResume(body domain.Value) domain.ResumePayload {
	p := domain.ResumePayload{}
	if v, found := optString(body, "identifier"); found {
		p.Identifier = *v
	}
	milestones, ok := body.Get("milestones")
	if !ok {
		return p
	}
	entries, isMap := milestones.AsMapping()
	if !isMap {
		return p
	}
	p.Milestones = make(map[string]domain.ResumeMilestone, len(entries))
	for key, entry := range entries {
		m := domain.ResumeMilestone{}
		m.Reason, _ = optString(entry, "reason")
		p.Milestones[key] = m
	}
	return p
}

func decodeModify(body domain.Value) domain.ModifyPayload {
	p := domain.ModifyPayload{FundPayload: decodeFund(body)}
	p.Reason, _ = optString(body, "reason")
	return p
}

func decodeSweep(body domain.Value) domain.SweepPayload {
	p := domain.SweepPayload{}
	p.Comment, _ = optString(body, "comment")
	return p
}

func decodeReorganize(body domain.Value) domain.ReorganizePayload {
	p := domain.ReorganizePayload{}
	p.Reason, _ = optString(body, "reason")
	if outputs, ok := body.Get("outputs"); ok {
		if entries, isMap := outputs.AsMapping(); isMap {
			p.Outputs = make(map[string]domain.Value, len(entries))
			for address, details := range entries {
				p.Outputs[address] = details
			}
		}
	}
	return p
}

// optString extracts a string child. The second return distinguishes "absent
// or not a string" from present.
func optString(v domain.Value, key string) (*string, bool) {
	child, ok := v.Get(key)
	if !ok {
		return nil, false
	}
	s, ok := child.AsString()
	if !ok {
		return nil, false
	}
	return &s, true
}

// optInt64 extracts an integer child.
func optInt64(v domain.Value, key string) (*int64, bool) {
	child, ok := v.Get(key)
	if !ok {
		return nil, false
	}
	i, ok := child.AsInt64()
	if !ok {
		return nil, false
	}
	return &i, true
}

// optStringSlice extracts a sequence-of-strings child, keeping order and
// dropping non-string elements.
func optStringSlice(v domain.Value, key string) []string {
	child, ok := v.Get(key)
	if !ok {
		return nil
	}
	items, ok := child.AsSequence()
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}
