package ideation

import (
	"context"

	"github.com/jonathan/ctr-optimizer/internal/types"
)

// Static is a deterministic Generator. It returns the variants registered for a
// URL, falling back to Default, so runs can be reproduced without a model.
type Static struct {
	ByURL   map[string][]types.Variant
	Default []types.Variant
	Err     error

	// Requests records every request received, in order.
	Requests []Request
}

// GenerateVariants returns a copy of the configured variants.
func (s *Static) GenerateVariants(_ context.Context, req Request) ([]types.Variant, error) {
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return nil, s.Err
	}
	variants, ok := s.ByURL[req.Opportunity.URL]
	if !ok {
		variants = s.Default
	}
	return append([]types.Variant(nil), variants...), nil
}
