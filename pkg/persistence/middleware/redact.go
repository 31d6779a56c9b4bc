package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type redactMiddleware struct {
	next     ports.Storage
	patterns []*regexp.Regexp
}

// NewRedactMiddleware creates a middleware that masks, before saving, every
// field whose name matches one of the patterns, at any depth of any slice.
// Loading is untouched, so redacted fields come back as Mask.
func NewRedactMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.Storage) ports.Storage {
		return &redactMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *redactMiddleware) Save(ctx context.Context, key string, snapshot *domain.Snapshot) error {
	// Round-trip through JSON: typed slices become generic maps and the
	// caller's values are never touched.
	data, err := domain.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	generic, err := domain.DecodeSnapshot(data)
	if err != nil {
		return err
	}

	for _, slice := range generic.Slices {
		mask(slice, m.patterns)
	}
	return m.next.Save(ctx, key, generic)
}

func (m *redactMiddleware) Load(ctx context.Context, key string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, key)
}

func (m *redactMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func mask(v any, patterns []*regexp.Regexp) {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if matchesAny(k, patterns) {
				node[k] = Mask
				continue
			}
			mask(child, patterns)
		}
	case []any:
		for _, child := range node {
			mask(child, patterns)
		}
	}
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
