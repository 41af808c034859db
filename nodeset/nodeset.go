// Package nodeset expands Slurm nodelist expressions into explicit host
// lists, e.g. "gpu[001-003,005],login1" into gpu001 gpu002 gpu003 gpu005
// login1. Expansion happens in-process; no scontrol round trip.
package nodeset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/zjrosen/cordee/internal/cachemanager"
)

var (
	ErrEmptyExpression = errors.New("nodeset: empty expression")
	ErrUnbalanced      = errors.New("nodeset: unbalanced brackets")
	ErrBadRange        = errors.New("nodeset: malformed range")
	ErrTooLarge        = errors.New("nodeset: expansion exceeds host limit")
)

// maxHosts bounds a single expansion so a malformed range cannot exhaust
// memory.
const maxHosts = 65536

// Expander memoizes expansions. Expressions are pure functions of their
// text, so entries stay valid for the cache lifetime.
type Expander struct {
	cache *cachemanager.ReadThroughCache[string, []string, string]
}

// NewExpander creates an expander backed by an in-memory cache.
func NewExpander() *Expander {
	manager := cachemanager.NewInMemoryCacheManager[string, []string](
		"nodeset", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	return &Expander{
		cache: cachemanager.NewReadThroughCache[string, []string, string](manager, expand, false),
	}
}

// Expand returns the hosts named by the expression, in expression order.
// The returned slice is the caller's to keep.
func (e *Expander) Expand(ctx context.Context, expr string) ([]string, error) {
	hosts, err := e.cache.Get(ctx, expr, expr, cachemanager.DefaultExpiration)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(hosts))
	copy(out, hosts)
	return out, nil
}

var (
	defaultExpander *Expander
	once            sync.Once
)

// Expand expands the expression through a shared process-wide expander.
func Expand(ctx context.Context, expr string) ([]string, error) {
	once.Do(func() {
		defaultExpander = NewExpander()
	})
	return defaultExpander.Expand(ctx, expr)
}

// Count returns the number of hosts the expression names.
func Count(ctx context.Context, expr string) (int, error) {
	hosts, err := Expand(ctx, expr)
	if err != nil {
		return 0, err
	}
	return len(hosts), nil
}

func expand(_ context.Context, expr string) ([]string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrEmptyExpression
	}

	items, err := splitTop(expr)
	if err != nil {
		return nil, err
	}

	var hosts []string
	for _, item := range items {
		expanded, err := expandItem(item)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, expanded...)
		if len(hosts) > maxHosts {
			return nil, fmt.Errorf("%w: more than %d hosts", ErrTooLarge, maxHosts)
		}
	}
	return hosts, nil
}

// splitTop splits on commas outside brackets.
func splitTop(expr string) ([]string, error) {
	var items []string
	depth := 0
	start := 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '[':
			depth++
			if depth > 1 {
				return nil, fmt.Errorf("%w: nested bracket in %q", ErrUnbalanced, expr)
			}
		case ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: %q", ErrUnbalanced, expr)
			}
		case ',':
			if depth == 0 {
				items = append(items, expr[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnbalanced, expr)
	}
	items = append(items, expr[start:])

	for _, item := range items {
		if item == "" {
			return nil, fmt.Errorf("%w: empty item in %q", ErrEmptyExpression, expr)
		}
	}
	return items, nil
}

// expandItem expands one item, recursing when the item carries more than
// one bracket group (e.g. "rack[1-2]node[1-4]").
func expandItem(item string) ([]string, error) {
	open := strings.IndexByte(item, '[')
	if open == -1 {
		if strings.IndexByte(item, ']') != -1 {
			return nil, fmt.Errorf("%w: %q", ErrUnbalanced, item)
		}
		return []string{item}, nil
	}

	end := strings.IndexByte(item[open:], ']')
	if end == -1 {
		return nil, fmt.Errorf("%w: %q", ErrUnbalanced, item)
	}
	end += open

	prefix := item[:open]
	suffix := item[end+1:]

	tokens, err := expandRanges(item[open+1 : end])
	if err != nil {
		return nil, err
	}

	var out []string
	for _, token := range tokens {
		rest, err := expandItem(prefix + token + suffix)
		if err != nil {
			return nil, err
		}
		out = append(out, rest...)
		if len(out) > maxHosts {
			return nil, fmt.Errorf("%w: more than %d hosts", ErrTooLarge, maxHosts)
		}
	}
	return out, nil
}

// expandRanges expands the bracket contents ("001-003,005") into the
// numeric tokens they name, preserving zero padding.
func expandRanges(rangesExpr string) ([]string, error) {
	if rangesExpr == "" {
		return nil, fmt.Errorf("%w: empty bracket", ErrBadRange)
	}

	var tokens []string
	for _, token := range strings.Split(rangesExpr, ",") {
		dash := strings.IndexByte(token, '-')
		if dash == -1 {
			if _, err := strconv.Atoi(token); err != nil {
				return nil, fmt.Errorf("%w: %q", ErrBadRange, token)
			}
			tokens = append(tokens, token)
			continue
		}

		startStr, endStr := token[:dash], token[dash+1:]
		start, err := strconv.Atoi(startStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadRange, token)
		}
		stop, err := strconv.Atoi(endStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadRange, token)
		}
		if stop < start {
			return nil, fmt.Errorf("%w: reversed range %q", ErrBadRange, token)
		}
		if stop-start+1 > maxHosts {
			return nil, fmt.Errorf("%w: range %q", ErrTooLarge, token)
		}

		// Zero-padded starts fix the width for the whole range, matching
		// scontrol's rendering (gpu[001-003] -> gpu001 gpu002 gpu003).
		width := 0
		if len(startStr) > 1 && startStr[0] == '0' {
			width = len(startStr)
		}
		for v := start; v <= stop; v++ {
			if width > 0 {
				tokens = append(tokens, fmt.Sprintf("%0*d", width, v))
			} else {
				tokens = append(tokens, strconv.Itoa(v))
			}
		}
	}
	return tokens, nil
}
