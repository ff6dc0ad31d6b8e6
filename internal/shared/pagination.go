package shared

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Page is the list envelope returned by the backend. Backends that do not
// paginate answer with a bare JSON array, which decodes as a single full page.
type Page[T any] struct {
	Content       []T `json:"content"`
	TotalPages    int `json:"totalPages"`
	TotalElements int `json:"totalElements"`
}

// SinglePage wraps a complete collection as one page.
func SinglePage[T any](items []T) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Content: items, TotalPages: 1, TotalElements: len(items)}
}

// UnmarshalJSON accepts both the envelope and the bare array shape.
func (p *Page[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*p = SinglePage(items)
		return nil
	}
	var env pageEnvelope[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return err
	}
	if env.Content == nil {
		env.Content = []T{}
	}
	*p = Page[T](env)
	return nil
}

// pageEnvelope has Page's fields without its UnmarshalJSON method.
type pageEnvelope[T any] struct {
	Content       []T `json:"content"`
	TotalPages    int `json:"totalPages"`
	TotalElements int `json:"totalElements"`
}

// PageToken is one entry of the pagination bar: a zero-based page index or
// an ellipsis.
type PageToken struct {
	Page     int
	Ellipsis bool
}

// String renders the token the way it is displayed (1-based).
func (t PageToken) String() string {
	if t.Ellipsis {
		return "..."
	}
	return strconv.Itoa(t.Page + 1)
}

// PageWindow derives the page buttons for the current position. When all
// pages fit in maxVisible every page is listed; otherwise the first and last
// pages are always present, around a window centred on current, with an
// ellipsis marking each gap.
func PageWindow(current, totalPages, maxVisible int) []PageToken {
	if totalPages <= 0 {
		return nil
	}
	if maxVisible <= 0 {
		maxVisible = 5
	}
	if current < 0 {
		current = 0
	}
	if current > totalPages-1 {
		current = totalPages - 1
	}

	if totalPages <= maxVisible {
		tokens := make([]PageToken, 0, totalPages)
		for i := 0; i < totalPages; i++ {
			tokens = append(tokens, PageToken{Page: i})
		}
		return tokens
	}

	side := (maxVisible - 3) / 2
	if side < 1 {
		side = 1
	}

	tokens := []PageToken{{Page: 0}}
	if current > side+1 {
		tokens = append(tokens, PageToken{Ellipsis: true})
	}
	start := max(1, current-side)
	end := min(totalPages-2, current+side)
	for i := start; i <= end; i++ {
		tokens = append(tokens, PageToken{Page: i})
	}
	if current < totalPages-side-2 {
		tokens = append(tokens, PageToken{Ellipsis: true})
	}
	return append(tokens, PageToken{Page: totalPages - 1})
}

// FormatWindow joins tokens for plain text output.
func FormatWindow(tokens []PageToken, current int) string {
	var buf bytes.Buffer
	for i, tok := range tokens {
		if i > 0 {
			buf.WriteByte(' ')
		}
		if !tok.Ellipsis && tok.Page == current {
			buf.WriteString("[" + tok.String() + "]")
			continue
		}
		buf.WriteString(tok.String())
	}
	return buf.String()
}
