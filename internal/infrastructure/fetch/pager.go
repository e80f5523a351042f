package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// Done is returned by Pager.Next once every page has been consumed
	Done = errors.New("fetch: no more pages")
	// ErrTooManyPages is returned when a traversal exceeds Config.MaxPages
	ErrTooManyPages = errors.New("fetch: page limit exceeded")
	// ErrConnectionNotFound is returned when the connection path is missing from data
	ErrConnectionNotFound = errors.New("fetch: connection not found in response data")
)

// Page is one non-empty page of items
type Page struct {
	// Number is the 1-based request index that produced the page
	Number   int
	Items    []json.RawMessage
	Errors   []GraphQLError
	Throttle *ThrottleStatus
}

// pageFunc fetches the next raw page and reports whether more remain
type pageFunc func(ctx context.Context) (page *Page, more bool, err error)

// Pager walks a paginated endpoint lazily, one request per Next call
// (plus any empty pages skipped on the way).
type Pager struct {
	fetch    pageFunc
	logger   *zap.Logger
	maxPages int
	requests int
	done     bool
	err      error
}

func newPager(fetch pageFunc, logger *zap.Logger, maxPages int) *Pager {
	return &Pager{fetch: fetch, logger: logger, maxPages: maxPages}
}

// Next returns the next non-empty page, Done when exhausted, or the first error
func (p *Pager) Next(ctx context.Context) (*Page, error) {
	if p.err != nil {
		return nil, p.err
	}
	for {
		if p.done {
			return nil, Done
		}
		if p.requests >= p.maxPages {
			p.err = fmt.Errorf("%w: %d", ErrTooManyPages, p.maxPages)
			return nil, p.err
		}

		page, more, err := p.fetch(ctx)
		if err != nil {
			p.err = err
			return nil, err
		}
		p.requests++
		p.done = !more
		page.Number = p.requests

		if len(page.Items) == 0 {
			if more {
				p.logger.Warn("Empty page with continuation, following cursor", zap.Int("page", page.Number))
			}
			continue
		}
		return page, nil
	}
}

// Requests returns how many page requests have been issued
func (p *Pager) Requests() int {
	return p.requests
}

// All drains the pager into one slice
func (p *Pager) All(ctx context.Context) ([]json.RawMessage, error) {
	var items []json.RawMessage
	for {
		page, err := p.Next(ctx)
		if errors.Is(err, Done) {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, page.Items...)
	}
}

// ---------------------------------------------------------------------------
// REST cursor pagination
// ---------------------------------------------------------------------------

// Paginate walks a REST collection that wraps items in "data" and links the
// next page through "paging.next". A bare object is treated as a single item.
func (c *Client) Paginate(rawURL string) *Pager {
	next := rawURL
	return newPager(func(ctx context.Context) (*Page, bool, error) {
		resp, err := c.Get(ctx, next)
		if err != nil {
			return nil, false, err
		}
		items, cursor, err := parseRESTPage(resp.Body)
		if err != nil {
			return nil, false, err
		}
		if cursor != "" && cursor == next {
			c.logger.Warn("Next page cursor repeats current URL, stopping", zap.String("url", next))
			cursor = ""
		}
		next = cursor
		return &Page{Items: items, Throttle: resp.Throttle}, cursor != "", nil
	}, c.logger, c.cfg.MaxPages)
}

func parseRESTPage(body []byte) ([]json.RawMessage, string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, "", nil
	}
	if trimmed[0] == '[' {
		items, err := decodeArray(trimmed)
		return items, "", err
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Paging *struct {
			Next string `json:"next"`
		} `json:"paging"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var cursor string
	if envelope.Paging != nil {
		cursor = envelope.Paging.Next
	}

	data := bytes.TrimSpace(envelope.Data)
	switch {
	case len(data) == 0:
		return []json.RawMessage{json.RawMessage(trimmed)}, "", nil
	case bytes.Equal(data, []byte("null")):
		return nil, cursor, nil
	case data[0] == '[':
		items, err := decodeArray(data)
		return items, cursor, err
	default:
		return []json.RawMessage{json.RawMessage(data)}, cursor, nil
	}
}

func decodeArray(b []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// GraphQL connection pagination
// ---------------------------------------------------------------------------

type connection struct {
	Nodes []json.RawMessage `json:"nodes"`
	Edges []struct {
		Node json.RawMessage `json:"node"`
	} `json:"edges"`
	PageInfo struct {
		HasNextPage bool   `json:"hasNextPage"`
		EndCursor   string `json:"endCursor"`
	} `json:"pageInfo"`
}

func (c connection) items() []json.RawMessage {
	if len(c.Nodes) > 0 {
		return c.Nodes
	}
	items := make([]json.RawMessage, 0, len(c.Edges))
	for _, e := range c.Edges {
		if len(e.Node) > 0 {
			items = append(items, e.Node)
		}
	}
	return items
}

// PaginateConnection walks a GraphQL connection found at path inside data.
// The query must accept an "$after" cursor variable.
func (c *Client) PaginateConnection(query string, vars map[string]any, path ...string) *Pager {
	var cursor string
	return newPager(func(ctx context.Context) (*Page, bool, error) {
		v := make(map[string]any, len(vars)+1)
		for k, val := range vars {
			v[k] = val
		}
		if cursor != "" {
			v["after"] = cursor
		} else {
			v["after"] = nil
		}

		resp, err := c.Query(ctx, query, v)
		if err != nil {
			return nil, false, err
		}
		conn, err := extractConnection(resp.Data, path)
		if err != nil {
			if len(resp.Errors) > 0 {
				return nil, false, fmt.Errorf("%w: %s", err, resp.Errors[0].Message)
			}
			return nil, false, err
		}

		end := conn.PageInfo.EndCursor
		more := conn.PageInfo.HasNextPage && end != ""
		if more && end == cursor {
			c.logger.Warn("Connection cursor did not advance, stopping", zap.String("cursor", end))
			more = false
		}
		cursor = end
		return &Page{Items: conn.items(), Errors: resp.Errors, Throttle: resp.Throttle}, more, nil
	}, c.logger, c.cfg.MaxPages)
}

func extractConnection(data json.RawMessage, path []string) (connection, error) {
	current := data
	for _, key := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(current, &obj); err != nil || obj == nil {
			return connection{}, fmt.Errorf("%w: %q", ErrConnectionNotFound, key)
		}
		next, ok := obj[key]
		if !ok || bytes.Equal(bytes.TrimSpace(next), []byte("null")) {
			return connection{}, fmt.Errorf("%w: %q", ErrConnectionNotFound, key)
		}
		current = next
	}
	var conn connection
	if err := json.Unmarshal(current, &conn); err != nil {
		return connection{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return conn, nil
}
