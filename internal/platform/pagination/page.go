// Package pagination implements pageNumber/pageSize paging for list endpoints.
package pagination

import (
	"math"
	"net/url"
	"strconv"

	"lostfound/internal/apperr"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPageNumber keeps every offset within a 32-bit integer.
	MaxPageNumber = math.MaxInt32 / MaxPageSize
)

// Request is a 1-based page request.
type Request struct {
	Number int
	Size   int
}

// Offset saturates at math.MaxInt instead of overflowing.
func (r Request) Offset() int {
	if r.Number < 1 || r.Size < 1 {
		return 0
	}
	if r.Number-1 > math.MaxInt/r.Size {
		return math.MaxInt
	}
	return (r.Number - 1) * r.Size
}

func (r Request) Limit() int  { return r.Size }

// Page is the list envelope returned by every list endpoint.
type Page[T any] struct {
	Items      []T  `json:"items"`
	TotalCount int  `json:"totalCount"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
}

// New builds a page from one slice of results and the overall count.
func New[T any](items []T, total int, req Request) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = (total + req.Size - 1) / req.Size
	}
	return Page[T]{
		Items:      items,
		TotalCount: total,
		TotalPages: pages,
		HasNext:    req.Number < pages,
	}
}

// Normalize applies defaults and caps.
func Normalize(number, size int) Request {
	if number < 1 {
		number = 1
	}
	if number > MaxPageNumber {
		number = MaxPageNumber
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Request{Number: number, Size: size}
}

// FromQuery reads pageNumber/pageSize, accepting page/size as aliases.
func FromQuery(q url.Values) (Request, error) {
	number, err := intParam(q, "pageNumber", "page")
	if err != nil {
		return Request{}, err
	}
	size, err := intParam(q, "pageSize", "size")
	if err != nil {
		return Request{}, err
	}
	return Normalize(number, size), nil
}

func intParam(q url.Values, names ...string) (int, error) {
	for _, name := range names {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, apperr.InvalidArgument("pagination", "%s must be a non-negative integer", name)
		}
		return v, nil
	}
	return 0, nil
}
