package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty page token got %q", params.PageToken)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{}
	values.Set("page_size", "30")

	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", params.PageSize)
	}

	values.Set("page_size", "400")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, params.PageSize)
	}

	params, err = Parse(url.Values{"pageSize": []string{"5"}}, opts)
	if err != nil || params.PageSize != 5 {
		t.Fatalf("expected camelCase alias to be honoured, got %d (%v)", params.PageSize, err)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		values := url.Values{}
		values.Set("page_size", raw)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("page_size=%q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestParsePageToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/orders?page_token=eyJpZCI6Im9yZF8xIn0&page_size=10", nil)
	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageToken != "eyJpZCI6Im9yZF8xIn0" || params.PageSize != 10 {
		t.Fatalf("unexpected params %+v", params)
	}

	for _, token := range []string{strings.Repeat("a", maxPageTokenLength+1), "abc\x01", "tök"} {
		values := url.Values{}
		values.Set("page_token", token)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("token %q: expected ErrInvalidPageToken, got %v", token, err)
		}
	}
}
