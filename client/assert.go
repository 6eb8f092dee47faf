package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/servicelab/svc-acceptor/types"
)

// Assertion helpers translate a mismatch into the module-level failure
// signal (types.AssertionError) with a message carrying actual vs expected.

// ExpectStatus asserts the response status code.
func (r *Response) ExpectStatus(want int) error {
	if r.Status != want {
		return types.NewAssertionError("status", want, r.Status)
	}
	return nil
}

// ExpectHeader asserts the value of a response header.
func (r *Response) ExpectHeader(key, want string) error {
	got := r.Headers.Get(key)
	if got != want {
		return types.NewAssertionError("header "+key, want, got)
	}
	return nil
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(err, "decoding response body")
	}
	return nil
}

// JSONField extracts a value from the JSON body by dotted path, e.g.
// "user.id" or "items.0.name". Numeric segments index into arrays.
func (r *Response) JSONField(path string) (any, error) {
	var doc any
	if err := json.Unmarshal(r.Body, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding response body")
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("field %q not present in response body", path)
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("field %q not present in response body", path)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("field %q not present in response body", path)
		}
	}
	return cur, nil
}

// ExpectJSONField asserts the value of a JSON body field identified by
// dotted path. Values are compared by their string form, which sidesteps
// the float64 representation of all JSON numbers.
func (r *Response) ExpectJSONField(path string, want any) error {
	got, err := r.JSONField(path)
	if err != nil {
		return &types.AssertionError{Field: path, Expected: want, Actual: "<missing>", Msg: err.Error()}
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		return types.NewAssertionError(path, want, got)
	}
	return nil
}
