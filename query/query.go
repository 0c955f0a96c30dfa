// Package query builds the JSON filter documents the backend accepts on its
// collection endpoints. Only equality filters are needed by the SDK itself;
// callers can combine several with And.
package query

import (
	"encoding/json"
	"net/url"

	"github.com/pkg/errors"
)

// Query is an immutable equality-filter document.
type Query struct {
	filter map[string]any
}

// New returns an empty query matching every record.
func New() *Query {
	return &Query{filter: map[string]any{}}
}

// Equals returns a query matching records whose field equals value.
func Equals(field string, value any) *Query {
	return New().And(field, value)
}

// And returns a copy of the query with an additional equality condition.
func (q *Query) And(field string, value any) *Query {
	filter := make(map[string]any, len(q.filter)+1)
	for k, v := range q.filter {
		filter[k] = v
	}
	filter[field] = value
	return &Query{filter: filter}
}

// Encode renders the filter as its JSON wire form.
func (q *Query) Encode() (string, error) {
	b, err := json.Marshal(q.filter)
	if err != nil {
		return "", errors.Wrap(err, "[query.Encode] failed to marshal filter")
	}
	return string(b), nil
}

// Values renders the filter as the "query" URL parameter the collection
// endpoints expect.
func (q *Query) Values() (url.Values, error) {
	encoded, err := q.Encode()
	if err != nil {
		return nil, err
	}
	return url.Values{"query": []string{encoded}}, nil
}
