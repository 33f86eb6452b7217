package request

import (
	"net/url"
	"strings"
)

// Param is one query-string entry. Multi-valued params are serialised with
// bracketed keys (k[]=v1&k[]=v2); scalar params are serialised plain.
type Param struct {
	Key    string
	Values []string
}

// Params is an ordered list of query parameters. Unlike url.Values (a map),
// it preserves insertion order across Encode, which spec.md §4.3 requires.
type Params []Param

// Add appends a scalar parameter.
func Add(p Params, key, value string) Params {
	return append(p, Param{Key: key, Values: []string{value}})
}

// AddMulti appends a multi-valued parameter.
func AddMulti(p Params, key string, values []string) Params {
	return append(p, Param{Key: key, Values: values})
}

// Encode renders the params as a query string, preserving order.
func (p Params) Encode() string {
	var b strings.Builder
	first := true
	for _, param := range p {
		key := param.Key
		if len(param.Values) > 1 {
			key += "[]"
		}
		for _, v := range param.Values {
			if !first {
				b.WriteByte('&')
			}
			first = false
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
