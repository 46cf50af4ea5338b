package manifest

import (
	"strings"
)

// Attribute is one KEY=VALUE pair of a tag. Value is kept as written,
// including surrounding quotes.
type Attribute struct {
	Key   string
	Value string
}

// Attributes is an ordered HLS attribute list.
type Attributes []Attribute

// ParseAttributes splits an attribute list on commas outside quotes.
func ParseAttributes(s string) Attributes {
	var out Attributes
	inQuote := false
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) {
			if s[i] == '"' {
				inQuote = !inQuote
			}
			if s[i] != ',' || inQuote {
				continue
			}
		}
		if part := strings.TrimSpace(s[start:i]); part != "" {
			key, value, _ := strings.Cut(part, "=")
			out = append(out, Attribute{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
		}
		start = i + 1
	}
	return out
}

// Get returns the unquoted value of key.
func (a Attributes) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return unquote(attr.Value), true
		}
	}
	return "", false
}

// Value returns the unquoted value of key, or "".
func (a Attributes) Value(key string) string {
	v, _ := a.Get(key)
	return v
}

// Has reports whether key is present.
func (a Attributes) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Set replaces the raw value of key, appending it when absent.
func (a Attributes) Set(key, raw string) Attributes {
	for i := range a {
		if a[i].Key == key {
			a[i].Value = raw
			return a
		}
	}
	return append(a, Attribute{Key: key, Value: raw})
}

// SetQuoted is Set with value wrapped in double quotes.
func (a Attributes) SetQuoted(key, value string) Attributes {
	return a.Set(key, quote(value))
}

// Quoted reports whether the value of key is a quoted string.
func (a Attributes) Quoted(key string) bool {
	for _, attr := range a {
		if attr.Key == key {
			return strings.HasPrefix(attr.Value, `"`)
		}
	}
	return false
}

func (a Attributes) String() string {
	var b strings.Builder
	for i, attr := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(attr.Key)
		b.WriteByte('=')
		b.WriteString(attr.Value)
	}
	return b.String()
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

// quote wraps v in double quotes. Quoted strings cannot contain quotes or
// line breaks, so those are dropped.
func quote(v string) string {
	v = strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(v)
	return `"` + v + `"`
}
