// Package metadata holds the header keys transflow attaches to Watermill
// messages and small helpers to read and copy them.
package metadata

import "strconv"

// Reserved metadata keys.
const (
	KeyCorrelationID = "correlation_id"
	KeyDispatchID    = "transflow_dispatch_id"
	KeyLineNum       = "transflow_line_num"
	KeyFirstLine     = "transflow_first_line"
	KeyBatchSize     = "transflow_batch_size"
	KeyContentType   = "content_type"
	KeyEnqueuedAt    = "transflow_enqueued_at"
)

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithLineNum returns a clone carrying lineNum under KeyLineNum.
func (m Metadata) WithLineNum(lineNum int) Metadata {
	return m.With(KeyLineNum, strconv.Itoa(lineNum))
}

// LineNum parses KeyLineNum. The second result is false when the key is
// missing or malformed.
func (m Metadata) LineNum() (int, bool) {
	return m.intValue(KeyLineNum)
}

func (m Metadata) intValue(key string) (int, bool) {
	raw, ok := m[key]
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
