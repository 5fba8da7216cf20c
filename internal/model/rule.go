package model

import "fmt"

// Rule is one parsed signature line
type Rule struct {
	Action      string      `json:"action"`
	Protocol    string      `json:"protocol"`
	Source      string      `json:"src"`
	SourcePort  string      `json:"source_port"`
	Direction   string      `json:"direction"`
	Destination string      `json:"dst"`
	DestPort    string      `json:"dest_port"`
	Options     RuleOptions `json:"options"`
	Raw         string      `json:"raw"`
	File        string      `json:"file,omitempty"`
	// Skipped holds option fragments that could not be parsed and were dropped
	Skipped []string `json:"skipped,omitempty"`
}

// RuleOptions splits the option block into the keys the matcher understands
// and an ordered fallback for everything else.
type RuleOptions struct {
	Msg       *string      `json:"msg,omitempty"`
	Sid       *string      `json:"sid,omitempty"`
	Classtype *string      `json:"classtype,omitempty"`
	Content   *string      `json:"content,omitempty"`
	Dsize     *DsizeSpec   `json:"dsize,omitempty"`
	Extra     []RuleOption `json:"extra,omitempty"`
	Flags     []string     `json:"flags,omitempty"`
}

// RuleOption is an unrecognized key:value option kept verbatim
type RuleOption struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Get returns the value of an unrecognized option, last occurrence wins
func (o RuleOptions) Get(key string) (string, bool) {
	for i := len(o.Extra) - 1; i >= 0; i-- {
		if o.Extra[i].Key == key {
			return o.Extra[i].Value, true
		}
	}
	return "", false
}

// DsizeOp is the comparator of a dsize option
type DsizeOp string

const (
	DsizeGreater DsizeOp = ">"
	DsizeLess    DsizeOp = "<"
)

// DsizeSpec constrains the total packet length
type DsizeSpec struct {
	Op    DsizeOp `json:"op"`
	Bound int     `json:"bound"`
}

// Allows reports whether a packet of the given length satisfies the constraint
func (d DsizeSpec) Allows(length int) bool {
	switch d.Op {
	case DsizeGreater:
		return length > d.Bound
	case DsizeLess:
		return length < d.Bound
	default:
		return true
	}
}

func (d DsizeSpec) String() string {
	return fmt.Sprintf("%s%d", d.Op, d.Bound)
}

const (
	DefaultMsg       = "Suspicious traffic detected"
	DefaultSid       = "0"
	DefaultClasstype = "unknown"
)

// MsgOrDefault returns the rule message or the generic one
func (r *Rule) MsgOrDefault() string {
	if r.Options.Msg != nil {
		return *r.Options.Msg
	}
	return DefaultMsg
}

func (r *Rule) SidOrDefault() string {
	if r.Options.Sid != nil {
		return *r.Options.Sid
	}
	return DefaultSid
}

func (r *Rule) ClasstypeOrDefault() string {
	if r.Options.Classtype != nil {
		return *r.Options.Classtype
	}
	return DefaultClasstype
}
