// Package nameextract implements the single pure rule for deriving the
// target child's name from a JSON-RPC message. It has no dependency on
// any transport, so both the local router and the HTTP transport share
// the exact same precedence rule.
package nameextract

import (
	"strings"

	json "github.com/goccy/go-json"
)

type probe struct {
	Method string `json:"method"`
	Params struct {
		Server string `json:"server"`
	} `json:"params"`
}

// Extract derives the target child name from a raw JSON-RPC message.
// Precedence: params.server always wins over a slashed method prefix.
// Returns ok=false if data is not JSON or neither field yields a name.
func Extract(data []byte) (name string, ok bool) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return "", false
	}
	if p.Params.Server != "" {
		return p.Params.Server, true
	}
	if p.Method != "" {
		if idx := strings.IndexByte(p.Method, '/'); idx >= 0 {
			return p.Method[:idx], true
		}
		return p.Method, true
	}
	return "", false
}
