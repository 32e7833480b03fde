package console

import (
	"strings"

	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

const redacted = "[redacted]"

// secretFields lists, per partition, the data fields never shown on the
// console: session tokens are live credentials and PIN hashes can be
// brute-forced offline.
var secretFields = map[schema.Partition][]string{
	schema.Sessions: {"token"},
	schema.Users:    {"pin"},
}

// redact masks secret fields in val, the copy read from path. It rebuilds
// the tree down to path so the same walk serves GET, DUMP and DUMP <part>.
func redact(path string, val any) any {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })

	wrapped := val
	for i := len(segments) - 1; i >= 0; i-- {
		wrapped = map[string]any{segments[i]: wrapped}
	}
	root, ok := wrapped.(map[string]any)
	if !ok {
		return val
	}

	for partition, fields := range secretFields {
		records, ok := root[string(partition)].(map[string]any)
		if !ok {
			continue
		}
		for _, rec := range records {
			rec, ok := rec.(map[string]any)
			if !ok {
				continue
			}
			data, ok := rec["data"].(map[string]any)
			if !ok {
				continue
			}
			for _, f := range fields {
				if _, ok := data[f]; ok {
					data[f] = redacted
				}
			}
		}
	}

	var cur any = root
	for _, s := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return val
		}
		cur = m[s]
	}
	return cur
}
