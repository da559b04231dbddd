// Package sanitizer turns index definitions fetched from the search service into
// payloads fit for storage (capture) and for index creation (restore).
package sanitizer

import (
	"sort"
	"strings"

	"github.com/indexvault-go/internal/domain/index"
)

// restorable lists every property the creation API accepts. Anything else is
// kept in snapshots but never replayed.
var restorable = []string{
	index.PropName,
	index.PropFields,
	index.PropSuggesters,
	index.PropCorsOptions,
	index.PropScoringProfiles,
	index.PropDefaultScoringProfile,
	index.PropAnalyzers,
	index.PropTokenizers,
	index.PropCharFilters,
	index.PropTokenFilters,
	index.PropEncryptionKey,
	index.PropSimilarity,
	index.PropSemantic,
	index.PropVectorSearch,
}

var restorableSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(restorable))
	for _, p := range restorable {
		set[p] = struct{}{}
	}
	return set
}()

const odataPrefix = "@odata."

// RestorableProperties returns the creation whitelist in a stable order.
func RestorableProperties() []string {
	return append([]string(nil), restorable...)
}

// IsRestorable reports whether a top-level property is replayed on restore.
func IsRestorable(property string) bool {
	_, ok := restorableSet[property]
	return ok
}

// Capture prepares a fetched definition for storage. Only the top-level OData
// envelope (@odata.context, @odata.etag, ...) is removed; everything else,
// including nulls and read-only properties, is kept for audit. The input is not
// modified.
func Capture(def index.Definition) index.Definition {
	out := def.Clone()
	for key := range out {
		if strings.HasPrefix(key, odataPrefix) {
			delete(out, key)
		}
	}
	return out
}

// Restore builds a creation payload: whitelisted properties only, with every
// null-valued member removed at any depth. An optional object section, at any
// depth, that is empty once nulls are gone is left out entirely. The input is
// not modified.
func Restore(def index.Definition) index.Definition {
	out := make(index.Definition, len(restorable))
	for _, key := range restorable {
		value, ok := def[key]
		if !ok || value == nil {
			continue
		}
		value = dropNulls(value)
		if key != index.PropName && isEmptyObject(value) {
			continue
		}
		out[key] = value
	}
	return out
}

// Dropped returns, sorted, the top-level properties of def that Restore
// discards because they are outside the whitelist. OData envelope keys are not
// reported.
func Dropped(def index.Definition) []string {
	var dropped []string
	for key := range def {
		if IsRestorable(key) || strings.HasPrefix(key, odataPrefix) {
			continue
		}
		dropped = append(dropped, key)
	}
	sort.Strings(dropped)
	return dropped
}

// dropNulls copies v, omitting object members that are null or become empty
// objects. Array elements are kept in position, including nulls, since their
// index can be meaningful.
func dropNulls(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			val = dropNulls(val)
			if isEmptyObject(val) {
				continue
			}
			out[k] = val
		}
		return out
	case index.Definition:
		return dropNulls(map[string]interface{}(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = dropNulls(val)
		}
		return out
	default:
		return v
	}
}

func isEmptyObject(v interface{}) bool {
	m, ok := v.(map[string]interface{})
	return ok && len(m) == 0
}
