package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Top-level properties of an index definition as returned by the search
// management API.
const (
	PropName                  = "name"
	PropFields                = "fields"
	PropSuggesters            = "suggesters"
	PropCorsOptions           = "corsOptions"
	PropScoringProfiles       = "scoringProfiles"
	PropDefaultScoringProfile = "defaultScoringProfile"
	PropAnalyzers             = "analyzers"
	PropTokenizers            = "tokenizers"
	PropCharFilters           = "charFilters"
	PropTokenFilters          = "tokenFilters"
	PropEncryptionKey         = "encryptionKey"
	PropSimilarity            = "similarity"
	PropSemantic              = "semantic"
	PropVectorSearch          = "vectorSearch"
	PropNormalizers           = "normalizers"
	PropODataContext          = "@odata.context"
	PropODataETag             = "@odata.etag"
)

// Definition is the schema of one search index. It is kept as a generic JSON
// object so that properties unknown to this tool survive a snapshot unchanged.
// Numbers are held as json.Number to avoid float rounding.
type Definition map[string]interface{}

// Name returns the index name, or "" when it is missing or not a string.
func (d Definition) Name() string {
	name, _ := d[PropName].(string)
	return name
}

// Fields returns the field list, or nil when it is absent.
func (d Definition) Fields() []interface{} {
	fields, _ := d[PropFields].([]interface{})
	return fields
}

// Clone returns a deep copy of d.
func (d Definition) Clone() Definition {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]interface{}(d)).(map[string]interface{})
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Definition:
		return Definition(cloneValue(map[string]interface{}(t)).(map[string]interface{}))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Decode parses a JSON object into a Definition.
func Decode(data []byte) (Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode index definition: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode index definition: unexpected data after JSON object")
	}

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("decode index definition: expected a JSON object, got %T", raw)
	}
	return Definition(obj), nil
}

// Encode serializes d as indented JSON.
func (d Definition) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}(d)); err != nil {
		return nil, fmt.Errorf("encode index definition: %w", err)
	}
	return buf.Bytes(), nil
}
