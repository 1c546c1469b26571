// Package xmlview resolves framework model references inside XML view and
// data files: a <record model="res.partner"> declaration's model attribute
// is a reference into the Model Registry the same way a Python base-class
// name is. Grounded on original_source/features/xml_ast_utils.rs's
// visit_record, which walks every descendant "record" node and, for each
// attribute whose byte range contains the cursor offset, resolves a
// "model" attribute's value against the model index.
//
// The target platform's XML files are never round-tripped or mutated —
// only scanned for this one reference shape — so this package finds
// model attribute value ranges with a regular expression rather than a
// full XML parser. No example repo in the retrieval pack imports an XML
// library with attribute-value byte offsets (encoding/xml reports token
// boundaries, not individual attribute-value spans), so there is no
// ecosystem dependency to ground a tokenizer on; the regex approach
// mirrors how internal/rope hand-rolls its own offset index for the same
// reason.
package xmlview

import (
	"regexp"

	"github.com/standardbeagle/corels/internal/types"
)

// recordModelAttr matches a <record ...> tag's model="..." attribute and
// captures the attribute value along with its position via submatch
// indices, giving exact byte offsets without a full parse.
var recordModelAttr = regexp.MustCompile(`<record\b[^>]*\bmodel\s*=\s*"([^"]*)"`)

// ModelRef is one model="..." reference found in an XML file's content.
type ModelRef struct {
	Model string
	Range types.ByteRange
}

// FindModelRefs returns every <record model="..."> reference in content,
// in document order.
func FindModelRefs(content string) []ModelRef {
	matches := recordModelAttr.FindAllStringSubmatchIndex(content, -1)
	if matches == nil {
		return nil
	}
	refs := make([]ModelRef, 0, len(matches))
	for _, m := range matches {
		start, end := m[2], m[3]
		refs = append(refs, ModelRef{
			Model: content[start:end],
			Range: types.ByteRange{Start: start, End: end},
		})
	}
	return refs
}

// ModelRefAt returns the model reference whose value range contains
// offset, if any. Mirrors visit_record's per-attribute range check: a
// reference is only returned when the cursor sits inside the attribute
// value itself, not anywhere in the surrounding tag.
func ModelRefAt(content string, offset int) (ModelRef, bool) {
	for _, ref := range FindModelRefs(content) {
		if ref.Range.Contains(offset) {
			return ref, true
		}
	}
	return ModelRef{}, false
}
