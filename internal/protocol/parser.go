package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Parser turns model responses into action records.
// The zero value is ready to use.
type Parser struct{}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseAll implements the plan parser contract used by the orchestrator.
func (p *Parser) ParseAll(text string) []ActionRecord {
	return ParseAll(text)
}

// region is one matched <TAG>content</TAG> span.
type region struct {
	tag     string
	content string
}

// ParseAll returns one record per tagged region, in the order the model
// emitted them. When the text holds no tags, a single implicit FinalAnswer
// with an empty payload is returned so callers always get something to act on.
func ParseAll(text string) []ActionRecord {
	regions := scan(text)
	if len(regions) == 0 {
		return []ActionRecord{{
			Kind:     KindFinalAnswer,
			Payload:  map[string]any{},
			RawText:  text,
			Implicit: true,
		}}
	}

	records := make([]ActionRecord, 0, len(regions))
	for _, r := range regions {
		records = append(records, newRecord(r))
	}
	return records
}

// ParseTags collapses all regions into a map of lower-cased tag name to
// trimmed inner text. The first occurrence of a tag wins.
func ParseTags(text string) map[string]string {
	tags := make(map[string]string)
	for _, r := range scan(text) {
		key := strings.ToLower(r.tag)
		if _, seen := tags[key]; seen {
			continue
		}
		tags[key] = strings.TrimSpace(r.content)
	}
	return tags
}

// newRecord decodes the region content into a payload.
func newRecord(r region) ActionRecord {
	content := strings.TrimSpace(r.content)
	kind := ActionKind(r.tag)
	if r.tag == "" {
		kind = KindUnknown
	}

	payload, err := decodePayload(content)
	if err != nil {
		return ActionRecord{
			Kind:       kind,
			Payload:    map[string]any{FieldContent: content},
			RawText:    r.content,
			ParseError: err.Error(),
		}
	}

	return ActionRecord{
		Kind:    kind,
		Payload: payload,
		RawText: r.content,
	}
}

// decodePayload accepts only a JSON object.
func decodePayload(content string) (map[string]any, error) {
	if content == "" {
		return nil, fmt.Errorf("content is empty")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("content is not valid JSON: %v", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("content is not valid JSON: trailing data after value")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("content is JSON but not an object")
	}
	return obj, nil
}

// scan finds non-overlapping <TAG>...</TAG> regions left to right.
// For each opening tag the first matching closing tag ends the region.
// An opening tag without a closer is skipped one character at a time, the
// same way a backtracking regex would retry at the next position.
func scan(text string) []region {
	var regions []region

	i := 0
	for i < len(text) {
		if text[i] != '<' {
			i++
			continue
		}

		tag, openEnd, ok := readOpenTag(text, i)
		if !ok {
			i++
			continue
		}

		closer := "</" + tag + ">"
		rel := strings.Index(text[openEnd:], closer)
		if rel == -1 {
			i++
			continue
		}

		regions = append(regions, region{
			tag:     tag,
			content: text[openEnd : openEnd+rel],
		})
		i = openEnd + rel + len(closer)
	}

	return regions
}

// readOpenTag reads "<name>" starting at text[start] == '<'. It returns the
// name and the index just past '>'.
func readOpenTag(text string, start int) (string, int, bool) {
	j := start + 1
	for j < len(text) {
		r, size := utf8.DecodeRuneInString(text[j:])
		if !isWordRune(r) {
			break
		}
		j += size
	}

	if j == start+1 || j >= len(text) || text[j] != '>' {
		return "", 0, false
	}
	return text[start+1 : j], j + 1, true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
