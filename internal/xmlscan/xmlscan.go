// Package xmlscan extracts tool-call and workflow-trigger XML fragments
// embedded in free-text LLM output (spec.md §6: "Tool-call XML... top-level
// element whose tag equals the tool's registered name"). The model's raw
// response is not itself well-formed XML (it is prose with embedded tags),
// so fragments are located with a tag-matching regex first and only the
// matched fragment is handed to encoding/xml.
package xmlscan

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var tagNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// requestStateRe matches spec.md §6's state-change request tag:
// `<request_state state='NAME'/>`, self-closing, underscores allowed in
// NAME, either quote style.
var requestStateRe = regexp.MustCompile(`<request_state\s+state=['"]([A-Za-z_][A-Za-z0-9_]*)['"]\s*/?>`)

// ExtractRequestState returns the requested state name from the first
// `<request_state>` tag found, if any.
func ExtractRequestState(raw string) (string, bool) {
	m := requestStateRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// thinkRe matches spec.md §6's thought tag: `<think>...</think>`.
var thinkRe = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// ExtractThink returns the content of the first `<think>` tag, if any. Per
// spec, at most one is expected per response.
func ExtractThink(raw string) (string, bool) {
	m := thinkRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// blockPattern returns a regex matching one top-level `<tag>...</tag>` or
// self-closing `<tag .../>` block for the given tag name.
func blockPattern(tag string) (*regexp.Regexp, error) {
	if !tagNameRe.MatchString(tag) {
		return nil, fmt.Errorf("xmlscan: invalid tag name %q", tag)
	}
	pattern := fmt.Sprintf(`(?s)<%s\b[^>]*/>|<%s\b[^>]*>.*?</%s>`, tag, tag, tag)
	return regexp.MustCompile(pattern), nil
}

// FindAll returns every top-level occurrence of tag as a raw XML fragment,
// in order of appearance.
func FindAll(raw, tag string) ([]string, error) {
	re, err := blockPattern(tag)
	if err != nil {
		return nil, err
	}
	return re.FindAllString(raw, -1), nil
}

// FindFirst returns the first occurrence of tag, if any.
func FindFirst(raw, tag string) (string, bool, error) {
	matches, err := FindAll(raw, tag)
	if err != nil {
		return "", false, err
	}
	if len(matches) == 0 {
		return "", false, nil
	}
	return matches[0], true, nil
}

// FlattenChildren decodes a well-formed fragment and returns the text
// content of each immediate child element, keyed by tag name. It is meant
// for simple tool-call XML where each parameter appears once
// (`<file_system><action>list</action><path>.</path></file_system>`); a
// repeated child tag keeps only its last occurrence — use ChildrenText for
// repeated children such as `<task>`.
func FlattenChildren(fragment string) (map[string]string, error) {
	dec := xml.NewDecoder(strings.NewReader(fragment))
	out := make(map[string]string)
	depth := 0
	var currentTag string
	var textBuf strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmlscan: decode: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				currentTag = t.Name.Local
				textBuf.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				textBuf.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				out[currentTag] = strings.TrimSpace(textBuf.String())
			}
			depth--
		}
	}
	return out, nil
}

// ChildrenText returns the text content of every immediate child element
// named childTag, in document order — used for repeated elements like
// `<task_list><task>...</task><task>...</task></task_list>`.
func ChildrenText(fragment, childTag string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(fragment))
	var out []string
	depth := 0
	capturing := false
	var textBuf strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmlscan: decode: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 && t.Name.Local == childTag {
				capturing = true
				textBuf.Reset()
			}
		case xml.CharData:
			if capturing {
				textBuf.Write(t)
			}
		case xml.EndElement:
			if depth == 2 && capturing {
				out = append(out, strings.TrimSpace(textBuf.String()))
				capturing = false
			}
			depth--
		}
	}
	return out, nil
}

// RootTag returns the outermost element name of a fragment.
func RootTag(fragment string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(fragment))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("xmlscan: no root element found")
		}
		if err != nil {
			return "", fmt.Errorf("xmlscan: decode: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}
