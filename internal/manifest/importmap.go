package manifest

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"golang.org/x/net/html"
)

// ImportMap is a browser import map.
type ImportMap struct {
	Imports map[string]string `json:"imports"`
}

// BuildImportMap maps every runtime dependency (and its subpaths) to the CDN
// so bare specifiers the bundler cannot resolve from memory still load.
func BuildImportMap(m *Manifest, cdn string) *ImportMap {
	cdn = strings.TrimSuffix(cdn, "/")
	im := &ImportMap{Imports: make(map[string]string, len(m.Dependencies)*2)}
	for _, name := range sortedKeys(m.Dependencies) {
		spec := name
		if r := cdnVersion(m.Dependencies[name]); r != "" {
			spec = name + "@" + r
		}
		im.Imports[name] = cdn + "/" + spec
		im.Imports[name+"/"] = cdn + "/" + spec + "/"
	}
	return im
}

// cdnVersion drops ranges a CDN cannot pin (workspace, file, git, urls).
func cdnVersion(r string) string {
	r = strings.TrimSpace(r)
	switch {
	case r == "", r == "*", r == "latest":
		return ""
	case strings.Contains(r, ":"), strings.Contains(r, "/"):
		return ""
	}
	return r
}

// InjectImportMap inserts the import map as the first child of <head>.
// Documents that already declare an import map are returned unchanged, so
// injection is idempotent. Without a <head> the script goes after <html>,
// or at the very start of the document.
func InjectImportMap(doc []byte, im *ImportMap) ([]byte, bool, error) {
	if im == nil || len(im.Imports) == 0 {
		return doc, false, nil
	}

	payload, err := sonic.ConfigStd.Marshal(im)
	if err != nil {
		return nil, false, fmt.Errorf("encode import map: %w", err)
	}
	script := `<script type="importmap">` + string(payload) + `</script>`

	offset, found, err := insertionPoint(doc)
	if err != nil {
		return nil, false, err
	}
	if found < 0 {
		return doc, false, nil
	}

	var out bytes.Buffer
	out.Grow(len(doc) + len(script))
	out.Write(doc[:offset])
	out.WriteString(script)
	out.Write(doc[offset:])
	return out.Bytes(), true, nil
}

// insertionPoint returns the byte offset after <head> (or <html>). found is
// -1 when the document already carries an import map.
func insertionPoint(doc []byte) (offset int, found int, err error) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	pos := 0
	htmlEnd := -1
	headEnd := -1

	for {
		tt := z.Next()
		raw := len(z.Raw())
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return 0, 0, fmt.Errorf("tokenize html: %w", z.Err())
			}
			switch {
			case headEnd >= 0:
				return headEnd, 1, nil
			case htmlEnd >= 0:
				return htmlEnd, 1, nil
			default:
				return 0, 1, nil
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "html":
				if htmlEnd < 0 {
					htmlEnd = pos + raw
				}
			case "head":
				if headEnd < 0 {
					headEnd = pos + raw
				}
			case "script":
				for _, a := range tok.Attr {
					if a.Key == "type" && strings.EqualFold(strings.TrimSpace(a.Val), "importmap") {
						return 0, -1, nil
					}
				}
			}
		}
		pos += raw
	}
}
