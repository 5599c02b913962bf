package httpx

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Fingerprint computes the deterministic cache key for req: a SHA-256 hash
// over method, URL, sorted headers, sorted query params, and sorted form
// fields. Two requests that differ only in header/param/form insertion
// order produce the same fingerprint.
func Fingerprint(req Request) string {
	h := sha256.New()

	h.Write([]byte(req.Method))
	h.Write([]byte(req.URL))

	headers := append([]Header(nil), req.Headers...)
	sort.Slice(headers, func(i, j int) bool { return headers[i].Name < headers[j].Name })
	for _, hd := range headers {
		h.Write([]byte(hd.Name))
		h.Write([]byte(":"))
		h.Write([]byte(hd.Value))
		h.Write([]byte("\n"))
	}

	params := append([]Param(nil), req.Params...)
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	for _, p := range params {
		h.Write([]byte(p.Name))
		h.Write([]byte("="))
		h.Write([]byte(p.Value))
		h.Write([]byte("&"))
	}

	if req.Body != nil {
		fields := append([]FormField(nil), req.Body.Form...)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		for _, f := range fields {
			h.Write([]byte(f.Name))
			h.Write([]byte(":"))
			switch f.Part.Kind {
			case FormPartText:
				h.Write([]byte("text:"))
				h.Write([]byte(f.Part.Text))
			case FormPartData:
				h.Write([]byte("data:"))
				if f.Part.Name != "" {
					h.Write([]byte(f.Part.Name))
				}
				if f.Part.ContentType != "" {
					h.Write([]byte(f.Part.ContentType))
				}
				h.Write(f.Part.Data)
			}
			h.Write([]byte("\n"))
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
