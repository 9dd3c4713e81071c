package oauth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// LegacyFormResponse re-renders the JSON body written by next as
// application/x-www-form-urlencoded, for clients that predate JSON token
// responses. The status code is preserved; non-JSON bodies pass through.
func LegacyFormResponse(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := &bufferedWriter{header: make(http.Header)}
		next.ServeHTTP(buf, r)

		if buf.status == 0 {
			buf.status = http.StatusOK
		}

		body := buf.body.Bytes()
		form, ok := jsonToForm(body)
		if ok && isJSON(buf.header.Get("Content-Type")) {
			buf.header.Set("Content-Type", "application/x-www-form-urlencoded")
			body = []byte(form.Encode())
		}
		buf.header.Del("Content-Length")

		for k, vs := range buf.header {
			w.Header()[k] = vs
		}
		w.WriteHeader(buf.status)
		_, _ = w.Write(body)
	})
}

// bufferedWriter holds a response until the wrapped handler returns
type bufferedWriter struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func (b *bufferedWriter) Header() http.Header {
	return b.header
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}

// jsonToForm flattens a JSON object of scalars into form values
func jsonToForm(body []byte) (url.Values, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}

	form := url.Values{}
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			form.Set(k, val)
		case json.Number:
			form.Set(k, val.String())
		case bool:
			form.Set(k, strconv.FormatBool(val))
		case nil:
		default:
			// Nested values have no form encoding
			return nil, false
		}
	}
	return form, true
}
