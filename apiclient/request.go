package apiclient

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"

	"github.com/pkg/errors"
)

// Request describes one API call. Retried is set on the single re-issue that follows
// a successful token refresh; a Retried request is never refreshed again.
type Request struct {
	Method   string
	Path     string
	Query    url.Values
	Body     any     // JSON encoded when set
	Upload   *Upload // multipart/form-data; takes precedence over Body
	Header   http.Header
	SkipAuth bool // no bearer token and no refresh on 401
	Retried  bool

	payload     []byte
	contentType string
	encoded     bool
}

// File is one part of a multipart upload.
type File struct {
	Field   string
	Name    string
	Content io.Reader
}

// Upload is a multipart/form-data body.
type Upload struct {
	Fields map[string]string
	Files  []File
}

// retry returns a copy of r marked as retried. The encoded body is shared so
// consumed readers are not read twice.
func (r *Request) retry() *Request {
	cp := *r
	cp.Header = r.Header.Clone()
	cp.Retried = true
	return &cp
}

func (r *Request) isUnsafe() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// encode renders the body once and caches it on the request.
func (r *Request) encode() ([]byte, string, error) {
	if r.encoded {
		return r.payload, r.contentType, nil
	}

	switch {
	case r.Upload != nil:
		payload, contentType, err := r.Upload.encode()
		if err != nil {
			return nil, "", err
		}
		r.payload, r.contentType = payload, contentType
	case r.Body != nil:
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, "", errors.Wrap(err, "[Request.encode] json.Marshal")
		}
		r.payload, r.contentType = payload, "application/json"
	}
	r.encoded = true
	return r.payload, r.contentType, nil
}

func (u *Upload) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, name := range sortedKeys(u.Fields) {
		if err := mw.WriteField(name, u.Fields[name]); err != nil {
			return nil, "", errors.Wrapf(err, "[Upload.encode] field %s", name)
		}
	}

	for _, f := range u.Files {
		part, err := mw.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return nil, "", errors.Wrapf(err, "[Upload.encode] file %s", f.Name)
		}
		if f.Content != nil {
			if _, err := io.Copy(part, f.Content); err != nil {
				return nil, "", errors.Wrapf(err, "[Upload.encode] copy %s", f.Name)
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", errors.Wrap(err, "[Upload.encode] Close")
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
