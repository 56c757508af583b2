// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package multipart materializes multipart entities into a single
// contiguous body.
package multipart

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/z5labs/httpsvc/httpmsg"
)

// Body is an encoded multipart entity.
type Body struct {
	Bytes []byte

	// ContentType is the media type the body was encoded with, always
	// including its boundary parameter.
	ContentType string
}

// EncodingError is returned when an entity can not be encoded. Part is
// empty if the content type itself was the problem.
type EncodingError struct {
	ContentType string
	Part        string
	Cause       error
}

// Error implements the [error] interface.
func (e EncodingError) Error() string {
	if e.Part == "" {
		return fmt.Sprintf("failed to encode multipart body as %q: %s", e.ContentType, e.Cause)
	}
	return fmt.Sprintf("failed to encode multipart part %q: %s", e.Part, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e EncodingError) Unwrap() error {
	return e.Cause
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Encode writes every part of entity, fully read, into one buffer.
//
// Parts without a Content-Disposition header get one of type form-data
// when the subtype of contentType is form-data, and attachment otherwise,
// naming the part and its file name if it has one. Headers already set on
// a part are kept as is. The boundary is taken from contentType or
// generated when it has none.
func Encode(entity *httpmsg.MultipartEntity, contentType string) (Body, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Body{}, EncodingError{ContentType: contentType, Cause: err}
	}
	typ, subtype, _ := strings.Cut(mediaType, "/")
	if typ != "multipart" || subtype == "" {
		return Body{}, EncodingError{
			ContentType: contentType,
			Cause:       fmt.Errorf("not a multipart media type: %s", mediaType),
		}
	}

	disposition := "attachment"
	if subtype == "form-data" {
		disposition = "form-data"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if b, ok := params["boundary"]; ok {
		err = w.SetBoundary(b)
		if err != nil {
			return Body{}, EncodingError{ContentType: contentType, Cause: err}
		}
	}

	if entity != nil {
		for _, part := range entity.Parts {
			err = writePart(w, disposition, part)
			if err != nil {
				return Body{}, EncodingError{ContentType: contentType, Part: part.Name, Cause: err}
			}
		}
	}
	err = w.Close()
	if err != nil {
		return Body{}, EncodingError{ContentType: contentType, Cause: err}
	}

	params["boundary"] = w.Boundary()
	return Body{
		Bytes:       buf.Bytes(),
		ContentType: mime.FormatMediaType(mediaType, params),
	}, nil
}

func writePart(w *multipart.Writer, disposition string, part httpmsg.Part) error {
	h := make(textproto.MIMEHeader, len(part.Header)+2)
	for k, vs := range part.Header {
		h[textproto.CanonicalMIMEHeaderKey(k)] = append([]string(nil), vs...)
	}
	if h.Get("Content-Type") == "" && part.ContentType != "" {
		h.Set("Content-Type", part.ContentType)
	}
	if h.Get("Content-Disposition") == "" {
		h.Set("Content-Disposition", contentDisposition(disposition, part))
	}

	pw, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if part.Body == nil {
		return nil
	}
	_, err = io.Copy(pw, part.Body)
	return err
}

func contentDisposition(disposition string, part httpmsg.Part) string {
	var b strings.Builder
	b.WriteString(disposition)
	b.WriteString(`; name="`)
	b.WriteString(quoteEscaper.Replace(part.Name))
	b.WriteByte('"')
	if part.FileName != "" {
		b.WriteString(`; filename="`)
		b.WriteString(quoteEscaper.Replace(part.FileName))
		b.WriteByte('"')
	}
	return b.String()
}
