// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package multipart

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/z5labs/httpsvc/httpmsg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readParts(t *testing.T, body Body) []*multipart.Part {
	t.Helper()

	_, params, err := mime.ParseMediaType(body.ContentType)
	require.NoError(t, err)

	r := multipart.NewReader(bytes.NewReader(body.Bytes), params["boundary"])
	var parts []*multipart.Part
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			return parts
		}
		require.NoError(t, err)
		parts = append(parts, p)
	}
}

func twoParts() *httpmsg.MultipartEntity {
	return &httpmsg.MultipartEntity{Parts: []httpmsg.Part{
		{
			Name:        "upload",
			FileName:    "report.txt",
			ContentType: "text/plain",
			Body:        strings.NewReader("file contents"),
		},
		{
			Name: "comment",
			Body: strings.NewReader("looks good"),
		},
	}}
}

func TestEncode(t *testing.T) {
	t.Run("will use form-data dispositions", func(t *testing.T) {
		t.Run("if the subtype is form-data", func(t *testing.T) {
			body, err := Encode(twoParts(), "multipart/form-data")
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(body.ContentType, "multipart/form-data; boundary="))

			s := string(body.Bytes)
			assert.Contains(t, s, `Content-Disposition: form-data; name="upload"; filename="report.txt"`)
			assert.Contains(t, s, `Content-Disposition: form-data; name="comment"`+"\r\n")
			assert.NotContains(t, s, `name="comment"; filename`)

			parts := readParts(t, body)
			require.Len(t, parts, 2)
			assert.Equal(t, "upload", parts[0].FormName())
			assert.Equal(t, "report.txt", parts[0].FileName())
			assert.Equal(t, "text/plain", parts[0].Header.Get("Content-Type"))
			assert.Equal(t, "comment", parts[1].FormName())
		})
	})

	t.Run("will use attachment dispositions", func(t *testing.T) {
		t.Run("if the subtype is not form-data", func(t *testing.T) {
			body, err := Encode(twoParts(), "multipart/mixed; boundary=simple")
			require.NoError(t, err)

			assert.Equal(t, "multipart/mixed; boundary=simple", body.ContentType)

			s := string(body.Bytes)
			assert.Contains(t, s, "--simple\r\n")
			assert.Contains(t, s, `Content-Disposition: attachment; name="upload"; filename="report.txt"`)
			assert.Contains(t, s, `Content-Disposition: attachment; name="comment"`+"\r\n")
			assert.True(t, strings.HasSuffix(s, "--simple--\r\n"))
		})
	})

	t.Run("will keep part headers", func(t *testing.T) {
		t.Run("if a part already has a content disposition", func(t *testing.T) {
			entity := &httpmsg.MultipartEntity{Parts: []httpmsg.Part{
				{
					Name:   "ignored",
					Header: http.Header{"Content-Disposition": {`inline; name="kept"`}},
					Body:   strings.NewReader("x"),
				},
			}}

			body, err := Encode(entity, "multipart/related; boundary=b")
			require.NoError(t, err)

			assert.Contains(t, string(body.Bytes), `Content-Disposition: inline; name="kept"`)
			assert.NotContains(t, string(body.Bytes), "ignored")
		})
	})

	t.Run("will return an EncodingError", func(t *testing.T) {
		t.Run("if the content type can not be parsed", func(t *testing.T) {
			_, err := Encode(twoParts(), "multipart/")

			var ee EncodingError
			require.ErrorAs(t, err, &ee)
			assert.Empty(t, ee.Part)
		})

		t.Run("if the content type is not multipart", func(t *testing.T) {
			_, err := Encode(twoParts(), "text/plain")

			var ee EncodingError
			assert.ErrorAs(t, err, &ee)
		})

		t.Run("if a part can not be read", func(t *testing.T) {
			readErr := errors.New("disk gone")
			entity := &httpmsg.MultipartEntity{Parts: []httpmsg.Part{
				{Name: "broken", Body: io.MultiReader(strings.NewReader("partial"), &failingReader{err: readErr})},
			}}

			body, err := Encode(entity, "multipart/form-data")

			var ee EncodingError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, "broken", ee.Part)
			assert.ErrorIs(t, err, readErr)
			assert.Nil(t, body.Bytes)
		})
	})
}

type failingReader struct {
	err error
}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, r.err
}
