package fetch

import (
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

// ReadText reads and closes the body, decoding it to UTF-8.
func (r *Response) ReadText() (string, error) {
	defer r.Body.Close()

	var reader io.Reader = r.Body
	if r.MaxBytes > 0 {
		reader = io.LimitReader(r.Body, r.MaxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if r.MaxBytes > 0 && int64(len(data)) > r.MaxBytes {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, r.MaxBytes)
	}
	return DecodeText(data, r.ContentType)
}

// DecodeText converts data to UTF-8. The charset comes from the content
// type; without one, valid UTF-8 is kept and anything else is sniffed.
func DecodeText(data []byte, contentType string) (string, error) {
	charset := ""
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			charset = params["charset"]
		}
	}
	if charset == "" {
		if utf8.Valid(data) {
			return string(data), nil
		}
		if res, err := chardet.NewTextDetector().DetectBest(data); err == nil {
			charset = res.Charset
		}
	}

	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s body: %w", charset, err)
	}
	return string(out), nil
}
