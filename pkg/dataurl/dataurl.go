package dataurl

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Encode builds a data: URL that can be dropped straight into an <img> src.
func Encode(mime string, data []byte) string {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}

// Decode splits a base64 data: URL back into its mime type and raw bytes.
func Decode(url string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data url missing payload")
	}
	mime = meta
	if enc, found := strings.CutSuffix(meta, ";base64"); found {
		mime = enc
	} else {
		return "", nil, fmt.Errorf("unsupported data url encoding: %s", meta)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url payload: %w", err)
	}
	return mime, data, nil
}
