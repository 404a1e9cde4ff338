// Package charset maps MIME charset names onto golang.org/x/text encodings
// and answers the charset-dependent questions asked while composing a message.
package charset

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
)

// UTF8 is the default body and header charset.
const UTF8 = "utf-8"

// aliases maps charset names the IANA index does not know onto the
// encoding used to produce them.
var aliases = map[string]encoding.Encoding{
	"iso-2022-jp":    japanese.ISO2022JP,
	"iso-2022-jp-ms": japanese.ISO2022JP,
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsUTF8 reports whether name denotes UTF-8. The empty name counts as UTF-8.
func IsUTF8(name string) bool {
	switch normalize(name) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// Lookup returns the encoding registered for name.
// UTF-8 has no encoding; callers check IsUTF8 first.
func Lookup(name string) (encoding.Encoding, error) {
	n := normalize(name)
	if enc, ok := aliases[n]; ok {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(n)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
	return enc, nil
}

// Encode converts a UTF-8 string into the named charset. Characters the
// target charset cannot represent are replaced.
func Encode(s, name string) (string, error) {
	if IsUTF8(name) {
		return s, nil
	}
	enc, err := Lookup(name)
	if err != nil {
		return "", err
	}
	out, err := encoding.ReplaceUnsupported(enc.NewEncoder()).String(s)
	if err != nil {
		return "", fmt.Errorf("failed to convert to %s: %w", name, err)
	}
	return out, nil
}

// ContentTypeLabel returns the charset label written into Content-Type
// headers. The Microsoft ISO-2022-JP variant is announced as plain ISO-2022-JP.
func ContentTypeLabel(name string) string {
	if normalize(name) == "iso-2022-jp-ms" {
		return "ISO-2022-JP"
	}
	return name
}

// WordLabel returns the charset label used inside RFC 2047 encoded words.
func WordLabel(name string) string {
	return strings.ToUpper(ContentTypeLabel(name))
}

// TransferEncoding returns the Content-Transfer-Encoding for a body written
// in the named charset: 7bit for the ISO-2022-JP family, 8bit otherwise.
func TransferEncoding(name string) string {
	switch normalize(name) {
	case "iso-2022-jp", "iso-2022-jp-ms":
		return "7bit"
	}
	return "8bit"
}

// WordDecoder returns a decoder for RFC 2047 encoded words that understands
// every charset Lookup does.
func WordDecoder() *mime.WordDecoder {
	return &mime.WordDecoder{
		CharsetReader: func(name string, r io.Reader) (io.Reader, error) {
			if IsUTF8(name) {
				return r, nil
			}
			enc, err := Lookup(name)
			if err != nil {
				return nil, err
			}
			return enc.NewDecoder().Reader(r), nil
		},
	}
}

// DecodeHeader decodes every encoded word in s. Undecodable input is
// returned unchanged.
func DecodeHeader(s string) string {
	decoded, err := WordDecoder().DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
