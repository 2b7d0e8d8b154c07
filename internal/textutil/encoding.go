// Package textutil repairs header text that arrives in a legacy charset
// instead of UTF-8.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

var encodingsByName = map[string]encoding.Encoding{
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-2":   charmap.ISO8859_2,
	"iso-8859-15":  charmap.ISO8859_15,
	"koi8-r":       charmap.KOI8R,
	"koi8-u":       charmap.KOI8U,
	"shift_jis":    japanese.ShiftJIS,
	"sjis":         japanese.ShiftJIS,
	"euc-jp":       japanese.EUCJP,
	"iso-2022-jp":  japanese.ISO2022JP,
	"euc-kr":       korean.EUCKR,
	"gb2312":       simplifiedchinese.GBK,
	"gbk":          simplifiedchinese.GBK,
	"gb18030":      simplifiedchinese.GB18030,
	"big5":         traditionalchinese.Big5,
}

// Fallbacks tried in order when detection is inconclusive. Western
// single-byte charsets come first since they are the most common in mail.
var fallbacks = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_15,
	japanese.ShiftJIS,
	japanese.EUCJP,
	korean.EUCKR,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
}

// EncodingByName returns the encoding for an IANA charset name, or nil.
func EncodingByName(name string) encoding.Encoding {
	return encodingsByName[strings.ToLower(strings.TrimSpace(name))]
}

// EnsureUTF8 returns s unchanged when it is valid UTF-8. Otherwise it
// detects the charset and converts, replacing whatever bytes still fail
// to decode with U+FFFD.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	data := []byte(s)

	// chardet is unreliable on short input.
	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	if res, err := chardet.NewTextDetector().DetectBest(data); err == nil && res.Confidence >= minConfidence {
		if out, ok := decode(EncodingByName(res.Charset), data); ok {
			return out
		}
	}
	for _, enc := range fallbacks {
		if out, ok := decode(enc, data); ok {
			return out
		}
	}
	return strings.ToValidUTF8(s, "�")
}

func decode(enc encoding.Encoding, data []byte) (string, bool) {
	if enc == nil {
		return "", false
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	return string(out), true
}
