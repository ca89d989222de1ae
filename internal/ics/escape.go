package ics

import (
	"strings"
)

// newlineMarker is the trailing newline some calendar clients have come to
// expect after the calendar name and summary of our documents. It is a raw
// newline in the value; the serializer writes it as the TEXT escape \n.
const newlineMarker = "\n"

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// textValue prepares a TEXT property value. golang-ical escapes backslash,
// semicolon, comma and newline on serialize, so values go in raw; only CR
// and CRLF are folded into LF, which is the one break TEXT can express.
func textValue(s string) string {
	return lineBreaks.Replace(s)
}

// stripLineBreaks removes raw CR/LF from values that are not TEXT (URIs),
// where escaping is not defined and a raw break would end the content line.
func stripLineBreaks(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// trimMarker drops one trailing newline marker from an already unescaped
// TEXT value.
func trimMarker(v string) string {
	return strings.TrimSuffix(v, newlineMarker)
}
