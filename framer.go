package mml2svg

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// declPattern captures the encoding pseudo-attribute of an XML declaration.
var declPattern = regexp.MustCompile(`^\s*<\?xml\b[^>]*?\bencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// declScanLimit bounds how far into a document the declaration is searched.
const declScanLimit = 512

// Framer encodes jobs into request frames and decodes result frames.
type Framer struct {
	marker marker
}

// NewFramer creates a Framer using the given protocol marker prefix.
func NewFramer(prefix string) (*Framer, error) {
	m, err := newMarker(prefix)
	if err != nil {
		return nil, err
	}
	return &Framer{marker: m}, nil
}

// Normalize converts doc to the form the engine expects: UTF-8 without a
// byte order mark, with any declared encoding rewritten to UTF-8 and line
// breaks as LF.
// Documents that could be mistaken for protocol lines are rejected.
func (f *Framer) Normalize(doc Document) (Document, error) {
	data := []byte(doc)

	var err error
	switch {
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		data, err = decode(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), data)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding UTF-16: %v", ErrInvalidDocument, err)
		}
		data = rewriteDeclaredEncoding(data)
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
	}

	if name, _ := declaredEncoding(data); name != "" && !isUTF8(name) {
		enc, lookupErr := htmlindex.Get(name)
		if lookupErr != nil {
			return nil, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidDocument, name)
		}
		data, err = decode(enc, data)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %v", ErrInvalidDocument, name, err)
		}
		data = rewriteDeclaredEncoding(data)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrInvalidDocument)
	}

	// The engine reads a lone CR as a line break.
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))

	for line := range strings.SplitSeq(string(data), "\n") {
		if f.marker.isMarked(line) {
			return nil, fmt.Errorf("%w: line starts with protocol marker %q", ErrInvalidDocument, f.marker.prefix)
		}
	}
	return Document(data), nil
}

// Encode writes the request frame for job. The document must already be
// normalized. The frame always ends with a newline.
func (f *Framer) Encode(w io.Writer, job Job) error {
	var buf bytes.Buffer
	buf.Grow(len(job.Document) + 2*len(f.marker.prefix) + 2*len(job.Token) + 16)

	buf.WriteString(f.marker.header(job.Token))
	buf.WriteByte('\n')
	buf.Write(job.Document)
	if !bytes.HasSuffix(job.Document, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(f.marker.trailer(job.Token))
	buf.WriteByte('\n')

	_, err := w.Write(buf.Bytes())
	return err
}

// decoder returns a resultDecoder for one job.
func (f *Framer) decoder(token string) *resultDecoder {
	return &resultDecoder{marker: f.marker, token: token}
}

// resultDecoder accumulates one job's stdout until its terminator line.
type resultDecoder struct {
	marker marker
	token  string
	buf    bytes.Buffer
	done   bool
	ok     bool
}

// feed consumes one stdout line, newline included.
// It reports done once the terminator for the job's token is seen.
func (d *resultDecoder) feed(line []byte) (done bool, err error) {
	if d.done {
		return true, fmt.Errorf("output after terminator of job %s", d.token)
	}
	fr, marked, err := d.marker.parse(string(line))
	if err != nil {
		return false, err
	}
	if !marked {
		d.buf.Write(line)
		return false, nil
	}
	if fr.kind != frameDone {
		return false, fmt.Errorf("unexpected %q frame on output stream", fr.kindName())
	}
	if fr.token != d.token {
		return false, fmt.Errorf("terminator for job %s while reading job %s", fr.token, d.token)
	}
	d.done = true
	d.ok = fr.status == statusOK
	return true, nil
}

// output returns the job's output without the newline that precedes the
// terminator. It is nil unless the engine reported status=ok.
func (d *resultDecoder) output() []byte {
	if !d.ok {
		return nil
	}
	out := d.buf.Bytes()
	out = bytes.TrimSuffix(out, []byte("\n"))
	out = bytes.TrimSuffix(out, []byte("\r"))
	return bytes.Clone(out)
}

func (f frame) kindName() string {
	switch f.kind {
	case frameJob:
		return keyJob
	case frameEnd:
		return keyEnd
	case frameDone:
		return keyDone
	}
	return "unknown"
}

func declaredEncoding(data []byte) (string, []int) {
	head := data
	if len(head) > declScanLimit {
		head = head[:declScanLimit]
	}
	m := declPattern.FindSubmatchIndex(head)
	if m == nil {
		return "", nil
	}
	return string(head[m[2]:m[3]]), m[2:4]
}

func rewriteDeclaredEncoding(data []byte) []byte {
	_, loc := declaredEncoding(data)
	if loc == nil {
		return data
	}
	out := make([]byte, 0, len(data))
	out = append(out, data[:loc[0]]...)
	out = append(out, "UTF-8"...)
	return append(out, data[loc[1]:]...)
}

func isUTF8(name string) bool {
	switch strings.ToLower(name) {
	case "utf-8", "utf8":
		return true
	}
	return false
}

func decode(enc encoding.Encoding, data []byte) ([]byte, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	return out, err
}
