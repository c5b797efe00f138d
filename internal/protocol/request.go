// Package protocol decodes the daemon's binary request wire format: a
// single length-prefixed request per connection, described in spec §4.6
// and §6.
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/ffind/ffind/internal/errors"
)

// maxFieldLen is the 1 MiB ceiling on any length-prefixed field.
const maxFieldLen = 1 << 20

// Flag bits within the request's single flags byte.
const (
	FlagCaseInsensitive byte = 1 << 0
	FlagContentRegex    byte = 1 << 1
	FlagContentGlob     byte = 1 << 2
)

// Type filter values.
const (
	TypeAny byte = iota
	TypeFile
	TypeDir
)

// Comparison operators for size and mtime filters.
const (
	OpNone byte = iota
	OpLess
	OpEqual
	OpGreater
)

// Request is one decoded client query.
type Request struct {
	NamePattern    string
	PathPattern    string
	ContentPattern string

	CaseInsensitive bool
	ContentIsRegex  bool
	ContentIsGlob   bool

	TypeFilter byte

	SizeOp  byte
	SizeVal int64

	MTimeOp   byte
	MTimeDays int32

	BeforeContext byte
	AfterContext  byte
}

// HasContentPattern reports whether the request carries a non-empty
// content pattern, which both excludes directories from the result set
// and requires queuing survivors to the content scanner.
func (r *Request) HasContentPattern() bool {
	return r.ContentPattern != ""
}

// Decode reads one request from r per the wire format in spec §4.6. It
// returns a *errors.Error with CodeProtocol on any framing violation:
// an oversize field, or content-regex and content-glob both set.
func Decode(r io.Reader) (*Request, error) {
	var req Request

	name, err := readField(r, "name")
	if err != nil {
		return nil, err
	}
	path, err := readField(r, "path")
	if err != nil {
		return nil, err
	}
	content, err := readField(r, "content")
	if err != nil {
		return nil, err
	}
	req.NamePattern = name
	req.PathPattern = path
	req.ContentPattern = content

	var flags, typeFilter, sizeOp, mtimeOp byte
	if err := readByte(r, &flags); err != nil {
		return nil, err
	}
	if err := readByte(r, &typeFilter); err != nil {
		return nil, err
	}
	req.CaseInsensitive = flags&FlagCaseInsensitive != 0
	req.ContentIsRegex = flags&FlagContentRegex != 0
	req.ContentIsGlob = flags&FlagContentGlob != 0
	req.TypeFilter = typeFilter

	if req.ContentIsRegex && req.ContentIsGlob {
		return nil, errors.Protocol("Invalid regex pattern")
	}

	if err := readByte(r, &sizeOp); err != nil {
		return nil, err
	}
	req.SizeOp = sizeOp
	if sizeOp != OpNone {
		var v int64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, errors.Wrap(err, errors.CodeProtocol, "reading size value")
		}
		req.SizeVal = v
	}

	if err := readByte(r, &mtimeOp); err != nil {
		return nil, err
	}
	req.MTimeOp = mtimeOp
	if mtimeOp != OpNone {
		var v int32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, errors.Wrap(err, errors.CodeProtocol, "reading mtime value")
		}
		req.MTimeDays = v
	}

	if err := readByte(r, &req.BeforeContext); err != nil {
		return nil, err
	}
	if err := readByte(r, &req.AfterContext); err != nil {
		return nil, err
	}

	if (req.BeforeContext != 0 || req.AfterContext != 0) && !req.HasContentPattern() {
		return nil, errors.Protocol("context lines require a content pattern")
	}

	return &req, nil
}

func readField(r io.Reader, label string) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", errors.Wrapf(err, errors.CodeProtocol, "reading %s pattern length", label)
	}
	if length > maxFieldLen {
		return "", errors.Protocolf("%s pattern too large", titleCase(label))
	}
	if length == 0 {
		return "", nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errors.Wrapf(err, errors.CodeProtocol, "reading %s pattern", label)
	}
	return string(buf), nil
}

func readByte(r io.Reader, dst *byte) error {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return errors.Wrap(err, errors.CodeProtocol, "reading request")
	}
	*dst = buf[0]
	return nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
