package hprof

import (
	"encoding/binary"
	"io"
	"strings"

	apperrors "github.com/heapstream/pkg/errors"
)

const (
	formatPrefix = "JAVA PROFILE "

	// A format tag longer than this is not an HPROF file.
	maxFormatTagLen = 64

	// requiredIDSize is the only identifier width this analyzer supports.
	requiredIDSize = 8
)

// supportedVersions are the HPROF versions this analyzer understands.
var supportedVersions = map[string]bool{
	"JAVA PROFILE 1.0.1": true,
	"JAVA PROFILE 1.0.2": true,
}

// Header represents the HPROF file header.
type Header struct {
	Format         string // e.g., "JAVA PROFILE 1.0.2"
	IDSize         int    // identifier width in bytes
	TimestampMilli int64  // dump timestamp, milliseconds since epoch
}

// readHeader reads and validates the HPROF file header from r. The reader is
// left positioned at the first top-level record. The format tag is read one
// byte at a time so no record bytes are consumed past the header.
func readHeader(r io.Reader) (*Header, error) {
	var tag strings.Builder
	one := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, one); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeHeaderInvalid, "truncated format tag", err)
		}
		if one[0] == 0 {
			break
		}
		tag.WriteByte(one[0])
		if tag.Len() > maxFormatTagLen {
			return nil, apperrors.New(apperrors.CodeHeaderInvalid, "format tag too long, not an hprof file")
		}
	}

	format := tag.String()
	if !strings.HasPrefix(format, formatPrefix) {
		return nil, apperrors.Newf(apperrors.CodeHeaderInvalid, "bad format tag %q", format)
	}
	if !supportedVersions[format] {
		return nil, apperrors.Newf(apperrors.CodeUnsupportedFormat, "unsupported hprof version %q", format)
	}

	rest := make([]byte, 12)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeHeaderInvalid, "truncated header", err)
	}

	idSize := binary.BigEndian.Uint32(rest[0:4])
	if idSize != requiredIDSize {
		return nil, apperrors.Newf(apperrors.CodeUnsupportedFormat,
			"identifier size %d is not supported, only 64-bit dumps (id size 8) are handled", idSize)
	}

	return &Header{
		Format:         format,
		IDSize:         int(idSize),
		TimestampMilli: int64(binary.BigEndian.Uint64(rest[4:12])),
	}, nil
}
