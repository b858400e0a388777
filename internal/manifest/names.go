package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

const (
	// ArchiveExt is the extension of a plaintext archive.
	ArchiveExt = ".tar.gz"
	// EncryptedExt is the suffix appended to an archive once encrypted.
	EncryptedExt = ".age"
	// LatestToken is the fixed alias component of the always-overwritten
	// "latest" object name.
	LatestToken = "latest"

	// TimestampLayout is the archive timestamp format. Lexicographic order
	// of formatted timestamps matches chronological order, which the
	// retention sweeper relies on.
	TimestampLayout = "20060102-150405"
)

// ageHeader is the first line of a binary age v1 stream.
const ageHeader = "age-encryption.org/v1"

// gzipMagic is the two-byte gzip member header.
var gzipMagic = []byte{0x1f, 0x8b}

// timestampRe matches the embedded timestamp token in an archive name.
var timestampRe = regexp.MustCompile(`(\d{8})-(\d{6})`)

// ArchiveName returns the timestamped remote object name for a backup taken
// at ts. encrypted appends the encrypted suffix.
func ArchiveName(prefix string, ts time.Time, encrypted bool) string {
	name := fmt.Sprintf("%s-%s%s", prefix, ts.UTC().Format(TimestampLayout), ArchiveExt)
	if encrypted {
		name += EncryptedExt
	}
	return name
}

// LatestName returns the "latest" alias object name.
func LatestName(prefix string, encrypted bool) string {
	name := fmt.Sprintf("%s-%s%s", prefix, LatestToken, ArchiveExt)
	if encrypted {
		name += EncryptedExt
	}
	return name
}

// SnapshotDirName returns the single top-level directory name inside an
// archive for a backup taken at ts.
func SnapshotDirName(prefix string, ts time.Time) string {
	return fmt.Sprintf("%s-%s", prefix, ts.UTC().Format(TimestampLayout))
}

// IsArchiveName reports whether name looks like one of our archive objects:
// it carries the prefix and the plaintext or encrypted archive extension.
func IsArchiveName(prefix, name string) bool {
	if !strings.HasPrefix(name, prefix+"-") {
		return false
	}
	return strings.HasSuffix(name, ArchiveExt) || strings.HasSuffix(name, ArchiveExt+EncryptedExt)
}

// IsEncryptedName reports whether name carries the encrypted suffix.
func IsEncryptedName(name string) bool {
	return strings.HasSuffix(name, EncryptedExt)
}

// IsLatestName reports whether name is a "latest" alias for the prefix.
// Latest aliases are exempt from retention.
func IsLatestName(prefix, name string) bool {
	return name == LatestName(prefix, false) || name == LatestName(prefix, true)
}

// ParseTimestamp extracts and parses the embedded timestamp from an archive
// object name. ok is false when the name carries no parseable timestamp
// token; callers must treat that as "do not touch this object", never as a
// deletion candidate.
func ParseTimestamp(name string) (time.Time, bool) {
	m := timestampRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(TimestampLayout, m[1]+"-"+m[2])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// SniffEncrypted reports whether the file at path is an age stream, by
// content rather than by name. Used when the object name alone is not
// conclusive (legacy names, operator-supplied names).
func SniffEncrypted(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open archive for sniffing: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, err := br.Peek(len(ageHeader))
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("read archive header: %w", err)
	}
	if string(head) == ageHeader {
		return true, nil
	}
	// An armored age file starts with the ASCII armor begin line.
	if bytes.HasPrefix(head, []byte("-----BEGIN AGE")) {
		return true, nil
	}
	return false, nil
}

// SniffGzip reports whether the file at path starts with a gzip member
// header.
func SniffGzip(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open archive for sniffing: %w", err)
	}
	defer f.Close()

	head := make([]byte, len(gzipMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, fmt.Errorf("read archive header: %w", err)
	}
	return bytes.Equal(head, gzipMagic), nil
}
