// Package compose assembles outgoing messages: it validates file
// attachments against the portal's count/size/type policy and drives the
// send pipeline (text, files, voice clips) against the send boundary.
package compose

import (
	"strings"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/chat"
)

// Default attachment policy.
const (
	DefaultMaxFiles  = 5
	DefaultMaxSizeMB = 10
)

// Rejection reasons reported to the user.
const (
	ReasonTooLarge     = "too large"
	ReasonLimitReached = "limit reached"
)

// File is a candidate attachment before it has been sent: raw bytes plus
// the metadata the picker knows about.
type File struct {
	Name string
	MIME string
	Size int64
	Data []byte
}

// RejectedFile pairs a rejected candidate with the reason it was refused.
type RejectedFile struct {
	File   File
	Reason string
}

// ValidationResult splits a candidate batch into accepted files (input
// order preserved) and rejected ones.
type ValidationResult struct {
	Accepted []File
	Rejected []RejectedFile
}

// ValidateFiles applies the attachment policy to a batch of candidates on
// top of the files already selected. Per candidate, the size rule is
// checked first; once the count limit triggers, every remaining candidate
// in the batch is rejected with the same reason and no further size
// checks. Pure function, no I/O.
func ValidateFiles(candidates []File, alreadySelected []File, maxFiles, maxSizeMB int) ValidationResult {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}
	maxBytes := int64(maxSizeMB) << 20

	var result ValidationResult
	limitHit := false

	for _, f := range candidates {
		if limitHit {
			result.Rejected = append(result.Rejected, RejectedFile{File: f, Reason: ReasonLimitReached})
			continue
		}
		if f.Size > maxBytes {
			result.Rejected = append(result.Rejected, RejectedFile{File: f, Reason: ReasonTooLarge})
			continue
		}
		if len(alreadySelected)+len(result.Accepted) >= maxFiles {
			limitHit = true
			result.Rejected = append(result.Rejected, RejectedFile{File: f, Reason: ReasonLimitReached})
			continue
		}
		result.Accepted = append(result.Accepted, f)
	}
	return result
}

// acceptedMIME maps the MIME prefixes/values the portal accepts to the
// attachment file-type categories: images, PDF, Word, Excel, plain text.
var acceptedMIME = map[string]string{
	"application/pdf":    chat.FilePDF,
	"application/msword": chat.FileDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": chat.FileDocument,
	"application/vnd.ms-excel": chat.FileExcel,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": chat.FileExcel,
	"text/plain": chat.FileDocument,
}

// AllowedMIME reports whether the MIME type is within the accepted upload
// categories.
func AllowedMIME(mime string) bool {
	mime = normalizeMIME(mime)
	if strings.HasPrefix(mime, "image/") {
		return true
	}
	_, ok := acceptedMIME[mime]
	return ok
}

// FileTypeForMIME maps a MIME type to the attachment file-type category.
// Unknown types fall back to "document".
func FileTypeForMIME(mime string) string {
	mime = normalizeMIME(mime)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return chat.FileImage
	case strings.HasPrefix(mime, "audio/"):
		return chat.FileAudio
	case strings.HasPrefix(mime, "video/"):
		return chat.FileVideo
	}
	if t, ok := acceptedMIME[mime]; ok {
		return t
	}
	return chat.FileDocument
}

func normalizeMIME(mime string) string {
	// Strip parameters like "; charset=utf-8".
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}
