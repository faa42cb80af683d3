package posttrade

import "errors"

// ErrExpiredToken is returned when a download's signed URL has aged out
// (HTTP 400 with "ExpiredToken" in the body, §6.1). Callers may treat this
// as "skip and refresh the file list" rather than a fatal error.
var ErrExpiredToken = errors.New("posttrade: download URL expired")
