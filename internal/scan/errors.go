package scan

import (
	"errors"
	"fmt"
)

// ErrInvalidRoot is returned when the scan root does not exist or is not a
// directory. No file is processed in that case.
var ErrInvalidRoot = errors.New("invalid root")

// ErrFileTooLarge marks a file skipped because it exceeds Options.MaxFileSize.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// FileReadError reports a file that could not be read or decoded. The scan
// records it as a skip and carries on.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error {
	return e.Err
}
