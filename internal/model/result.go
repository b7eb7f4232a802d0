package model

import "fmt"

type Operation string

const (
	OpCopy   Operation = "COPY"
	OpMkdir  Operation = "MKDIR"
	OpRemove Operation = "REMOVE"
	OpRename Operation = "RENAME"
	OpChmod  Operation = "CHMOD"
	OpList   Operation = "LIST"
	OpSkip   Operation = "SKIP"
)

// OpError records a failed mirrored operation on a single path.
type OpError struct {
	Op   Operation
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

type SyncResult struct {
	Event   FileEvent
	Op      Operation
	SrcPath string
	DstPath string
	Err     error
}
