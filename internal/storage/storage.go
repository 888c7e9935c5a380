package storage

import "io"

// Storage is byte-level access to uploaded videos and derived files.
type Storage interface {
	SaveFile(file io.Reader, originalName string) (string, error)
	OpenFile(path string) (io.ReadSeekCloser, error)
	DeleteFile(path string) error
	GetFilePath(filename string) string
}
