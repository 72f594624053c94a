package jsondb

import (
	"os"
	"path/filepath"
)

// FileSystem is the storage the store reads from and writes to.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)

	// WriteFile replaces name with data as a whole.
	WriteFile(name string, data []byte) error
}

// OSFileSystem stores files on the local disk. Writes go to a uniquely named
// temp file in the target's directory that is renamed over the target, so
// readers never see a partial document.
type OSFileSystem struct {
	// Perm is the mode for new files. Default: 0o644
	Perm os.FileMode
}

func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (f OSFileSystem) WriteFile(name string, data []byte) error {
	perm := f.Perm
	if perm == 0 {
		perm = 0o644
	}

	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	// A unique temp name per write keeps concurrent writers, including other
	// processes, from renaming each other's partial file into place.
	tf, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := tf.Name()
	if err := writeTemp(tf, data, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, name); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func writeTemp(f *os.File, data []byte, perm os.FileMode) error {
	if err := f.Chmod(perm); err != nil {
		_ = f.Close()
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
