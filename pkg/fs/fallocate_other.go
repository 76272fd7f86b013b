//go:build !linux

package fs

// fallocate extends the file with ftruncate on platforms without
// fallocate(2). Blocks are not reserved up front, but the range reads back
// as zeros, which is all pool creation relies on.
func fallocate(f File, offset, length int64) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}

	if info.Size() >= offset+length {
		return nil
	}

	return f.Truncate(offset + length)
}
