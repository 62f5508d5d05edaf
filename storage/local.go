package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// OpenLocal opens a regular file for upload.
func OpenLocal(path string) (*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("读取文件信息失败: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return &Object{ReadCloser: f, Name: filepath.Base(path), Size: info.Size()}, nil
}
