package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const partialSuffix = ".part"

// PartialSize 返回未完成下载的大小, 0 when there is nothing to resume.
func PartialSize(path string) int64 {
	info, err := os.Stat(path + partialSuffix)
	if err != nil {
		return 0
	}
	return info.Size()
}

// CompletePartial 将已下载完成的 .part 文件改名为 path.
func CompletePartial(path string) error {
	if err := os.Rename(path+partialSuffix, path); err != nil {
		return fmt.Errorf("保存文件失败: %w", err)
	}
	return nil
}

// SaveStream 将数据流保存到指定路径. Bytes go to path.part, appended at
// offset, and the file is renamed to path once r is exhausted; an
// interrupted download can be resumed from PartialSize(path).
func SaveStream(r io.Reader, path string, offset int64) (int64, error) {
	partial := path + partialSuffix
	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	out, err := os.OpenFile(partial, flags, 0644)
	if err != nil {
		return 0, fmt.Errorf("创建文件失败: %w", err)
	}
	if offset > 0 {
		info, err := out.Stat()
		if err != nil {
			out.Close()
			return 0, fmt.Errorf("读取文件信息失败: %w", err)
		}
		if info.Size() != offset {
			out.Close()
			return 0, fmt.Errorf("partial file has %d bytes, expected %d", info.Size(), offset)
		}
	}

	n, copyErr := io.Copy(out, r)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return n, fmt.Errorf("保存文件失败: %w", err)
	}

	return n, CompletePartial(path)
}
