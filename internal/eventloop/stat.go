package eventloop

import "os"

type fileInfo struct {
	size  int64
	mtime int64
}

func statFile(path string) (fileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileInfo{}, err
	}
	return fileInfo{size: info.Size(), mtime: info.ModTime().Unix()}, nil
}
