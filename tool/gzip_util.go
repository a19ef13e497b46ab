package tool

import (
	"bytes"
	"compress/gzip"
	"io"
)

// GzipBytes gzip 压缩
func GzipBytes(data []byte) ([]byte, error) {
	var b bytes.Buffer
	gz := gzip.NewWriter(&b)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// GunzipBytes gzip 解压，limit > 0 时限制解压后的最大字节数
func GunzipBytes(data []byte, limit int64) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var src io.Reader = r
	if limit > 0 {
		src = io.LimitReader(r, limit)
	}
	return io.ReadAll(src)
}
