package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	imErrors "sudooom.im.client/internal/errors"
)

// form multipart 表单
type form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	f := &form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

func (f *form) file(name, path string) error {
	if f.err != nil {
		return f.err
	}
	src, err := os.Open(path)
	if err != nil {
		return imErrors.ErrInvalidParams.Wrap(err)
	}
	defer src.Close()

	dst, err := f.w.CreateFormFile(name, filepath.Base(path))
	if err != nil {
		f.err = err
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		f.err = err
		return imErrors.ErrInvalidParams.Wrap(err)
	}
	return nil
}

func (c *Client) doForm(ctx context.Context, url string, f *form, out any) error {
	if f.err != nil {
		return imErrors.ErrInvalidParams.Wrap(f.err)
	}
	if err := f.w.Close(); err != nil {
		return imErrors.ErrInvalidParams.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(f.buf.Bytes()))
	if err != nil {
		return imErrors.ErrInvalidParams.Wrap(err)
	}
	req.Header.Set("Content-Type", f.w.FormDataContentType())
	return c.do(req, out)
}
