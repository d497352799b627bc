package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"
)

type storageStub struct {
	uploaded bytes.Buffer
	name     string
}

func (s *storageStub) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	s.uploaded.Reset()
	s.name = name
	_, err := s.uploaded.ReadFrom(reader)
	if err != nil {
		return "", err
	}
	return "https://cdn.example.com/" + name, nil
}

func TestUploadServiceRejectsSize(t *testing.T) {
	svc := NewUploadService(&storageStub{}, 1, testLogger())

	file := buildFileHeader(t, "file.pdf", bytes.Repeat([]byte("a"), 2*1024*1024))

	_, err := svc.Upload(context.Background(), file, "")
	require.ErrorIs(t, err, ErrUploadTooLarge)
}

func TestUploadServiceTypeValidation(t *testing.T) {
	svc := NewUploadService(&storageStub{}, 5, testLogger())

	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	file := buildFileHeader(t, "image.png", pngHeader)
	_, err := svc.Upload(context.Background(), file, "")
	require.ErrorIs(t, err, ErrUploadTypeNotAllowed)
}

func TestUploadServiceSuccess(t *testing.T) {
	storage := &storageStub{}
	svc := NewUploadService(storage, 5, testLogger())

	file := buildFileHeader(t, "My Translation.pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"))

	resp, err := svc.Upload(context.Background(), file, "sub-12")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", resp.MimeType)
	require.Equal(t, "sub-12-my-translation.pdf", storage.name)
	require.Contains(t, resp.URL, "sub-12-my-translation.pdf")
	require.Len(t, resp.Checksum, 64)
}

func TestUploadServiceWithoutStorage(t *testing.T) {
	svc := NewUploadService(nil, 5, testLogger())
	_, err := svc.Upload(context.Background(), buildFileHeader(t, "a.txt", []byte("hello")), "")
	require.ErrorIs(t, err, ErrUploadUnavailable)
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
