package protoexport

import (
	"io"
	"os"
	"path"

	"github.com/jhump/protoreflect/v2/protoprint"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Print writes fd as .proto source to w.
func Print(fd protoreflect.FileDescriptor, w io.Writer) error {
	pp := protoprint.Printer{}
	return pp.PrintProtoFile(fd, w)
}

// Render writes fd under outDir at its own path and returns the written file name.
func Render(fd protoreflect.FileDescriptor, outDir string) (string, error) {
	fp := path.Join(outDir, fd.Path())
	if err := os.MkdirAll(path.Dir(fp), 0755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := Print(fd, f); err != nil {
		return "", err
	}
	return fp, f.Close()
}
