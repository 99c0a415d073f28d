package zone

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// File is an open zone file, transparently gunzipped, with a Parser over it.
type File struct {
	*Parser
	file *os.File
	gz   *gzip.Reader
}

// Open opens a zone file for parsing. It supports both plain text and
// gzip-compressed zone files (detected by .gz extension). The file name is
// used as the source in errors.
func Open(filename, origin string, opts ...Option) (*File, error) {
	var fileReader io.Reader
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	fileReader = file
	f := &File{file: file}
	if strings.HasSuffix(filename, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		fileReader = gz
		f.gz = gz
	}
	f.Parser = NewParser(fileReader, origin, filename, opts...)
	return f, nil
}

// Close releases the file.
func (f *File) Close() error {
	if f.gz != nil {
		_ = f.gz.Close()
	}
	return f.file.Close()
}

// ReadAll parses every record of r. It is meant for small inputs; large zones
// should be streamed with a Parser.
func ReadAll(r io.Reader, origin, source string, opts ...Option) ([]Record, error) {
	p := NewParser(r, origin, source, opts...)
	var out []Record
	for rec, ok := p.Next(); ok; rec, ok = p.Next() {
		out = append(out, rec)
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
