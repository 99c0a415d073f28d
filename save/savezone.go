// Package save writes canonical zone files and diff reports.
package save

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/lanrat/zonediff/snapshot"
	"github.com/lanrat/zonediff/zone"
)

// File represents the zone file to create on disk
type File struct {
	filename    string
	filenameTmp string
	zone        string
	gzip        bool
	bufWriter   *bufio.Writer
	gzWriter    *gzip.Writer
	fileWriter  *os.File
	records     int64
	closed      bool
}

// New returns a handle to a new zone file. The file is gzip-compressed when
// filename ends in .gz.
func New(zone, filename string) *File {
	f := new(File)
	f.filename = filename
	f.filenameTmp = fmt.Sprintf("%s.tmp", f.filename)
	f.zone = zone
	f.gzip = strings.HasSuffix(filename, ".gz")
	return f
}

// Records returns the number of records written to the zone file
func (f *File) Records() int64 {
	return f.records
}

// WriteComment adds a comment to the zone file
func (f *File) WriteComment(comment string) error {
	err := f.fileReady()
	if err != nil {
		return err
	}
	_, err = f.bufWriter.WriteString(fmt.Sprintf("; %s", comment))
	return err
}

// WriteCommentKey adds a comment to the zone file
func (f *File) WriteCommentKey(key, value string) error {
	return f.WriteComment(fmt.Sprintf("%s: %s\n", key, value))
}

// ErrFileClosed returned when attempting to write to a closed file
var ErrFileClosed = errors.New("file is already closed")

// fileReady internal function to ensure that the file is ready before data can be written
// safe to call multiple times
func (f *File) fileReady() error {
	var err error
	if f.closed {
		return ErrFileClosed
	}
	if f.bufWriter == nil {
		f.fileWriter, err = os.Create(f.filenameTmp)
		if err != nil {
			return err
		}
		if f.gzip {
			f.gzWriter = gzip.NewWriter(f.fileWriter)
			f.gzWriter.ModTime = time.Now()
			f.gzWriter.Name = fmt.Sprintf("%s.zone", strings.TrimSuffix(f.zone, "."))
			f.bufWriter = bufio.NewWriter(f.gzWriter)
		} else {
			f.bufWriter = bufio.NewWriter(f.fileWriter)
		}
		// Save metadata to zone file as comment
		err = f.WriteCommentKey("timestamp", time.Now().Format(time.RFC3339))
		if err != nil {
			return err
		}
		err = f.WriteCommentKey("zone", f.zone)
		if err != nil {
			return err
		}
	}
	return nil
}

// AddRecord adds a record to the zone file in canonical form
func (f *File) AddRecord(r zone.Record) error {
	// create file here on first record
	err := f.fileReady()
	if err != nil {
		return err
	}

	_, err = f.bufWriter.WriteString(r.String())
	if err != nil {
		return err
	}
	err = f.bufWriter.WriteByte('\n')
	if err != nil {
		return err
	}
	f.records++
	return nil
}

// AddRR converts rr to a canonical record and adds it to the zone file
func (f *File) AddRR(rr dns.RR) error {
	r, err := zone.FromRR(rr)
	if err != nil {
		return err
	}
	return f.AddRecord(r)
}

// Abort stops processing the new zone file and removes it from disk
func (f *File) Abort() error {
	f.records = 0 // forces finish to remove the file
	return f.Finish()
}

// Finish adds closing comments and flushes and closes all buffers/files.
// A file without records is removed instead of being renamed into place, as
// is the temporary file when any step fails. The File is closed afterwards
// either way.
func (f *File) Finish() error {
	if f.closed {
		return nil
	}
	var err error
	if f.records > 0 {
		// save record count comment at end of zone file
		err = f.WriteCommentKey("records", fmt.Sprintf("%d", f.records))
	}
	f.closed = true
	if f.bufWriter == nil {
		return err
	}
	if err == nil {
		err = f.bufWriter.Flush()
	}
	if f.gzWriter != nil {
		err = errors.Join(err, f.gzWriter.Close())
	}
	err = errors.Join(err, f.fileWriter.Close())
	if err == nil && f.records > 0 {
		err = os.Rename(f.filenameTmp, f.filename)
		if err == nil {
			return nil
		}
	}
	if rmErr := os.Remove(f.filenameTmp); rmErr != nil && !os.IsNotExist(rmErr) {
		err = errors.Join(err, rmErr)
	}
	return err
}

// WriteSnapshot exports every record of s in canonical order to filename.
func WriteSnapshot(filename string, s *snapshot.Snapshot) error {
	f := New(s.Apex(), filename)
	if err := f.WriteCommentKey("source", s.Source()); err != nil {
		_ = f.Abort()
		return err
	}
	for r := range s.Records() {
		if err := f.AddRecord(r); err != nil {
			_ = f.Abort()
			return err
		}
	}
	return f.Finish()
}
