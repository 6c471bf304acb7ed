// Package fastxio is the external I/O collaborator for the corrector: it
// reads and writes the FASTA/FASTQ records that carry reads and their
// optional per-base quality, independent of the core's in-memory model.
package fastxio

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/fionacorrect/encoding/fasta"
	"github.com/grailbio/fionacorrect/encoding/fastq"
	"github.com/klauspost/compress/gzip"
)

// Record is one input read: an opaque id and its base sequence, with
// optional quality. Quality is empty when the source is FASTA.
type Record struct {
	ID, Seq, Qual string
}

// gzipMagic is the two-byte gzip header, used to autodetect compression
// rather than relying solely on the file extension.
var gzipMagic = []byte{0x1f, 0x8b}

// openReader opens path and wraps it in a gzip reader if its magic bytes say
// so, mirroring fastq.fileHandle.reader's approach but without hardcoding
// gzip unconditionally.
func openReader(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "fastxio: open", path)
	}
	br := bufio.NewReader(f.Reader(ctx))
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, errors.E(err, "fastxio: peek", path)
	}
	if bytes.Equal(magic, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.E(err, "fastxio: gzip", path)
		}
		return struct {
			io.Reader
			io.Closer
		}{gz, closerFunc(func() error {
			once := errors.Once{}
			once.Set(gz.Close())
			once.Set(f.Close(ctx))
			return once.Err()
		})}, nil
	}
	return struct {
		io.Reader
		io.Closer
	}{br, closerFunc(func() error { return f.Close(ctx) })}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ReadFASTQ reads every record from path (gzip-autodetected), using the
// adapted fastq.Scanner.
func ReadFASTQ(ctx context.Context, path string) ([]Record, error) {
	rc, err := openReader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	sc := fastq.NewScanner(rc, fastq.ID|fastq.Seq|fastq.Qual)
	var out []Record
	var r fastq.Read
	for sc.Scan(&r) {
		id := r.ID
		if len(id) > 0 && id[0] == '@' {
			id = id[1:]
		}
		out = append(out, Record{ID: id, Seq: r.Seq, Qual: r.Qual})
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return nil, errors.E(err, "fastxio: scan", path)
	}
	return out, nil
}

// ReadFASTA reads every record from path (gzip-autodetected), using the
// adapted fasta.Fasta reader. There is no quality field. Per fasta.New's
// eager-unindexed parser, a sequence's id is the text after '>' up to the
// first space, and a repeated id gives repeated records, all holding the
// sequence of its last occurrence.
func ReadFASTA(ctx context.Context, path string) ([]Record, error) {
	rc, err := openReader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	f, err := fasta.New(rc)
	if err != nil {
		return nil, errors.E(err, "fastxio: parse fasta", path)
	}
	names := f.SeqNames()
	out := make([]Record, 0, len(names))
	for _, name := range names {
		length, err := f.Len(name)
		if err != nil {
			return nil, errors.E(err, "fastxio: len", name, path)
		}
		if length == 0 {
			out = append(out, Record{ID: name})
			continue
		}
		seq, err := f.Get(name, 0, length)
		if err != nil {
			return nil, errors.E(err, "fastxio: get", name, path)
		}
		out = append(out, Record{ID: name, Seq: seq})
	}
	return out, nil
}

// Writer writes FASTA or FASTQ records depending on whether Qual is set per
// record, mirroring fastq.Writer's line-oriented style.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter constructs a Writer over w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Write emits one record: FASTQ framing (@/+/qual) if r.Qual is non-empty,
// FASTA framing (>) otherwise.
func (w *Writer) Write(r Record) error {
	if w.err != nil {
		return w.err
	}
	if r.Qual != "" {
		w.writeln("@" + r.ID)
		w.writeln(r.Seq)
		w.writeln("+")
		w.writeln(r.Qual)
	} else {
		w.writeln(">" + r.ID)
		w.writeln(r.Seq)
	}
	return w.err
}

func (w *Writer) writeln(line string) {
	if w.err != nil {
		return
	}
	if _, w.err = io.WriteString(w.w, line); w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, "\n")
}
