package file

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

type Format string

const (
	FormatJsonl Format = "jsonl"
	FormatJson  Format = "json"
	FormatCsv   Format = "csv"
)

var ErrInvalidFormat = errors.New("invalid output format")

func ParseFormat(value string) (Format, error) {
	switch f := Format(value); f {
	case FormatJsonl, FormatJson, FormatCsv:
		return f, nil
	default:
		return "", errors.Wrapf(ErrInvalidFormat, "output format [%s] is invalid, must be one of jsonl, csv, json", value)
	}
}

// Sink appends records to one file per stream in dataDir. Both json formats write one object per line.
type Sink struct {
	dataDir string
	format  Format
	mutex   sync.Mutex
	// csv headers already verified or written, per stream
	headers map[entities.Stream][]string
}

func NewSink(dataDir string, format Format) (*Sink, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating data dir [%s]", dataDir)
	}
	return &Sink{
		dataDir: dataDir,
		format:  format,
		headers: make(map[entities.Stream][]string),
	}, nil
}

func (s *Sink) Name() string {
	return "file"
}

func (s *Sink) Path(stream entities.Stream) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s.%s", stream, s.format))
}

func (s *Sink) Publish(_ context.Context, records []entities.Record) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// keep the record order within each stream
	var streams []entities.Stream
	byStream := make(map[entities.Stream][]entities.Record)
	for _, r := range records {
		if _, ok := byStream[r.Stream()]; !ok {
			streams = append(streams, r.Stream())
		}
		byStream[r.Stream()] = append(byStream[r.Stream()], r)
	}

	for _, stream := range streams {
		if err := s.appendRecords(stream, byStream[stream]); err != nil {
			return errors.Wrapf(err, "writing %s records", stream)
		}
	}
	return nil
}

func (s *Sink) appendRecords(stream entities.Stream, records []entities.Record) error {
	path := s.Path(stream)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening [%s]", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	switch s.format {
	case FormatCsv:
		err = s.writeCsv(f, w, stream, records)
	default:
		err = writeJsonLines(w, records)
	}
	if err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "flushing [%s]", path)
	}
	return f.Sync()
}

func writeJsonLines(w io.Writer, records []entities.Record) error {
	for _, r := range records {
		line, err := entities.MarshalFields(r.Fields())
		if err != nil {
			return err
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return errors.Wrap(err, "writing json line")
		}
	}
	return nil
}

func fieldNames(r entities.Record) []string {
	fields := r.Fields()
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names
}

func (s *Sink) writeCsv(f *os.File, w io.Writer, stream entities.Stream, records []entities.Record) error {
	if len(records) == 0 {
		return nil
	}
	header := fieldNames(records[0])

	writer := csv.NewWriter(w)
	known, ok := s.headers[stream]
	if !ok {
		existing, err := readCsvHeader(f)
		if err != nil {
			return err
		}
		switch {
		case existing == nil:
			if err := writer.Write(header); err != nil {
				return errors.Wrap(err, "writing csv header")
			}
		case !slices.Equal(existing, header):
			return errors.Errorf("existing csv header %v does not match record fields %v", existing, header)
		}
		s.headers[stream] = header
		known = header
	}

	for _, r := range records {
		fields := r.Fields()
		row := make([]string, 0, len(fields))
		for i, field := range fields {
			if i >= len(known) || field.Name != known[i] {
				return errors.Errorf("record field [%s] does not match csv header", field.Name)
			}
			row = append(row, entities.FormatValue(field.Value))
		}
		if len(row) != len(known) {
			return errors.Errorf("record has %d fields, csv header has %d", len(row), len(known))
		}
		if err := writer.Write(row); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	writer.Flush()
	return writer.Error()
}

// readCsvHeader returns nil for an empty file.
func readCsvHeader(f *os.File) ([]string, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "reading file info")
	}
	if info.Size() == 0 {
		return nil, nil
	}

	header, err := csv.NewReader(io.NewSectionReader(f, 0, info.Size())).Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading existing csv header")
	}
	return header, nil
}
