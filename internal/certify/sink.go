package certify

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Sink receives compiled certificates. Implementations are append-only:
// a record handed to Append is never rewritten.
type Sink interface {
	Append(cert Certificate) error
}

// JSONLSink appends certificates to a file, one JSON object per line. The
// format round-trips: ReadJSONLLog reproduces the exact field values.
type JSONLSink struct {
	f   *os.File
	enc *json.Encoder
}

// NewJSONLSink opens (or creates) the log file at path for appending.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open certificate log: %w", err)
	}
	return &JSONLSink{f: f, enc: json.NewEncoder(f)}, nil
}

// Append writes one certificate record as a single line.
func (s *JSONLSink) Append(cert Certificate) error {
	if err := s.enc.Encode(cert); err != nil {
		return fmt.Errorf("append certificate %s: %w", cert.ID, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *JSONLSink) Close() error {
	return s.f.Close()
}

// ReadJSONLLog parses a certificate log written by JSONLSink, preserving
// record order.
func ReadJSONLLog(path string) ([]Certificate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open certificate log: %w", err)
	}
	defer f.Close()

	var certs []Certificate
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var c Certificate
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			return nil, fmt.Errorf("certificate log line %d: %w", line, err)
		}
		certs = append(certs, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read certificate log: %w", err)
	}
	return certs, nil
}
