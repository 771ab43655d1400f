package relation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// JSONLSource reads one flat JSON object per line. The key order of the first
// object defines the columns; later objects are projected onto them.
type JSONLSource struct {
	path string
}

// NewJSONLSource returns a source over a JSON Lines file.
func NewJSONLSource(path string) *JSONLSource {
	return &JSONLSource{path: path}
}

func (s *JSONLSource) Name() string { return s.path }

func (s *JSONLSource) Columns(ctx context.Context) ([]string, error) {
	var header []string
	err := s.lines(func(line []byte) error {
		keys, err := objectKeys(line)
		if err != nil {
			return err
		}
		header = keys
		return ErrStop
	})
	if err != nil && !errors.Is(err, ErrStop) {
		return nil, err
	}
	if header == nil {
		return nil, fmt.Errorf("%s: empty input: %w", s.path, io.EOF)
	}
	return header, nil
}

func (s *JSONLSource) Scan(ctx context.Context, size int, fn func(Batch) error) error {
	var header []string
	b := newBatcher(size, fn)
	err := s.lines(func(line []byte) error {
		if header == nil {
			keys, err := objectKeys(line)
			if err != nil {
				return err
			}
			header = keys
		}
		row, err := projectObject(line, header)
		if err != nil {
			return err
		}
		return b.add(ctx, row)
	})
	if err != nil {
		return finishScan(err)
	}
	return finishScan(b.flush(ctx))
}

func (s *JSONLSource) lines(fn func([]byte) error) error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<16), 16<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			if errors.Is(err, ErrStop) {
				return err
			}
			return fmt.Errorf("%s line %d: %w", s.path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	return nil
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(line []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("expected a JSON object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("expected an object key")
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func projectObject(line []byte, header []string) ([]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil {
		return nil, err
	}
	row := make([]string, len(header))
	for i, key := range header {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		row[i] = scalarText(raw)
	}
	return row, nil
}

// scalarText renders strings unquoted, null as empty, and anything else as
// its JSON text.
func scalarText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}
