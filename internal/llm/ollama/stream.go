package ollama

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/joseph-ayodele/ocr-enricher/internal/llm"
)

// maxLine bounds one NDJSON record.
const maxLine = 1 << 20

type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	model   string
	logger  *slog.Logger

	done   bool
	chunks int
	once   sync.Once
}

func newStream(body io.ReadCloser, model string, logger *slog.Logger) *stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	return &stream{body: body, scanner: sc, model: model, logger: logger}
}

func (s *stream) Recv() (llm.Chunk, error) {
	if s.done {
		return llm.Chunk{}, io.EOF
	}
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec generateResponse
		if err := json.Unmarshal(line, &rec); err != nil {
			s.done = true
			return llm.Chunk{}, fmt.Errorf("decode stream record: %w", err)
		}
		if rec.Error != "" {
			s.done = true
			return llm.Chunk{}, &llm.StatusError{StatusCode: 200, Message: rec.Error}
		}
		s.chunks++
		if rec.Done {
			s.done = true
			s.logger.Debug("llm.stream.done", "model", s.model, "chunks", s.chunks)
		}
		return llm.Chunk{Text: rec.Response, Final: rec.Done}, nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return llm.Chunk{}, fmt.Errorf("read stream: %w", err)
	}
	return llm.Chunk{}, io.EOF
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}
