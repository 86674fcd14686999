package logger

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"forwardproxy/internal/domain"
)

// Repository is the zerolog-backed implementation of domain.Logger. It
// writes newline-delimited JSON to a rotating file and, when stderr is a
// terminal, mirrors the same records to stderr in zerolog's console format.
type Repository struct {
	log    zerolog.Logger
	writer *rotatingWriter
}

var _ domain.Logger = (*Repository)(nil)

// New creates a Repository logging to dir/filename, rotated per config (nil
// selects DefaultRotationConfig).
func New(dir, filename string, config *RotationConfig) (*Repository, error) {
	writer, err := newRotatingWriter(dir, filename, config)
	if err != nil {
		return nil, err
	}

	var out io.Writer = writer
	if isatty.IsTerminal(os.Stderr.Fd()) {
		out = zerolog.MultiLevelWriter(writer, zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log := zerolog.New(out).With().Timestamp().Logger()

	return &Repository{log: log, writer: writer}, nil
}

func (r *Repository) Debug(msg string, fields map[string]interface{}) {
	r.log.Debug().Fields(fields).Msg(msg)
}

func (r *Repository) Info(msg string, fields map[string]interface{}) {
	r.log.Info().Fields(fields).Msg(msg)
}

func (r *Repository) Warn(msg string, fields map[string]interface{}) {
	r.log.Warn().Fields(fields).Msg(msg)
}

func (r *Repository) Error(msg string, err error, fields map[string]interface{}) {
	r.log.Error().Err(err).Fields(fields).Msg(msg)
}

func (r *Repository) Close() error {
	return r.writer.Close()
}
