package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/rs/zerolog"
)

const timestampLayout = "20060102_150405"

// Store grava um artefato por chamada no diretório de saída.
type Store struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger
}

// Option customiza o Store.
type Option func(*Store)

// WithClock injeta o relógio usado no nome dos arquivos e na limpeza.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore garante a existência do diretório.
func NewStore(dir string, logger zerolog.Logger, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("erro ao criar diretório de saída '%s': %w", dir, err)
	}
	s := &Store{
		dir:    dir,
		now:    time.Now,
		logger: logger.With().Str("component", "storage").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir é o diretório de saída.
func (s *Store) Dir() string { return s.dir }

// Save persiste o dado processado de uma chamada bem-sucedida.
func (s *Store) Save(endpoint string, data interface{}) (string, error) {
	content, err := Render(data)
	if err != nil {
		return "", err
	}
	return s.write("", endpoint, content)
}

// SaveError persiste um artefato de erro (status >= 400).
func (s *Store) SaveError(endpoint string, status int, body string) (string, error) {
	return s.write("error_", endpoint, RenderError(status, body))
}

// FileName monta "<prefixo><segmento>_<YYYYMMDD_HHMMSS>.log".
func (s *Store) FileName(prefix, endpoint string) string {
	return fmt.Sprintf("%s%s_%s.log", prefix, config.LastURLSegment(endpoint), s.now().Format(timestampLayout))
}

func (s *Store) write(prefix, endpoint string, content []byte) (string, error) {
	base := s.FileName(prefix, endpoint)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	// Duas chamadas no mesmo segundo não podem sobrescrever uma à outra
	for attempt := 0; attempt < 1000; attempt++ {
		name := base
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, attempt, ext)
		}
		full := filepath.Join(s.dir, name)

		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("erro ao criar artefato '%s': %w", full, err)
		}

		_, werr := f.Write(content)
		cerr := f.Close()
		if werr != nil {
			return "", fmt.Errorf("erro ao gravar artefato '%s': %w", full, werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("erro ao fechar artefato '%s': %w", full, cerr)
		}
		return full, nil
	}
	return "", fmt.Errorf("não foi possível gerar nome único para '%s'", base)
}

// Cleanup remove arquivos do diretório mais antigos que maxAge.
// Falhas individuais são logadas e não interrompem a limpeza.
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("erro ao listar '%s': %w", s.dir, err)
	}

	removed := 0
	limit := s.now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(limit) {
			continue
		}

		full := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(full); err != nil {
			s.logger.Error().Err(err).Str("file", full).Msg("Falha ao remover arquivo antigo")
			continue
		}
		removed++
		s.logger.Info().Str("file", full).Msg("Arquivo antigo removido")
	}
	return removed, nil
}
