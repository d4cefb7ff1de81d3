package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/rs/zerolog"
)

// FilePrefix é o prefixo do arquivo diário de log.
const FilePrefix = "api_poller_"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Configure inicializa o logger baseando-se na configuração do documento.
// Quando dir não é vazio, as linhas também vão para <dir>/api_poller_YYYYMMDD.log.
// O io.Closer devolvido fecha o arquivo de log (no-op quando não há arquivo).
func Configure(cfg config.LoggingConf, dir string) (zerolog.Logger, io.Closer, error) {
	// Define o nível de log (default: info)
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if !cfg.IsEnabled() {
		return zerolog.New(io.Discard), nopCloser{}, nil
	}

	// Define o output (JSON para produção, Console "bonito" para local se solicitado)
	var console io.Writer = os.Stdout
	if cfg.Format == "console" {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	output := console
	var closer io.Closer = nopCloser{}
	if dir != "" {
		file, err := newDailyWriter(dir, time.Now)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		output = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	// Cria o logger com contexto padrão
	logger := zerolog.New(output).
		With().
		Timestamp().
		Logger()

	return logger, closer, nil
}

// FileName devolve o nome do arquivo diário de log para a data informada.
func FileName(day time.Time) string {
	return FilePrefix + day.Format("20060102") + ".log"
}

func openDaily(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("erro ao criar diretório de log '%s': %w", dir, err)
	}
	path := filepath.Join(dir, FileName(now))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir arquivo de log '%s': %w", path, err)
	}
	return file, nil
}

// dailyWriter troca de arquivo quando o dia muda. Containers Lambda reaproveitados
// continuam gravando no arquivo do dia corrente.
type dailyWriter struct {
	mu   sync.Mutex
	dir  string
	now  func() time.Time
	name string
	file *os.File
}

func newDailyWriter(dir string, now func() time.Time) (*dailyWriter, error) {
	w := &dailyWriter{dir: dir, now: now}
	if err := w.rotate(now()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *dailyWriter) rotate(day time.Time) error {
	file, err := openDaily(w.dir, day)
	if err != nil {
		return err
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = file
	w.name = FileName(day)
	return nil
}

func (w *dailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if now := w.now(); FileName(now) != w.name || w.file == nil {
		if err := w.rotate(now); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

func (w *dailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
