// file.go — файловое хранилище пары токенов.
// Файл содержит JSON с фиксированными ключами; при заданном ключе шифрования
// содержимое запечатывается AES-256-GCM (nonce || ciphertext, base64url).
package credstore

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval — пауза перед перечитыванием файла после серии событий.
const debounceInterval = 100 * time.Millisecond

// FileStore — хранилище пары токенов в файле пользователя.
// Read всегда перечитывает файл: изменения других процессов видны сразу.
type FileStore struct {
	hub

	path   string
	gcm    cipher.AEAD // nil — файл хранится открытым JSON
	logger *slog.Logger

	// mu сериализует запись внутри процесса и защищает last.
	mu   sync.Mutex
	last Pair
	has  bool
}

// NewFileStore создаёт файловое хранилище.
// key — ключ шифрования: base64 от 32 байт или произвольная строка (хешируется SHA-256).
// Пустой key — без шифрования (файл создаётся с правами 0600).
func NewFileStore(path, key string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("путь к файлу токенов не задан")
	}

	s := &FileStore{
		path:   filepath.Clean(path),
		logger: logger.With(slog.String("component", "credstore")),
	}

	if key != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			keyBytes = sha256Key(key)
		}

		block, err := aes.NewCipher(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
		}
		s.gcm, err = cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания GCM: %w", err)
		}
	}

	s.last, s.has = s.Read()
	return s, nil
}

// Path возвращает путь к файлу.
func (s *FileStore) Path() string {
	return s.path
}

// Read перечитывает файл и возвращает пару.
// Отсутствующий или повреждённый файл означает отсутствие пары.
func (s *FileStore) Read() (Pair, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Ошибка чтения файла токенов", slog.String("error", err.Error()))
		}
		return Pair{}, false
	}

	values, err := s.decode(data)
	if err != nil {
		s.logger.Warn("Файл токенов повреждён", slog.String("error", err.Error()))
		return Pair{}, false
	}
	return pairOf(values)
}

// Write атомарно заменяет файл (временный файл + rename).
func (s *FileStore) Write(pair Pair) error {
	if pair.Access == "" {
		return ErrInvalidPair
	}

	data, err := s.encode(valuesOf(pair))
	if err != nil {
		return err
	}

	s.mu.Lock()
	err = s.replace(data)
	if err == nil {
		s.last, s.has = pair, true
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.publish(pair, true)
	return nil
}

// Clear удаляет файл.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.mu.Unlock()
		return fmt.Errorf("удаление файла токенов: %w", err)
	}
	s.last, s.has = Pair{}, false
	s.mu.Unlock()

	s.publish(Pair{}, false)
	return nil
}

// Watch следит за файлом и уведомляет подписчиков об изменениях,
// сделанных другими процессами. Блокируется до отмены ctx.
// Наблюдается каталог: запись через rename заменяет inode файла.
func (s *FileStore) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("создание каталога токенов: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("создание fsnotify watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("наблюдение за %s: %w", dir, err)
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceInterval, s.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("Ошибка fsnotify", slog.String("error", err.Error()))
		}
	}
}

// reload перечитывает файл и публикует состояние, если оно изменилось.
func (s *FileStore) reload() {
	pair, ok := s.Read()

	s.mu.Lock()
	changed := ok != s.has || pair != s.last
	s.last, s.has = pair, ok
	s.mu.Unlock()

	if !changed {
		return
	}

	s.logger.Info("Токены изменены другим процессом", slog.Bool("authenticated", ok))
	s.publish(pair, ok)
}

// replace записывает data во временный файл и переименовывает его в s.path.
func (s *FileStore) replace(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("создание каталога токенов: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("запись временного файла: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("права временного файла: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("закрытие временного файла: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("замена файла токенов: %w", err)
	}
	return nil
}

// encode сериализует значения и при необходимости шифрует их.
func (s *FileStore) encode(values map[string]string) ([]byte, error) {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации токенов: %w", err)
	}
	if s.gcm == nil {
		return plaintext, nil
	}

	// Уникальный nonce для каждого шифрования
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	ciphertext := s.gcm.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.URLEncoding.EncodeToString(ciphertext)), nil
}

// decode расшифровывает (если нужно) и разбирает содержимое файла.
func (s *FileStore) decode(data []byte) (map[string]string, error) {
	plaintext := bytes.TrimSpace(data)

	if s.gcm != nil {
		ciphertext, err := base64.URLEncoding.DecodeString(string(plaintext))
		if err != nil {
			return nil, fmt.Errorf("ошибка декодирования base64: %w", err)
		}

		nonceSize := s.gcm.NonceSize()
		if len(ciphertext) < nonceSize {
			return nil, errors.New("зашифрованные данные слишком короткие")
		}

		nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
		plaintext, err = s.gcm.Open(nil, nonce, sealed, nil)
		if err != nil {
			return nil, fmt.Errorf("ошибка дешифрования токенов: %w", err)
		}
	}

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("ошибка десериализации токенов: %w", err)
	}
	return values, nil
}

// sha256Key хеширует строковый ключ в 32 bytes через SHA-256.
func sha256Key(key string) []byte {
	h := sha256.Sum256([]byte(key))
	return h[:]
}
