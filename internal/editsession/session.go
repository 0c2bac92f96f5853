// Package editsession — сессия просмотра, создания и редактирования одной записи:
// буфер полей, флаг сохранения и ошибки валидации сервера.
//
// Пока идёт создание или редактирование, перезагрузки списка не трогают буфер
// и не завершают сессию. Если редактируемая запись исчезла со страницы,
// сессия помечается Detached: буфер сохраняется, Save обновляет запись по id,
// Cancel или успешный Save закрывают сессию.
package editsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/bigkaa/mdclient/internal/apierr"
	"github.com/bigkaa/mdclient/internal/listctl"
)

var (
	// ErrInvalidTransition — операция недопустима в текущем режиме.
	ErrInvalidTransition = errors.New("операция недопустима в текущем режиме")
	// ErrDeleted — удалённая запись доступна только для чтения.
	ErrDeleted = errors.New("удалённая запись недоступна для редактирования")
	// ErrSaving — идёт сохранение.
	ErrSaving = errors.New("идёт сохранение")
	// ErrUnsavedChanges — открыта форма создания или редактирования.
	ErrUnsavedChanges = errors.New("есть несохранённые изменения: сохраните или отмените их")
	// ErrCancelled — пользователь не подтвердил операцию.
	ErrCancelled = errors.New("операция отменена пользователем")
)

// Mode — режим сессии.
type Mode int

const (
	Closed Mode = iota
	Viewing
	Creating
	Editing
)

func (m Mode) String() string {
	switch m {
	case Viewing:
		return "viewing"
	case Creating:
		return "creating"
	case Editing:
		return "editing"
	default:
		return "closed"
	}
}

// Snapshot — состояние сессии для отображения.
type Snapshot[B any] struct {
	Mode     Mode
	Saving   bool
	ID       int64
	HasID    bool
	Detached bool
	Buffer   B
	// FieldErrors — ошибки по полям последней попытки сохранения.
	FieldErrors map[string][]string
	NonField    []string
	// SaveError — общее сообщение последней неудачной попытки.
	SaveError string
}

// Options — зависимости сессии.
type Options struct {
	Normalizer *apierr.Normalizer
	Notifier   Notifier
	// Confirmer — nil подтверждает всё.
	Confirmer Confirmer
	Logger    *slog.Logger
}

// Session — сессия редактирования записей типа R с буфером B.
type Session[R listctl.Record, B any] struct {
	list       List[R]
	adapter    Adapter[R, B]
	normalizer *apierr.Normalizer
	notifier   Notifier
	confirmer  Confirmer
	logger     *slog.Logger

	// mu не удерживается при обращениях к списку и адаптеру.
	mu          sync.Mutex
	mode        Mode
	saving      bool
	id          int64
	hasID       bool
	detached    bool
	buffer      B
	fieldErrors map[string][]string
	nonField    []string
	saveErr     string
}

// New создаёт сессию и подписывает её на потерю выбора в списке.
// Переход prev/next по списку блокируется на время создания и редактирования.
func New[R listctl.Record, B any](list List[R], adapter Adapter[R, B], opts Options) *Session[R, B] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session[R, B]{
		list:        list,
		adapter:     adapter,
		normalizer:  opts.Normalizer,
		notifier:    opts.Notifier,
		confirmer:   opts.Confirmer,
		logger:      logger.With(slog.String("component", "editsession")),
		fieldErrors: map[string][]string{},
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.confirmer == nil {
		s.confirmer = alwaysConfirm{}
	}

	list.OnSelectionLost(s.selectionLost)
	list.SetNavigationGuard(s.CanNavigate)
	return s
}

// OpenView открывает запись текущей страницы для просмотра.
// Во время создания и редактирования отказывает с ErrUnsavedChanges.
func (s *Session[R, B]) OpenView(id int64) error {
	if s.isSaving() {
		return ErrSaving
	}
	if !s.CanNavigate() {
		return ErrUnsavedChanges
	}
	if err := s.list.Select(id); err != nil {
		return err
	}
	rec, ok := s.list.Row(id)
	if !ok {
		return fmt.Errorf("%w: id=%d", listctl.ErrNotInPage, id)
	}
	buf := s.adapter.Seed(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = Viewing
	s.id, s.hasID = id, true
	s.detached = false
	s.buffer = buf
	s.clearErrors()
	return nil
}

// OpenCreate открывает пустую форму новой записи из любого режима.
func (s *Session[R, B]) OpenCreate() error {
	if s.isSaving() {
		return ErrSaving
	}
	s.list.ClearSelection()
	buf := s.adapter.Defaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = Creating
	s.id, s.hasID = 0, false
	s.detached = false
	s.buffer = buf
	s.clearErrors()
	return nil
}

// OpenEdit переводит просматриваемую запись в режим редактирования.
func (s *Session[R, B]) OpenEdit() error {
	s.mu.Lock()
	mode, id, saving := s.mode, s.id, s.saving
	s.mu.Unlock()

	if saving {
		return ErrSaving
	}
	if mode != Viewing {
		return fmt.Errorf("%w: %s → editing", ErrInvalidTransition, mode)
	}

	rec, ok := s.list.Row(id)
	if !ok {
		return fmt.Errorf("%w: id=%d", listctl.ErrNotInPage, id)
	}
	if s.adapter.Deleted(rec) {
		return ErrDeleted
	}
	buf := s.adapter.Seed(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != Viewing || s.id != id {
		return fmt.Errorf("%w: сессия изменилась", ErrInvalidTransition)
	}
	s.mode = Editing
	s.buffer = buf
	s.clearErrors()
	return nil
}

// EditRecord открывает запись сразу на редактирование.
func (s *Session[R, B]) EditRecord(id int64) error {
	if err := s.OpenView(id); err != nil {
		return err
	}
	return s.OpenEdit()
}

// Update изменяет буфер в режимах создания и редактирования.
func (s *Session[R, B]) Update(fn func(buf *B) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saving {
		return ErrSaving
	}
	if s.mode != Creating && s.mode != Editing {
		return fmt.Errorf("%w: буфер доступен только при создании и редактировании", ErrInvalidTransition)
	}
	return fn(&s.buffer)
}

// Cancel: создание → закрыто; редактирование → просмотр с исходными значениями;
// просмотр → закрыто.
func (s *Session[R, B]) Cancel() error {
	s.mu.Lock()
	mode, id, detached, saving := s.mode, s.id, s.detached, s.saving
	s.mu.Unlock()

	if saving {
		return ErrSaving
	}

	switch mode {
	case Closed:
		return nil
	case Creating, Viewing:
		s.close()
		return nil
	}

	rec, ok := s.list.Row(id)
	if detached || !ok {
		s.close()
		return nil
	}
	buf := s.adapter.Seed(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = Viewing
	s.buffer = buf
	s.clearErrors()
	return nil
}

// Save сохраняет буфер: создание — POST, редактирование — PATCH по id.
// При ошибке режим и буфер сохраняются, ошибки сервера доступны в Snapshot.
func (s *Session[R, B]) Save(ctx context.Context) (R, error) {
	var zero R

	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return zero, ErrSaving
	}
	if s.mode != Creating && s.mode != Editing {
		mode := s.mode
		s.mu.Unlock()
		return zero, fmt.Errorf("%w: сохранение в режиме %s", ErrInvalidTransition, mode)
	}
	s.saving = true
	s.clearErrors()
	mode, id, buf := s.mode, s.id, s.buffer
	s.mu.Unlock()

	var (
		rec R
		err error
	)
	if mode == Creating {
		rec, err = s.adapter.Create(ctx, buf)
	} else {
		rec, err = s.adapter.Update(ctx, id, buf)
	}

	if err != nil {
		n := s.normalizer.Normalize(err)

		s.mu.Lock()
		s.saving = false
		s.fieldErrors = map[string][]string{}
		maps.Copy(s.fieldErrors, n.FieldErrors)
		s.nonField = n.NonField
		s.saveErr = n.Message
		s.mu.Unlock()

		s.logger.Info("Сохранение отклонено",
			slog.String("mode", mode.String()),
			slog.Int("field_errors", len(n.FieldErrors)),
			slog.String("error", err.Error()),
		)
		return zero, fmt.Errorf("сохранение записи: %w", err)
	}

	loc := s.normalizer.Localizer()
	seeded := s.adapter.Seed(rec)

	s.mu.Lock()
	s.saving = false
	s.clearErrors()
	switch {
	case mode == Creating, s.detached:
		s.closeLocked()
	default:
		s.mode = Viewing
		s.buffer = seeded
	}
	s.mu.Unlock()

	s.reload(ctx)
	if mode == Creating {
		s.notifier.Success(loc.T("flash.created"))
	} else {
		s.notifier.Success(loc.T("flash.saved"))
	}
	return rec, nil
}

// Delete мягко удаляет запись после подтверждения.
func (s *Session[R, B]) Delete(ctx context.Context, id int64) error {
	loc := s.normalizer.Localizer()
	return s.mutateRecord(ctx, loc.T("confirm.delete"), loc.T("flash.deleted"), func() error {
		return s.adapter.Delete(ctx, id)
	})
}

// Restore восстанавливает удалённую запись после подтверждения.
func (s *Session[R, B]) Restore(ctx context.Context, id int64) error {
	loc := s.normalizer.Localizer()
	return s.mutateRecord(ctx, loc.T("confirm.restore"), loc.T("flash.restored"), func() error {
		_, err := s.adapter.Restore(ctx, id)
		return err
	})
}

// mutateRecord — общий сценарий удаления и восстановления.
// Состояние редактирования не меняется; ошибка показывается уведомлением.
func (s *Session[R, B]) mutateRecord(ctx context.Context, prompt, success string, op func() error) error {
	if !s.confirmer.Confirm(ctx, prompt) {
		return ErrCancelled
	}

	if err := op(); err != nil {
		n := s.normalizer.Normalize(err)
		s.notifier.Error(n.Message)
		return err
	}

	s.reload(ctx)
	s.notifier.Success(success)
	return nil
}

// Snapshot возвращает копию состояния сессии.
func (s *Session[R, B]) Snapshot() Snapshot[B] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot[B]{
		Mode:        s.mode,
		Saving:      s.saving,
		ID:          s.id,
		HasID:       s.hasID,
		Detached:    s.detached,
		Buffer:      s.buffer,
		FieldErrors: maps.Clone(s.fieldErrors),
		NonField:    append([]string(nil), s.nonField...),
		SaveError:   s.saveErr,
	}
}

// Mode возвращает текущий режим.
func (s *Session[R, B]) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// CanNavigate — переход между строками разрешён вне создания и редактирования.
func (s *Session[R, B]) CanNavigate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode != Creating && s.mode != Editing
}

// selectionLost вызывается списком, когда выбранная запись покинула страницу.
func (s *Session[R, B]) selectionLost(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasID || s.id != id {
		return
	}

	switch s.mode {
	case Viewing:
		s.closeLocked()
	case Editing:
		if !s.detached {
			s.detached = true
			s.logger.Info("Редактируемая запись покинула страницу", slog.Int64("id", id))
		}
	}
}

// reload перезагружает список; устаревший результат не является ошибкой.
func (s *Session[R, B]) reload(ctx context.Context) {
	err := s.list.Load(ctx)
	if err != nil && !errors.Is(err, listctl.ErrStale) {
		s.logger.Warn("Ошибка перезагрузки списка", slog.String("error", err.Error()))
	}
}

func (s *Session[R, B]) isSaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

func (s *Session[R, B]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// closeLocked закрывает сессию. Вызывается под s.mu.
func (s *Session[R, B]) closeLocked() {
	var zero B
	s.mode = Closed
	s.id, s.hasID = 0, false
	s.detached = false
	s.buffer = zero
	s.clearErrors()
}

// clearErrors очищает ошибки сохранения. Вызывается под s.mu.
func (s *Session[R, B]) clearErrors() {
	s.fieldErrors = map[string][]string{}
	s.nonField = nil
	s.saveErr = ""
}
