package editsession

import (
	"context"

	"github.com/bigkaa/mdclient/internal/listctl"
)

// Adapter — операции ресурса, нужные сессии. B — буфер редактируемых полей.
type Adapter[R listctl.Record, B any] interface {
	// Defaults возвращает буфер новой записи.
	Defaults() B
	// Seed заполняет буфер из записи.
	Seed(rec R) B
	// Deleted сообщает, удалена ли запись (удалённые только для чтения).
	Deleted(rec R) bool

	Create(ctx context.Context, buf B) (R, error)
	Update(ctx context.Context, id int64, buf B) (R, error)
	Delete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) (R, error)
}

// List — часть контроллера списка, с которой работает сессия.
// *listctl.Controller удовлетворяет интерфейсу.
type List[R listctl.Record] interface {
	Row(id int64) (R, bool)
	Select(id int64) error
	ClearSelection()
	Load(ctx context.Context) error
	OnSelectionLost(fn func(id int64))
	SetNavigationGuard(guard func() bool)
}

// Notifier показывает короткие уведомления.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Confirmer запрашивает подтверждение у пользователя.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc — Confirmer из функции.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// nopNotifier отбрасывает уведомления.
type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Error(string)   {}

// alwaysConfirm подтверждает всё (неинтерактивный режим).
type alwaysConfirm struct{}

func (alwaysConfirm) Confirm(context.Context, string) bool { return true }
