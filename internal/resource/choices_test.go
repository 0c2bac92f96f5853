package resource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bigkaa/mdclient/internal/apiclient"
	"github.com/bigkaa/mdclient/internal/domain/model"
)

// fakeDoer отвечает фиксированным значением и считает вызовы.
type fakeDoer struct {
	calls int
	paths []string
	reply any
	err   error
}

func (d *fakeDoer) Do(_ context.Context, req *apiclient.Request, out any) error {
	d.calls++
	d.paths = append(d.paths, req.Path)
	if d.err != nil {
		return d.err
	}
	data, err := json.Marshal(d.reply)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func categoryChoices() []model.CategoryChoice {
	return []model.CategoryChoice{
		{ID: 1, ProductCategoryName: "Drinks"},
		{ID: 2, ProductCategoryName: "Food"},
	}
}

// TestChoiceCache_GetSet проверяет, что повторный запрос обслуживается из кэша.
func TestChoiceCache_GetSet(t *testing.T) {
	doer := &fakeDoer{reply: categoryChoices()}
	cache := NewChoiceCache(doer, 8, 5*time.Minute, discardLogger())

	first, err := cache.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories вернул ошибку: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("len = %d, ожидалось 2", len(first))
	}

	second, err := cache.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories вернул ошибку: %v", err)
	}
	if second[1].ProductCategoryName != "Food" {
		t.Errorf("второй элемент = %+v", second[1])
	}
	if doer.calls != 1 {
		t.Errorf("запросов к серверу: %d, ожидался 1", doer.calls)
	}
	if doer.paths[0] != CategoryChoicesPath {
		t.Errorf("путь = %q", doer.paths[0])
	}
}

// TestChoiceCache_Invalidate проверяет сброс кэша.
func TestChoiceCache_Invalidate(t *testing.T) {
	doer := &fakeDoer{reply: categoryChoices()}
	cache := NewChoiceCache(doer, 8, 5*time.Minute, discardLogger())

	_, _ = cache.Categories(context.Background())
	cache.Invalidate()
	_, _ = cache.Categories(context.Background())

	if doer.calls != 2 {
		t.Errorf("после Invalidate ожидался повторный запрос, вызовов: %d", doer.calls)
	}
}

// TestChoiceCache_TTLExpiry проверяет автоматическое истечение TTL.
func TestChoiceCache_TTLExpiry(t *testing.T) {
	doer := &fakeDoer{reply: categoryChoices()}
	cache := NewChoiceCache(doer, 8, 50*time.Millisecond, discardLogger())

	_, _ = cache.Categories(context.Background())
	time.Sleep(100 * time.Millisecond)
	_, _ = cache.Categories(context.Background())

	if doer.calls != 2 {
		t.Errorf("после истечения TTL ожидался повторный запрос, вызовов: %d", doer.calls)
	}
}

// TestChoiceCache_ErrorNotCached проверяет, что ошибка не кэшируется.
func TestChoiceCache_ErrorNotCached(t *testing.T) {
	doer := &fakeDoer{err: errors.New("сервер недоступен")}
	cache := NewChoiceCache(doer, 8, 5*time.Minute, discardLogger())

	if _, err := cache.Categories(context.Background()); err == nil {
		t.Fatal("ожидалась ошибка")
	}

	doer.err = nil
	doer.reply = categoryChoices()
	if _, err := cache.Categories(context.Background()); err != nil {
		t.Fatalf("после восстановления ошибка: %v", err)
	}
	if doer.calls != 2 {
		t.Errorf("вызовов: %d, ожидалось 2", doer.calls)
	}
}

// TestChoiceCache_CategoryName проверяет поиск названия по id.
func TestChoiceCache_CategoryName(t *testing.T) {
	cache := NewChoiceCache(&fakeDoer{reply: categoryChoices()}, 8, time.Minute, discardLogger())

	name, ok, err := cache.CategoryName(context.Background(), 2)
	if err != nil || !ok || name != "Food" {
		t.Errorf("CategoryName(2) = %q, %v, %v", name, ok, err)
	}

	_, ok, _ = cache.CategoryName(context.Background(), 99)
	if ok {
		t.Error("несуществующая категория не должна находиться")
	}
}
