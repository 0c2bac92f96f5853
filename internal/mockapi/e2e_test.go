package mockapi_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/mdclient/internal/apiclient"
	"github.com/bigkaa/mdclient/internal/apierr"
	"github.com/bigkaa/mdclient/internal/credstore"
	"github.com/bigkaa/mdclient/internal/csvio"
	"github.com/bigkaa/mdclient/internal/domain/model"
	"github.com/bigkaa/mdclient/internal/editsession"
	"github.com/bigkaa/mdclient/internal/i18n"
	"github.com/bigkaa/mdclient/internal/listctl"
	"github.com/bigkaa/mdclient/internal/mockapi"
	"github.com/bigkaa/mdclient/internal/resource"
)

type notices struct {
	mu      sync.Mutex
	success []string
	errors  []string
}

func (n *notices) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.success = append(n.success, msg)
}

func (n *notices) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *notices) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.success) == 0 {
		return ""
	}
	return n.success[len(n.success)-1]
}

// startBackend поднимает mock backend с демонстрационными данными и входит в него.
func startBackend(t *testing.T) (*apiclient.Client, *credstore.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := mockapi.NewStore()
	require.NoError(t, mockapi.Seed(context.Background(), store))
	auth := mockapi.NewAuth("e2e-secret", time.Minute, time.Hour, mockapi.User{
		ID: 1, Email: "admin@example.com", Password: "admin", Tenant: "T001",
	}, logger)

	server := httptest.NewServer(mockapi.NewRouter(store, auth, logger))
	t.Cleanup(server.Close)

	creds := credstore.NewMemoryStore()
	client := apiclient.New(apiclient.Options{BaseURL: server.URL, Lang: "en"}, creds, logger)
	require.NoError(t, client.Login(context.Background(), "admin@example.com", "admin"))
	return client, creds
}

func TestEndToEnd_PartnerLifecycle(t *testing.T) {
	ctx := context.Background()
	client, creds := startBackend(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ep := resource.Partners(client)
	list := listctl.New[model.Partner](ep, listctl.Options{SortKey: "partner_name", PageSize: 20}, logger)
	require.NoError(t, list.Load(ctx))
	assert.Equal(t, 45, list.Total())
	assert.Equal(t, 3, list.TotalPages())

	n := &notices{}
	session := editsession.New[model.Partner, model.PartnerBuffer](list, ep, editsession.Options{
		Normalizer: apierr.NewNormalizer(i18n.NewLocalizer(nil, "en")),
		Notifier:   n,
		Logger:     logger,
	})

	// Создание с ошибками валидации: режим и буфер сохраняются
	require.NoError(t, session.OpenCreate())
	require.NoError(t, session.Update(func(b *model.PartnerBuffer) error {
		return b.SetField("email", "bad")
	}))
	_, err := session.Save(ctx)
	require.Error(t, err)

	snap := session.Snapshot()
	assert.Equal(t, editsession.Creating, snap.Mode)
	assert.Equal(t, "Please correct the highlighted fields", snap.SaveError)
	assert.Contains(t, snap.FieldErrors, "partner_name")
	assert.Contains(t, snap.FieldErrors, "email")
	assert.Equal(t, "bad", snap.Buffer.Email)

	require.NoError(t, session.Update(func(b *model.PartnerBuffer) error {
		if err := b.SetField("partner_name", "新規取引先"); err != nil {
			return err
		}
		return b.SetField("email", "new@example.com")
	}))
	created, err := session.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, editsession.Closed, session.Mode())
	assert.Equal(t, "Created", n.last())
	assert.Equal(t, model.PartnerCustomer, created.PartnerType)

	// Просроченный access token: клиент обновляет его и повторяет запрос
	pair, ok := creds.Read()
	require.True(t, ok)
	require.NoError(t, creds.Write(credstore.Pair{Access: "expired", Refresh: pair.Refresh}))

	list.SetFreeText("新規")
	require.NoError(t, list.Load(ctx))
	require.Len(t, list.Rows(), 1)
	renewed, _ := creds.Read()
	assert.NotEqual(t, "expired", renewed.Access)

	// Изменение
	require.NoError(t, session.EditRecord(created.ID))
	require.NoError(t, session.Update(func(b *model.PartnerBuffer) error {
		return b.SetField("contact_name", "佐藤")
	}))
	updated, err := session.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "佐藤", updated.ContactName)
	assert.Equal(t, editsession.Viewing, session.Mode())
	assert.Equal(t, "Saved", n.last())

	// Мягкое удаление и восстановление
	require.NoError(t, session.Delete(ctx, created.ID))
	assert.Equal(t, "Deleted", n.last())
	assert.Empty(t, list.Rows())
	assert.Equal(t, editsession.Closed, session.Mode())

	list.SetIncludeDeleted(true)
	require.NoError(t, list.Load(ctx))
	require.Len(t, list.Rows(), 1)
	assert.True(t, list.Rows()[0].IsDeleted)

	require.NoError(t, session.OpenView(created.ID))
	assert.ErrorIs(t, session.OpenEdit(), editsession.ErrDeleted)

	require.NoError(t, session.Restore(ctx, created.ID))
	assert.Equal(t, "Restored", n.last())
	assert.False(t, list.Rows()[0].IsDeleted)
}

func TestEndToEnd_RefreshFailureLogsOut(t *testing.T) {
	client, creds := startBackend(t)
	require.NoError(t, creds.Write(credstore.Pair{Access: "expired"}))

	_, err := resource.Products(client).List(context.Background(), listctl.Query{Page: 1, PageSize: 20})
	assert.True(t, apierr.IsStatus(err, http.StatusUnauthorized))
	assert.False(t, client.Authenticated())
}

func TestEndToEnd_ProductsAndChoices(t *testing.T) {
	ctx := context.Background()
	client, _ := startBackend(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cache := resource.NewChoiceCache(client, 8, time.Minute, logger)
	choices, err := cache.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, choices, 3)

	i := slices.IndexFunc(choices, func(c model.CategoryChoice) bool { return c.ProductCategoryName == "飲料" })
	require.GreaterOrEqual(t, i, 0)
	drinks := choices[i]
	list := listctl.New[model.Product](resource.Products(client), listctl.Options{
		SortKey: "unit_price",
		SortDir: listctl.Desc,
		Filters: map[string]string{resource.FilterProductCategory: strconv.FormatInt(drinks.ID, 10)},
	}, logger)
	require.NoError(t, list.Load(ctx))

	rows := list.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "コーヒー豆 200g", rows[0].ProductName)
	assert.Equal(t, "980.00", rows[0].UnitPrice.String())
	assert.Equal(t, "飲料", rows[0].ProductCategoryName)

	// Запрос страницы за пределами списка — ошибка, строки сохраняются
	list.SetPage(5)
	err = list.Load(ctx)
	assert.True(t, apierr.IsStatus(err, http.StatusNotFound))
	assert.Equal(t, listctl.Failed, list.State())
	assert.Len(t, list.Rows(), 2)
}

func TestEndToEnd_CSV(t *testing.T) {
	ctx := context.Background()
	client, _ := startBackend(t)
	path := resource.PathOf(resource.NamePartners)

	exported, err := csvio.Export(ctx, client, path, listctl.Query{FreeText: "partner0"}.Values(), "partners", time.Now())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(exported.Filename, "partners_"))
	assert.Contains(t, string(exported.Data), "partner09@example.com")
	assert.NotContains(t, string(exported.Data), "partner10@example.com")

	bad := "取引先名称,区分,Email\n新規A,customer,a@example.com\n新規B,unknown,b@example.com\n"
	res, err := csvio.Import(ctx, client, path, "partners.csv", []byte(bad))
	require.NoError(t, err)
	require.True(t, res.Partial)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 3, res.Rows[0].Row)
	assert.Equal(t, "新規B", res.Rows[0].Values["取引先名称"])
	assert.Equal(t, []string{`partner_type: "unknown" is not a valid choice.`}, res.Rows[0].Errors)

	good := "取引先名称,区分,Email\n新規A,customer,a@example.com\n新規B,supplier,b@example.com\n"
	res, err = csvio.Import(ctx, client, path, "partners.csv", []byte(good))
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Equal(t, 2, res.Count)

	page, err := resource.Partners(client).List(ctx, listctl.Query{FreeText: "新規", Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}
