package mockapi

import (
	"context"
	"fmt"
)

// seedUser — автор начальных записей.
const seedUser = "seed"

// Seed заполняет хранилище демонстрационными записями.
func Seed(ctx context.Context, s *Store) error {
	categories := []string{"飲料", "食品", "日用品"}
	catIDs := make([]int64, 0, len(categories))
	for i, name := range categories {
		rec, err := s.Create(ctx, "product-categories", map[string]any{
			"product_category_name": name,
			"sort":                  fmt.Sprint((i + 1) * 10),
		}, seedUser)
		if err != nil {
			return fmt.Errorf("категория %s: %w", name, err)
		}
		catIDs = append(catIDs, rec.id())
	}

	products := []map[string]any{
		{"product_name": "緑茶 500ml", "product_category": catIDs[0], "unit": "本", "unit_price": "120"},
		{"product_name": "コーヒー豆 200g", "product_category": catIDs[0], "unit": "袋", "unit_price": "980"},
		{"product_name": "米 5kg", "product_category": catIDs[1], "unit": "袋", "unit_price": "2480"},
		{"product_name": "食器用洗剤", "product_category": catIDs[2], "unit": "本", "unit_price": "298"},
		{"product_name": "試供品", "unit": "個"},
	}
	for _, p := range products {
		if _, err := s.Create(ctx, "products", p, seedUser); err != nil {
			return fmt.Errorf("товар %v: %w", p["product_name"], err)
		}
	}

	for i := 1; i <= 45; i++ {
		partnerType := []string{"customer", "supplier", "both"}[i%3]
		_, err := s.Create(ctx, "partners", map[string]any{
			"partner_name": fmt.Sprintf("取引先 %02d", i),
			"partner_type": partnerType,
			"email":        fmt.Sprintf("partner%02d@example.com", i),
			"tel_number":   fmt.Sprintf("03-0000-%04d", i),
		}, seedUser)
		if err != nil {
			return fmt.Errorf("контрагент %d: %w", i, err)
		}
	}

	tenants := []map[string]any{
		{"tenant_name": "Acme Corp", "representative_name": "山田 太郎", "email": "info@acme.example.com"},
		{"tenant_name": "Globex", "representative_name": "鈴木 花子", "email": "contact@globex.example.com"},
	}
	for _, t := range tenants {
		if _, err := s.Create(ctx, "tenants", t, seedUser); err != nil {
			return fmt.Errorf("арендатор %v: %w", t["tenant_name"], err)
		}
	}
	return nil
}
