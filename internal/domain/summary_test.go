package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
)

func TestSummarizeClient(t *testing.T) {
	client := makeClient()
	client.ID = 9

	page := domain.ClientOrdersPage{Results: []domain.ClientSummary{domain.SummarizeClient(client)}}
	data, err := json.Marshal(page)
	if err != nil {
		t.Fatalf("marshal page: %v", err)
	}

	want := `{"results":[{"nomComplet":"Awa Diop","telephone":"+221770000001"}]}`
	if string(data) != want {
		t.Fatalf("unexpected envelope:\n got %s\nwant %s", data, want)
	}
}

func TestPage(t *testing.T) {
	if p := domain.DefaultPage(); p.Index != 0 || p.Size != domain.DefaultPageSize {
		t.Fatalf("unexpected default page: %+v", p)
	}

	cases := []struct {
		name   string
		page   domain.Page
		valid  bool
		limit  int
		offset int
	}{
		{name: "first page", page: domain.Page{Index: 0, Size: 10}, valid: true, limit: 10, offset: 0},
		{name: "third page", page: domain.Page{Index: 2, Size: 5}, valid: true, limit: 5, offset: 10},
		{name: "capped size", page: domain.Page{Index: 1, Size: 1000}, valid: true, limit: domain.MaxPageSize, offset: domain.MaxPageSize},
		{name: "negative index", page: domain.Page{Index: -1, Size: 10}, valid: false},
		{name: "zero size", page: domain.Page{Index: 0, Size: 0}, valid: false},
		{name: "last addressable page", page: domain.Page{Index: domain.MaxPageIndex, Size: 1000}, valid: true, limit: domain.MaxPageSize, offset: domain.MaxPageIndex * domain.MaxPageSize},
		{name: "offset overflow", page: domain.Page{Index: domain.MaxPageIndex + 1, Size: 10}, valid: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.page.Validate()
			if tc.valid != (err == nil) {
				t.Fatalf("Validate() = %v, want valid=%v", err, tc.valid)
			}
			if !tc.valid {
				if !domain.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if got := tc.page.Limit(); got != tc.limit {
				t.Fatalf("Limit() = %d, want %d", got, tc.limit)
			}
			if got := tc.page.Offset(); got != tc.offset {
				t.Fatalf("Offset() = %d, want %d", got, tc.offset)
			}
		})
	}
}
