package postgres

import (
	"reflect"
	"testing"

	"billdesk/backend/internal/store"
)

func TestBuildQuery(t *testing.T) {
	cases := []struct {
		name  string
		query store.Query
		sql   string
		args  []any
	}{
		{
			name:  "path order",
			query: store.Query{},
			sql:   "SELECT path, data FROM documents WHERE collection = $1 ORDER BY path",
			args:  []any{"shops/s1/bills"},
		},
		{
			name: "newest bills",
			query: store.Query{
				OrderBy: []store.Order{
					{Field: "createdAt", As: store.SortTime, Descending: true},
					{Field: "billNoFormatted", Descending: true},
				},
				Limit: 50,
			},
			sql: "SELECT path, data FROM documents WHERE collection = $1 ORDER BY " +
				"(data->>$2)::timestamptz DESC NULLS LAST, " +
				`data->>$3 COLLATE "C" DESC NULLS LAST, path LIMIT $4`,
			args: []any{"shops/s1/bills", "createdAt", "billNoFormatted", 50},
		},
		{
			name:  "numeric ascending",
			query: store.Query{OrderBy: []store.Order{{Field: "stock", As: store.SortNumber}}},
			sql:   "SELECT path, data FROM documents WHERE collection = $1 ORDER BY (data->>$2)::numeric ASC NULLS LAST, path",
			args:  []any{"shops/s1/bills", "stock"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sql, args := buildQuery("shops/s1/bills", tc.query)
			if sql != tc.sql {
				t.Fatalf("unexpected sql\n got: %s\nwant: %s", sql, tc.sql)
			}
			if !reflect.DeepEqual(args, tc.args) {
				t.Fatalf("unexpected args %v", args)
			}
		})
	}
}
