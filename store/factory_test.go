package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewStoreFactory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Kind: "memory"}, false},
		{"mem alias", Config{Kind: "mem"}, false},
		{"file", Config{Kind: "file", FilePath: filepath.Join(dir, "s.json")}, false},
		{"file without path", Config{Kind: "file"}, true},
		{"sqlite", Config{Kind: "sqlite", SQLitePath: filepath.Join(dir, "s.db")}, false},
		{"sqlite without path", Config{Kind: "sqlite"}, true},
		{"postgres without dsn", Config{Kind: "postgres"}, true},
		{"dynamodb without tables", Config{Kind: "dynamodb"}, true},
		{"unknown", Config{Kind: "redis"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, err := NewStore(ctx, tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %+v", tc.cfg)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewStore failed: %v", err)
			}
			if st == nil {
				t.Fatal("expected non-nil store")
			}
			_ = st.Close()
		})
	}
}
