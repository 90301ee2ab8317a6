package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    Location
		wantErr bool
	}{
		{uri: "data/trips.csv", want: Location{Key: "data/trips.csv"}},
		{uri: "s3://bench/raw/trips.csv", want: Location{Bucket: "bench", Key: "raw/trips.csv"}},
		{uri: "s3://bench", wantErr: true},
		{uri: "s3:///key", wantErr: true},
		{uri: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if err == nil && got.String() != tt.uri {
				t.Errorf("String() = %q, want %q", got.String(), tt.uri)
			}
		})
	}
}

// localBackends serves each bucket from a directory under root.
func localBackends(root string) BackendFactory {
	return func(ctx context.Context, bucket string) (ObjectStorage, error) {
		return NewLocalStorage(filepath.Join(root, bucket))
	}
}

func TestResolver_Fetch(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "bench", "raw"), 0755); err != nil {
		t.Fatal(err)
	}
	writeTemp(t, filepath.Join(root, "bench", "raw"), "jan.csv", "remote")
	local := writeTemp(t, t.TempDir(), "feb.csv", "local")

	r := NewResolver(t.TempDir(), localBackends(root))
	paths, err := r.Fetch(context.Background(), []string{"s3://bench/raw/jan.csv", local})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(paths) != 2 || paths[1] != local {
		t.Fatalf("paths = %v", paths)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "remote" {
		t.Errorf("fetched %q, want remote", data)
	}
}

func TestResolver_FetchMissing(t *testing.T) {
	r := NewResolver(t.TempDir(), localBackends(t.TempDir()))

	if _, err := r.Fetch(context.Background(), []string{filepath.Join(t.TempDir(), "none.csv")}); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("local: got %v, want ErrObjectNotFound", err)
	}
	if _, err := r.Fetch(context.Background(), []string{"s3://bench/none.csv"}); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("remote: got %v, want ErrObjectNotFound", err)
	}
}

func TestResolver_Publish(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(t.TempDir(), localBackends(root))
	ctx := context.Background()

	if err := r.Publish(ctx, []byte("report"), "s3://bench/reports/run.json"); err != nil {
		t.Fatalf("Publish remote: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "bench", "reports", "run.json"))
	if err != nil || string(data) != "report" {
		t.Errorf("remote object = %q, %v", data, err)
	}

	dst := filepath.Join(t.TempDir(), "out", "run.json")
	if err := r.Publish(ctx, []byte("local"), dst); err != nil {
		t.Fatalf("Publish local: %v", err)
	}
	data, err = os.ReadFile(dst)
	if err != nil || string(data) != "local" {
		t.Errorf("local file = %q, %v", data, err)
	}
}
