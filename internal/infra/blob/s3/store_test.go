package s3

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"

	"tracecore/internal/blob/core"
)

func TestStoreMockedBasicFlow(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "recall-plans/plan.json", bytes.NewReader([]byte(`{"entries":[]}`)), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "recall-plans/plan.json" || info.ContentType != "application/json" {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Put(ctx, "recall-plans/plan.json", bytes.NewReader([]byte("ignored")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}
	if _, err := store.Head(ctx, "recall-plans/plan.json"); err != nil {
		t.Fatalf("head: %v", err)
	}
	_, rc, err := store.Get(ctx, "recall-plans/plan.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `{"entries":[]}` {
		t.Fatalf("get mismatch: %q", string(data))
	}
	list, err := store.List(ctx, "recall-plans/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if url, err := store.PresignURL(ctx, "recall-plans/plan.json", core.SignedURLOptions{}); err != nil || url == "" {
		t.Fatalf("presign: %v %s", err, url)
	}
	if ok, err := store.Delete(ctx, "recall-plans/plan.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
}

func TestStoreNew(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	s, err := New(context.Background(), Config{Bucket: "bkt", Region: "us-east-1", Endpoint: "https://mock.s3.local", PathStyle: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Driver() != core.DriverS3 {
		t.Fatalf("expected DriverS3")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestOpenFromEnv(t *testing.T) {
	t.Setenv("TRACECORE_BLOB_S3_BUCKET", "env-bucket")
	t.Setenv("TRACECORE_BLOB_S3_REGION", "us-east-1")
	if _, err := OpenFromEnv(context.Background()); err != nil {
		t.Fatalf("OpenFromEnv: %v", err)
	}
	t.Setenv("TRACECORE_BLOB_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestStoreErrorPaths(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); err == nil {
		t.Fatalf("expected head error for missing key")
	}
	if _, _, err := store.Get(ctx, "nope"); err == nil {
		t.Fatalf("expected get error for missing key")
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); err == nil {
		t.Fatalf("expected presign unsupported error")
	}
}

func TestStorePresignCustomExpiry(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k.txt", bytes.NewReader([]byte("body")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if url, err := store.PresignURL(ctx, "k.txt", core.SignedURLOptions{Expiry: 30 * time.Second}); err != nil || url == "" {
		t.Fatalf("presign custom: %v %s", err, url)
	}
	if list, err := store.List(ctx, "no-such-prefix/"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, list)
	}
}

func TestFromHeadNilBranches(t *testing.T) {
	store := NewMockForTests()
	info := store.fromHead("k", 10, nil, aws.String("\"etagval\""), map[string]string{"x": "y"}, nil)
	if info.ETag != "etagval" || info.ContentType != "" || info.Key != "k" || info.Size != 10 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestDecodeChunkedHelper(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected fail")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello")
	}
}
