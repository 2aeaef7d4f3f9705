package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestParseS3URL(t *testing.T) {
	cases := []struct{ in, bucket, key string }{
		{"s3://docs/in/a.pdf", "docs", "in/a.pdf"},
		{"s3://docs", "docs", ""},
		{"s3://docs/", "docs", ""},
	}
	for _, c := range cases {
		b, k, err := ParseS3URL(c.in)
		if err != nil || b != c.bucket || k != c.key {
			t.Errorf("ParseS3URL(%q) = %q, %q, %v", c.in, b, k, err)
		}
	}
	if _, _, err := ParseS3URL("/tmp/a.pdf"); err == nil {
		t.Error("want error for non-s3 ref")
	}
}

func TestName(t *testing.T) {
	cases := map[string]string{
		"/data/in/report.pdf":                "report.pdf",
		"file:///data/x.pdf":                 "x.pdf",
		"s3://b/k/y.pdf":                     "y.pdf",
		"https://host/files/z.pdf?sig=abc#1": "z.pdf",
	}
	for in, want := range cases {
		if got := Name(in); got != want {
			t.Errorf("Name(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFetchAndSaveLocal(t *testing.T) {
	dir := t.TempDir()
	s := New(S3Options{})
	out, err := s.Save(context.Background(), filepath.Join(dir, "nested", "out"), "a.pdf", []byte("%PDF-1.7"), "application/pdf")
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range []string{out, "file://" + out} {
		data, err := s.Fetch(context.Background(), ref)
		if err != nil || string(data) != "%PDF-1.7" {
			t.Errorf("Fetch(%q) = %q, %v", ref, data, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "nested", "out", "a.pdf")); err != nil {
		t.Error(err)
	}
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/doc.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("%PDF-remote"))
	}))
	defer srv.Close()

	s := New(S3Options{})
	data, err := s.Fetch(context.Background(), srv.URL+"/doc.pdf")
	if err != nil || string(data) != "%PDF-remote" {
		t.Fatalf("Fetch = %q, %v", data, err)
	}
	if _, err := s.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("want error on 404")
	}
}
