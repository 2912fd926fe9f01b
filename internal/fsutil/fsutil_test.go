package fsutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestCopyWithContext(t *testing.T) {
	src := strings.NewReader("hello world")
	var dst bytes.Buffer

	written, err := CopyWithContext(context.Background(), &dst, src)
	if err != nil {
		t.Fatalf("CopyWithContext() error = %v", err)
	}
	if written != int64(len("hello world")) {
		t.Errorf("Expected %d bytes written, got %d", len("hello world"), written)
	}
	if dst.String() != "hello world" {
		t.Errorf("Unexpected copy result: %q", dst.String())
	}
}

func TestCopyWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := strings.NewReader("data that should not be copied")
	var dst bytes.Buffer

	_, err := CopyWithContext(ctx, &dst, src)
	if err == nil {
		t.Fatal("Expected error from cancelled context")
	}
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestMoveDir(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src")
	dst := filepath.Join(tempDir, "dst")

	if err := os.MkdirAll(filepath.Join(src, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "nested", "file.txt"), []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}

	log := logrus.WithField("component", "fsutil-test")
	if err := MoveDir(log, src, dst); err != nil {
		t.Fatalf("MoveDir() error = %v", err)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("Source directory should no longer exist")
	}

	data, err := os.ReadFile(filepath.Join(dst, "nested", "file.txt"))
	if err != nil {
		t.Fatalf("Moved file missing: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("Unexpected file content: %q", string(data))
	}
}

func TestCopyTreePreservesSymlinks(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src")
	dst := filepath.Join(tempDir, "dst")

	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "target.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("target.txt", filepath.Join(src, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if err := copyTree(src, dst); err != nil {
		t.Fatalf("copyTree() error = %v", err)
	}

	link, err := os.Readlink(filepath.Join(dst, "link"))
	if err != nil {
		t.Fatalf("Copied symlink missing: %v", err)
	}
	if link != "target.txt" {
		t.Errorf("Expected symlink to target.txt, got %q", link)
	}
}
