package mtphost

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestJournalBeginProgressFinish(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	rec, err := j.Begin("dev1", "upload", "/tmp/photo.jpg", 1, RootParent, 1000)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if rec.State != TransferActive {
		t.Fatalf("expected active state, got %s", rec.State)
	}

	if err := j.SetRemoteHandle(rec, 42); err != nil {
		t.Fatalf("SetRemoteHandle: %v", err)
	}
	if err := j.Progress(rec, 500); err != nil {
		t.Fatalf("Progress: %v", err)
	}

	resumable, err := j.Resumable("dev1")
	if err != nil {
		t.Fatalf("Resumable: %v", err)
	}
	if len(resumable) != 1 || resumable[0].CommittedBytes != 500 {
		t.Fatalf("unexpected resumable set: %+v", resumable)
	}

	if err := j.Finish(rec, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	resumable, _ = j.Resumable("dev1")
	if len(resumable) != 0 {
		t.Fatalf("expected no resumable records after Finish(nil), got %+v", resumable)
	}
}

func TestJournalFinishWithErrorMarksFailed(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	rec, _ := j.Begin("dev1", "download", "/tmp/x.jpg", 1, RootParent, 10)
	failErr := errors.New("boom")
	if err := j.Finish(rec, failErr); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if rec.State != TransferFailed || rec.LastError != "boom" {
		t.Fatalf("unexpected record state: %+v", rec)
	}
}

func TestJournalSecondOpenIsLocked(t *testing.T) {
	dir := t.TempDir()
	j1, err := OpenJournal(dir)
	if err != nil {
		t.Fatalf("first OpenJournal: %v", err)
	}
	defer j1.Close()

	if _, err := OpenJournal(dir); err == nil {
		t.Fatal("expected second OpenJournal on the same directory to fail")
	}
}

func TestJournalRecordsPersistAsFiles(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	rec, _ := j.Begin("dev1", "upload", "/tmp/a.jpg", 1, RootParent, 10)

	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one journal file, got %v", matches)
	}
	_ = rec
}
