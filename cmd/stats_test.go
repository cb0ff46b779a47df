package cmd

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dhcgn/mbox-to-archive/stats"
)

const sampleMbox = "From abcde\n" +
	"From: Alice <alice@example.com>\n" +
	"Subject: Invoice\n" +
	"Message-Id: <one@example.com>\n" +
	"\n" +
	"please pay\n" +
	"\n" +
	"From fghij\n" +
	"From: Bob <bob@example.com>\n" +
	"Subject: Invoice\n" +
	"Message-Id: <two@example.com>\n" +
	"\n" +
	"paid\n" +
	"\n" +
	"From klmno\n" +
	"From: Carol <carol@example.com>\n" +
	"Subject: Newsletter\n" +
	"Message-Id: <three@example.com>\n" +
	"\n" +
	"unsubscribe\n"

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestStatsCommand(t *testing.T) {
	dir := t.TempDir()
	mboxPath := filepath.Join(dir, "Inbox")
	if err := os.WriteFile(mboxPath, []byte(sampleMbox), 0o644); err != nil {
		t.Fatal(err)
	}
	reportDir := filepath.Join(dir, "reports")

	cmd := NewStatsCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{mboxPath, "--output", reportDir, "--exclude-header", "Subject: Newsletter", "--top", "1"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	text := out.String()
	for _, want := range []string{
		"Processed 2 messages in 1 folders (skipped 1 by filters, 33.33%",
		"Exclude Header Filters:",
		"✓ Subject: Newsletter: 1 hits",
		"1. Invoice (2)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	subjects := readCSV(t, filepath.Join(reportDir, "report_subjects.csv"))
	if len(subjects) != 2 || subjects[1][0] != "Invoice" || subjects[1][1] != "2" {
		t.Errorf("subjects = %v", subjects)
	}
	folders := readCSV(t, filepath.Join(reportDir, "report_folders.csv"))
	if len(folders) != 2 || folders[1][1] != "2" {
		t.Errorf("folders = %v", folders)
	}
	senders := readCSV(t, filepath.Join(reportDir, "report_senders.csv"))
	if len(senders) != 3 {
		t.Errorf("senders = %v", senders)
	}
	if _, err := os.Stat(filepath.Join(dir, "archive")); !os.IsNotExist(err) {
		t.Error("stats must not write an archive")
	}
}

func TestStatsCommand_MissingSource(t *testing.T) {
	cmd := NewStatsCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for a missing source")
	}
}

func TestSaveCSVReports_Limit(t *testing.T) {
	dir := t.TempDir()
	b := stats.Breakdown{
		Senders:  map[string]int{"a": 3, "b": 2, "c": 1},
		Subjects: map[string]int{},
		Folders:  map[string]int{"Inbox": 6},
	}
	if err := saveCSVReports(b, dir, 2); err != nil {
		t.Fatal(err)
	}
	senders := readCSV(t, filepath.Join(dir, "report_senders.csv"))
	if len(senders) != 3 || senders[1][0] != "a" || senders[2][0] != "b" {
		t.Errorf("senders = %v", senders)
	}
	if subjects := readCSV(t, filepath.Join(dir, "report_subjects.csv")); len(subjects) != 1 {
		t.Errorf("subjects = %v", subjects)
	}
}
