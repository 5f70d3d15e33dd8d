package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aktagon/link-harvester/internal/ledgerio"
)

// captureDirPattern matches <prefix>-<segment>-<YYYY-MM-DDTHH-MM-SS-mmmZ>
var captureDirPattern = regexp.MustCompile(`-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z$`)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: prune <saves <saved-pages-directory> [days]|clear-notes <ledger.csv> [encoding]>")
	}

	command := os.Args[1]
	target := os.Args[2]

	switch command {
	case "saves":
		days := 7
		if len(os.Args) > 3 {
			n, err := strconv.Atoi(os.Args[3])
			if err != nil || n < 0 {
				log.Fatalf("Invalid number of days %q", os.Args[3])
			}
			days = n
		}
		if err := pruneSaves(target, days, time.Now()); err != nil {
			log.Fatal(err)
		}
	case "clear-notes":
		encoding := "utf-8"
		if len(os.Args) > 3 {
			encoding = os.Args[3]
		}
		if err := clearNotes(target, encoding, bufio.NewReader(os.Stdin)); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("Unknown command %q", command)
	}
}

// pruneSaves removes capture directories last modified more than days ago
func pruneSaves(savesDir string, days int, now time.Time) error {
	entries, err := os.ReadDir(savesDir)
	if os.IsNotExist(err) {
		log.Printf("No captures in %s", savesDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", savesDir, err)
	}

	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !captureDirPattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Printf("Error reading %s: %v", entry.Name(), err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(savesDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Printf("Error removing %s: %v", path, err)
			continue
		}
		log.Printf("Removed %s", path)
		removed++
	}

	fmt.Printf("\nRemoved %d captures older than %d days\n", removed, days)
	return nil
}

// clearNotes blanks the note column of the data rows after confirmation.
// The header row is left alone.
func clearNotes(ledgerPath, encoding string, reader *bufio.Reader) error {
	data, err := os.ReadFile(ledgerPath)
	if err != nil {
		return fmt.Errorf("reading ledger %s: %w", ledgerPath, err)
	}

	rows, err := ledgerio.Decode(data, encoding)
	if err != nil {
		return fmt.Errorf("parsing ledger %s: %w", ledgerPath, err)
	}

	var noted []int
	for i := ledgerio.FirstDataRow; i < len(rows); i++ {
		row := rows[i]
		if len(row) > ledgerio.NoteColumn && row[ledgerio.NoteColumn] != "" {
			noted = append(noted, i)
		}
	}
	if len(noted) == 0 {
		fmt.Println("No annotated rows")
		return nil
	}

	fmt.Printf("\nFound %d annotated rows:\n", len(noted))
	for _, i := range noted {
		fmt.Printf("  row %d: %s (%s)\n", i, rows[i][0], rows[i][ledgerio.NoteColumn])
	}
	if !confirm(reader, fmt.Sprintf("CLEAR %d notes in %s?", len(noted), filepath.Base(ledgerPath))) {
		fmt.Println("  SKIP")
		return nil
	}

	for _, i := range noted {
		rows[i][ledgerio.NoteColumn] = ""
	}
	content, err := ledgerio.Encode(rows, encoding)
	if err != nil {
		return err
	}
	if err := ledgerio.WriteFileAtomic(ledgerPath, content, 0644); err != nil {
		return fmt.Errorf("writing ledger %s: %w", ledgerPath, err)
	}
	fmt.Printf("\nCleared %d notes\n", len(noted))
	return nil
}

func confirm(reader *bufio.Reader, question string) bool {
	for {
		fmt.Printf("  %s [y/N]: ", question)
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			log.Printf("Error reading input: %v", err)
			return false
		}
		response := strings.ToLower(strings.TrimSpace(input))
		switch response {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		default:
			fmt.Println("  Please enter y or n.")
		}
	}
}
