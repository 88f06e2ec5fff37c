package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeName = regexp.MustCompile(`[^a-z0-9_]+`)

func main() {
	name := flag.String("name", "", "migration name, e.g. add_round_index")
	dir := flag.String("dir", filepath.Join("db", "migrations"), "migrations directory")
	flag.Parse()

	slug := migrationSlug(*name)
	if slug == "" {
		log.Fatal("migration name is required")
	}

	version := time.Now().UTC().Format("20060102150405")
	base := fmt.Sprintf("%s_%s", version, slug)
	upPath := filepath.Join(*dir, base+".up.sql")
	downPath := filepath.Join(*dir, base+".down.sql")

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalf("create migrations dir: %v", err)
	}
	if err := writeFile(upPath, "-- "+slug+" up\n"); err != nil {
		log.Fatalf("create up migration: %v", err)
	}
	if err := writeFile(downPath, "-- "+slug+" down\n"); err != nil {
		log.Fatalf("create down migration: %v", err)
	}
	log.Printf("created %s and %s", upPath, downPath)
}

// migrationSlug lowercases name and folds anything outside [a-z0-9_] into "_".
func migrationSlug(name string) string {
	slug := unsafeName.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(slug, "_")
}

func writeFile(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file already exists: %s", path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
