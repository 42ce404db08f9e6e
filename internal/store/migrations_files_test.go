package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var testMigrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(testMigrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestMigrationFilesAreSortedLexically(t *testing.T) {
	versions, err := migrationFiles(testMigrationsDir)
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(versions) < 3 {
		t.Fatalf("expected at least 3 up migrations, got %v", versions)
	}
	if !strings.HasPrefix(versions[0], "0001_") {
		t.Fatalf("expected schema migration first, got %s", versions[0])
	}
	for _, v := range versions {
		if !strings.HasSuffix(v, ".up.sql") {
			t.Fatalf("down migration listed as pending: %s", v)
		}
	}
}

func TestRevisionImmutabilityMigrationUsesBlockingTriggers(t *testing.T) {
	sqlBytes, err := os.ReadFile(filepath.Join(testMigrationsDir, "0002_revision_immutability_trigger.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	for _, snippet := range []string{
		"dossier_revisions_immutable_guard",
		"RAISE EXCEPTION",
		"CREATE TRIGGER trg_dossier_revisions_block_update",
		"CREATE TRIGGER trg_dossier_revisions_block_delete",
	} {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
	if strings.Contains(sqlText, "DO INSTEAD NOTHING") {
		t.Fatalf("expected hard-fail immutability guard, found silent DO INSTEAD NOTHING rule")
	}
}

func TestSchemaDeclaresCompoundUniqueKeys(t *testing.T) {
	sqlBytes, err := os.ReadFile(filepath.Join(testMigrationsDir, "0001_dossier_schema.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	for _, index := range []string{
		"ux_dossier_sources_url ON dossier_sources (dossier_id, canonical_url_hash)",
		"ux_dossier_claims_key ON dossier_claims (dossier_id, claim_id)",
		"ux_dossier_findings_producer ON dossier_findings (dossier_id, claim_id, produced_by)",
		"ux_dossier_edges_pair ON dossier_edges (dossier_id, from_id, to_id, rel)",
		"ux_open_questions_key ON open_questions (dossier_id, question_id)",
	} {
		if !strings.Contains(sqlText, index) {
			t.Fatalf("expected schema to declare %q", index)
		}
	}
}
