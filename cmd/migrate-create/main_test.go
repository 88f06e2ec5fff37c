package main

import "testing"

func TestMigrationSlug(t *testing.T) {
	cases := map[string]string{
		"add_round_index":     "add_round_index",
		"  Add Round Index  ": "add_round_index",
		"drop game-results!!": "drop_game_results",
		"---":                 "",
	}
	for in, want := range cases {
		if got := migrationSlug(in); got != want {
			t.Fatalf("migrationSlug(%q) = %q, want %q", in, got, want)
		}
	}
}
