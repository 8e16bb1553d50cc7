package infra

import "testing"

func TestMigrationURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@h:5432/db": "pgx5://u:p@h:5432/db",
		"postgresql://u@h/db":      "pgx5://u@h/db",
		"pgx://h/db":               "pgx5://h/db",
		"pgx5://already/converted": "pgx5://already/converted",
	}
	for in, want := range cases {
		if got := MigrationURL(in); got != want {
			t.Errorf("MigrationURL(%q) = %q, want %q", in, got, want)
		}
	}
}
