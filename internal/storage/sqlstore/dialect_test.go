package sqlstore

import "testing"

func TestRebind(t *testing.T) {
	query := `INSERT INTO chats (id, user_id) VALUES (?, ?)`

	if got := SQLite.Rebind(query); got != query {
		t.Errorf("SQLite.Rebind() = %q, want unchanged", got)
	}

	want := `INSERT INTO chats (id, user_id) VALUES ($1, $2)`
	if got := Postgres.Rebind(query); got != want {
		t.Errorf("Postgres.Rebind() = %q, want %q", got, want)
	}
}
