// Package directory loads the client/matter reference data that billing
// entries are classified against.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	_ "modernc.org/sqlite"
)

// ErrUnavailable is wrapped by every Load failure.
var ErrUnavailable = errors.New("directory unavailable")

type Client struct {
	Number string
	Name   string
}

type Matter struct {
	Number       string
	ClientNumber string
	Description  string
}

// Directory is an immutable snapshot of clients and matters.
type Directory struct {
	clients  *orderedmap.OrderedMap[string, Client]
	matters  *orderedmap.OrderedMap[string, Matter] // keyed by folded description
	byNumber map[string]Matter
}

func New() *Directory {
	return &Directory{
		clients:  orderedmap.New[string, Client](),
		matters:  orderedmap.New[string, Matter](),
		byNumber: make(map[string]Matter),
	}
}

// FoldDescription is the lookup key for a matter description.
func FoldDescription(s string) string {
	return strings.ToLower(s)
}

// AddClient inserts or replaces a client.
func (d *Directory) AddClient(c Client) {
	d.clients.Set(c.Number, c)
}

// AddMatter inserts a matter keyed by its folded description. A matter with
// the same folded description replaces the earlier one in place.
func (d *Directory) AddMatter(m Matter) {
	if prev, replaced := d.matters.Set(FoldDescription(m.Description), m); replaced {
		delete(d.byNumber, prev.Number)
	}
	d.byNumber[m.Number] = m
}

func (d *Directory) Client(number string) (Client, bool) {
	return d.clients.Get(number)
}

func (d *Directory) MatterByDescription(descr string) (Matter, bool) {
	return d.matters.Get(FoldDescription(descr))
}

func (d *Directory) MatterByNumber(number string) (Matter, bool) {
	m, ok := d.byNumber[number]
	return m, ok
}

// Resolve finds the matter an entry refers to: by number first, then by
// case-folded description.
func (d *Directory) Resolve(matterNumber, descr string) (Matter, bool) {
	if m, ok := d.MatterByNumber(matterNumber); ok {
		return m, true
	}
	return d.MatterByDescription(descr)
}

// Clients returns clients in insertion order.
func (d *Directory) Clients() []Client {
	out := make([]Client, 0, d.clients.Len())
	for p := d.clients.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// Matters returns matters in the traversal order of the description index.
func (d *Directory) Matters() []Matter {
	out := make([]Matter, 0, d.matters.Len())
	for p := d.matters.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

func (d *Directory) Len() (clients, matters int) {
	return d.clients.Len(), d.matters.Len()
}

// Load reads the directory from the SQLite database at path, read-only.
func Load(ctx context.Context, path string) (*Directory, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrUnavailable, path, err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", ErrUnavailable, path, err)
	}
	return loadFrom(ctx, db)
}

func loadFrom(ctx context.Context, db *sql.DB) (*Directory, error) {
	d := New()

	rows, err := db.QueryContext(ctx, `SELECT client_number, client_name FROM clients ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying clients: %v", ErrUnavailable, err)
	}
	for rows.Next() {
		var c Client
		var name sql.NullString
		if err := rows.Scan(&c.Number, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scanning client: %v", ErrUnavailable, err)
		}
		c.Name = name.String
		d.AddClient(c)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("%w: reading clients: %v", ErrUnavailable, err)
	}

	rows, err = db.QueryContext(ctx, `SELECT matter_number, client_number, matter_descr FROM matters ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying matters: %v", ErrUnavailable, err)
	}
	for rows.Next() {
		var m Matter
		var client, descr sql.NullString
		if err := rows.Scan(&m.Number, &client, &descr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scanning matter: %v", ErrUnavailable, err)
		}
		m.ClientNumber, m.Description = client.String, descr.String
		d.AddMatter(m)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("%w: reading matters: %v", ErrUnavailable, err)
	}

	return d, nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}
