package stub

import (
	"crypto/rand"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	"github.com/croire045-rgb/collecte-plateform/internal/db"
)

//go:embed demo.json
var demoSeed []byte

// Seed is the initial content of the development backend, keyed by
// "role/tab".
type Seed struct {
	Lists map[string]SeedList `json:"lists"`
}

// SeedList is the content of one list.
type SeedList struct {
	Stats []db.StatRule    `json:"stats"`
	Items []map[string]any `json:"items"`
	// Repeat inserts the items this many times, with fresh ids after the
	// first round, to give lists enough records to paginate.
	Repeat int `json:"repeat"`
}

// LoadSeed reads a seed file, or the built-in demo data when path is empty.
func LoadSeed(path string) (*Seed, error) {
	data := demoSeed
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed: %w", err)
		}
	}
	var s Seed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &s, nil
}

// Collection names the store collection of a tab.
func Collection(role, tab string) string {
	return role + "/" + tab
}

// Apply loads the seed into the store. Stat rules are always replaced;
// records are only inserted into empty collections so a persistent database
// keeps the changes made by actions. It returns the number of records inserted.
func (s *Seed) Apply(conn *sql.DB, reg *dashboard.Registry, now time.Time) (int, error) {
	keys := make([]string, 0, len(s.Lists))
	for k := range s.Lists {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	inserted := 0
	for _, key := range keys {
		if err := checkCollection(reg, key); err != nil {
			return inserted, err
		}
		list := s.Lists[key]
		if err := db.SetStatRules(conn, key, list.Stats); err != nil {
			return inserted, fmt.Errorf("seed %s: %w", key, err)
		}

		n, err := db.Count(conn, key)
		if err != nil {
			return inserted, err
		}
		if n > 0 {
			continue
		}

		rounds := list.Repeat
		if rounds < 1 {
			rounds = 1
		}
		// Items listed first are the newest.
		created := now.Unix()
		for round := 0; round < rounds; round++ {
			for _, item := range list.Items {
				data := cloneItem(item)
				id := ""
				if round == 0 {
					id = itemID(data)
				} else {
					delete(data, "id")
				}
				if id == "" {
					id = newID(now)
				}
				rec := &db.Record{ID: id, Collection: key, Data: data, CreatedAt: created}
				if err := db.Insert(conn, rec); err != nil {
					return inserted, fmt.Errorf("seed %s/%s: %w", key, id, err)
				}
				created--
				inserted++
			}
		}
	}
	return inserted, nil
}

func checkCollection(reg *dashboard.Registry, key string) error {
	roleName, tabID, ok := strings.Cut(key, "/")
	if !ok {
		return fmt.Errorf("seed: list key %q must be role/tab", key)
	}
	role, err := reg.Role(roleName)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if _, err := role.Tab(tabID); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}

func itemID(item map[string]any) string {
	v, ok := item["id"]
	if !ok || v == nil {
		return ""
	}
	if s := dashboard.Text(v); s != dashboard.Missing {
		return s
	}
	return ""
}

func cloneItem(item map[string]any) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func newID(now time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}
