// Package dashboard describes the role dashboards: which lists each role
// sees, how their records are displayed, and which actions they offer.
package dashboard

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ohler55/ojg/jp"
	"gopkg.in/yaml.v3"

	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
)

//go:embed lists.yaml
var builtinLists []byte

// Registry is the set of role dashboards.
type Registry struct {
	Roles []*Role `yaml:"roles"`
}

// Role is one dashboard and its ordered tabs.
type Role struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title"`
	Tabs  []*Tab `yaml:"tabs"`
}

// Tab is one list of a dashboard.
type Tab struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Noun        string   `yaml:"noun"`
	Endpoint    string   `yaml:"endpoint"`
	ItemsPath   string   `yaml:"items_path"`
	PageSize    int      `yaml:"page_size"`
	SearchParam string   `yaml:"search_param"`
	Filters     []Filter `yaml:"filters"`
	Columns     []Column `yaml:"columns"`
	Stats       []Stat   `yaml:"stats"`
	Actions     []Action `yaml:"actions"`
}

// Filter is a query parameter the user can set.
type Filter struct {
	Name    string   `yaml:"name"`
	Label   string   `yaml:"label"`
	Options []string `yaml:"options"`
	// Field is the record field the development backend matches, when it
	// differs from Name. Range "from" or "to" turns the filter into a date bound.
	Field string `yaml:"field"`
	Range string `yaml:"range"`
}

// RecordField returns the record field the filter applies to.
func (f Filter) RecordField() string {
	if f.Field != "" {
		return f.Field
	}
	return f.Name
}

// Column maps a value of each record to a table column.
type Column struct {
	// Key is a JSONPath relative to the record ("$.etablissement.nom").
	Key    string `yaml:"key"`
	Title  string `yaml:"title"`
	Format Format `yaml:"format"`

	expr jp.Expr
}

// Stat is one summary counter shown above a list.
type Stat struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// Action is a mutating call offered on each record.
type Action struct {
	Name    string `yaml:"name"`
	Label   string `yaml:"label"`
	Method  string `yaml:"method"`
	Path    string `yaml:"path"`
	Confirm string `yaml:"confirm"`
	// Prompt asks for a value sent as BodyField of a JSON body.
	Prompt    string `yaml:"prompt"`
	BodyField string `yaml:"body_field"`
	// Effect tells the development backend what the action does to a record.
	Effect Effect `yaml:"effect"`
}

// Effect is the record change a development backend applies for an action.
type Effect struct {
	Delete bool           `yaml:"delete"`
	Set    map[string]any `yaml:"set"`
}

// LoadRegistry reads the registry at path, or the built-in one when path is
// empty. Tabs without a page size get defaultPageSize.
func LoadRegistry(path string, defaultPageSize int) (*Registry, error) {
	data := builtinLists
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read lists file: %w", err)
		}
	}
	return ParseRegistry(data, defaultPageSize)
}

// ParseRegistry decodes and validates a YAML registry.
func ParseRegistry(data []byte, defaultPageSize int) (*Registry, error) {
	reg := &Registry{}
	if err := yaml.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("parse lists: %w", err)
	}
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	if err := reg.prepare(defaultPageSize); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) prepare(defaultPageSize int) error {
	if len(r.Roles) == 0 {
		return fmt.Errorf("lists: no role defined")
	}
	roles := map[string]bool{}
	for _, role := range r.Roles {
		if role.Name == "" {
			return fmt.Errorf("lists: role without a name")
		}
		if roles[role.Name] {
			return fmt.Errorf("lists: duplicate role %q", role.Name)
		}
		roles[role.Name] = true

		tabs := map[string]bool{}
		for _, tab := range role.Tabs {
			where := fmt.Sprintf("lists: %s/%s", role.Name, tab.ID)
			if tab.ID == "" || tab.Endpoint == "" {
				return fmt.Errorf("lists: %s: tab needs an id and an endpoint", role.Name)
			}
			if tabs[tab.ID] {
				return fmt.Errorf("%s: duplicate tab", where)
			}
			tabs[tab.ID] = true

			if tab.PageSize <= 0 {
				tab.PageSize = defaultPageSize
			}
			if tab.ItemsPath == "" {
				tab.ItemsPath = listing.DefaultItemsPath
			}
			if _, err := jp.ParseString(tab.ItemsPath); err != nil {
				return fmt.Errorf("%s: items_path: %w", where, err)
			}
			if tab.SearchParam == "" {
				tab.SearchParam = listing.DefaultSearchParam
			}
			if tab.Title == "" {
				tab.Title = tab.ID
			}
			for _, f := range tab.Filters {
				if f.Name == "" {
					return fmt.Errorf("%s: filter without a name", where)
				}
				if f.Range != "" && f.Range != "from" && f.Range != "to" {
					return fmt.Errorf("%s: filter %q: range must be from or to", where, f.Name)
				}
			}
			for i := range tab.Columns {
				col := &tab.Columns[i]
				expr, err := jp.ParseString(col.Key)
				if err != nil {
					return fmt.Errorf("%s: column %q: %w", where, col.Key, err)
				}
				col.expr = expr
				if !col.Format.valid() {
					return fmt.Errorf("%s: column %q: unknown format %q", where, col.Key, col.Format)
				}
			}
			for i := range tab.Actions {
				a := &tab.Actions[i]
				if a.Name == "" || !strings.Contains(a.Path, "{id}") {
					return fmt.Errorf("%s: action %q needs a name and an {id} path", where, a.Name)
				}
				if a.Method == "" {
					a.Method = "POST"
				}
				a.Method = strings.ToUpper(a.Method)
				if a.Label == "" {
					a.Label = a.Name
				}
			}
		}
	}
	return nil
}

// Role returns the named dashboard.
func (r *Registry) Role(name string) (*Role, error) {
	for _, role := range r.Roles {
		if role.Name == name {
			return role, nil
		}
	}
	return nil, apperr.NewNotFound("role", name)
}

// RoleNames returns the dashboards in registry order.
func (r *Registry) RoleNames() []string {
	names := make([]string, len(r.Roles))
	for i, role := range r.Roles {
		names[i] = role.Name
	}
	return names
}

// Tab returns the tab with the given id.
func (r *Role) Tab(id string) (*Tab, error) {
	for _, tab := range r.Tabs {
		if tab.ID == id {
			return tab, nil
		}
	}
	return nil, apperr.NewNotFound("tab", r.Name+"/"+id)
}

// Source returns the endpoint description used by a list controller.
func (t *Tab) Source() listing.Source {
	return listing.Source{
		Endpoint:    t.Endpoint,
		ItemsPath:   t.ItemsPath,
		SearchParam: t.SearchParam,
		PageSize:    t.PageSize,
		Noun:        t.Noun,
	}
}

// Filter returns the named filter.
func (t *Tab) Filter(name string) (Filter, bool) {
	for _, f := range t.Filters {
		if f.Name == name {
			return f, true
		}
	}
	return Filter{}, false
}

// Action returns the named action.
func (t *Tab) Action(name string) (Action, error) {
	for _, a := range t.Actions {
		if a.Name == name {
			return a, nil
		}
	}
	return Action{}, apperr.NewNotFound("action", t.ID+"/"+name)
}

// Resolve returns the action path for one record id.
func (a Action) Resolve(id string) string {
	return strings.ReplaceAll(a.Path, "{id}", url.PathEscape(id))
}

// Body returns the JSON body sent with the action, or nil.
func (a Action) Body(input string) map[string]any {
	if a.BodyField == "" {
		return nil
	}
	return map[string]any{a.BodyField: input}
}
