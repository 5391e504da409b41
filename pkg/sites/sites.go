// Package sites keeps the directory of sites this node has heard from.
//
// A Directory is not safe for concurrent use. It is owned by the event
// dispatcher, which is its only writer.
package sites

import (
	"sort"
	"time"

	"github.com/udit2303/sitegossip/pkg/util"
)

// Record is what the directory knows about one site.
type Record struct {
	SiteName string
	LastSeen time.Time
}

// Directory maps site names to records.
type Directory struct {
	sites map[string]*Record
	now   func() time.Time
}

// Option configures a Directory.
type Option func(*Directory)

// WithClock overrides time.Now, used to stamp LastSeen.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		d.now = now
	}
}

// New returns an empty directory.
func New(opts ...Option) *Directory {
	d := &Directory{
		sites: make(map[string]*Record),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register inserts name or refreshes its LastSeen.
func (d *Directory) Register(name string) {
	now := d.now()
	if r, ok := d.sites[name]; ok {
		r.LastSeen = now
		return
	}
	d.sites[name] = &Record{SiteName: name, LastSeen: now}
}

// Get returns the record for name.
func (d *Directory) Get(name string) (Record, bool) {
	r, ok := d.sites[name]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Len returns the number of distinct sites ever registered.
func (d *Directory) Len() int {
	return len(d.sites)
}

// List returns a copy of all records sorted by site name.
func (d *Directory) List() []Record {
	out := make([]Record, 0, len(d.sites))
	for _, r := range d.sites {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SiteName < out[j].SiteName
	})
	return out
}

// Log writes the current listing, one line per site.
func (d *Directory) Log(log *util.Logger) {
	records := d.List()
	log.Info("Known sites", "count", len(records))
	for _, r := range records {
		log.Info("Site", "site", r.SiteName, "last_seen", r.LastSeen.Format(time.RFC3339))
	}
}
