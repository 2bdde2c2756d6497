// Package intake imports guest and host registrations from CUE files.
//
// Records are validated against an embedded schema, normalized, and
// upserted in one transaction. An import either applies every record or
// none of them.
package intake

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/dinnermatch/internal/clock"
	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/scoring"
	"github.com/roach88/dinnermatch/internal/store"
)

//go:embed schema.cue
var schemaSource string

// Batch is the decoded content of an import directory, sorted by id.
type Batch struct {
	Guests   []domain.Guest
	Hosts    []domain.Host
	Warnings []string
}

// Report summarizes an applied import.
type Report struct {
	GuestsCreated int      `json:"guests_created"`
	GuestsUpdated int      `json:"guests_updated"`
	HostsCreated  int      `json:"hosts_created"`
	HostsUpdated  int      `json:"hosts_updated"`
	Files         int      `json:"files"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Importer applies batches to a store.
type Importer struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithClock sets the time source for created_at and updated_at.
func WithClock(c clock.Clock) Option {
	return func(i *Importer) { i.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) {
		if l != nil {
			i.logger = l
		}
	}
}

// New creates an Importer writing to st.
func New(st *store.Store, opts ...Option) *Importer {
	i := &Importer{store: st, clock: clock.Real{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import loads every .cue file under dir and upserts the records.
func (i *Importer) Import(ctx context.Context, dir string) (Report, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return Report{}, err
	}
	batch, err := Load(files...)
	if err != nil {
		return Report{}, err
	}
	rep, err := i.Apply(ctx, batch)
	rep.Files = len(files)
	return rep, err
}

// Apply upserts a decoded batch. Existing rows keep their created_at and
// no-show count. A host whose seats would drop below its committed seats
// fails the whole batch.
func (i *Importer) Apply(ctx context.Context, b Batch) (Report, error) {
	now := i.clock.Now()
	rep := Report{Warnings: b.Warnings}

	err := i.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, h := range b.Hosts {
			prev, err := tx.GetHost(ctx, h.ID)
			existed := err == nil
			if err != nil && !domain.IsNotFound(err) {
				return err
			}
			if existed {
				committed, err := tx.Committed(ctx, h.ID)
				if err != nil {
					return err
				}
				if h.Seats < committed {
					return domain.Validationf("host %s: seats_available %d is below %d committed seats", h.ID, h.Seats, committed)
				}
				h.CreatedAt = prev.CreatedAt
				rep.HostsUpdated++
			} else {
				h.CreatedAt = now
				rep.HostsCreated++
			}
			h.UpdatedAt = now
			if err := tx.UpsertHost(ctx, h); err != nil {
				return err
			}
			if err := tx.LogActivity(ctx, domain.Activity{
				Type:       domain.ActivityHostImported,
				Actor:      domain.ActorSystem,
				TargetType: "host",
				TargetID:   h.ID,
				Details:    map[string]string{"created": strconv.FormatBool(!existed), "seats": strconv.Itoa(h.Seats)},
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}

		for _, g := range b.Guests {
			_, err := tx.GetGuest(ctx, g.ID)
			existed := err == nil
			if err != nil && !domain.IsNotFound(err) {
				return err
			}
			if existed {
				rep.GuestsUpdated++
			} else {
				rep.GuestsCreated++
			}
			if g.CreatedAt.IsZero() {
				g.CreatedAt = now
			}
			g.UpdatedAt = now
			if err := tx.UpsertGuest(ctx, g); err != nil {
				return err
			}
			if err := tx.LogActivity(ctx, domain.Activity{
				Type:       domain.ActivityGuestImported,
				Actor:      domain.ActorSystem,
				TargetType: "guest",
				TargetID:   g.ID,
				Details:    map[string]string{"created": strconv.FormatBool(!existed), "party_size": strconv.Itoa(g.PartySize)},
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	for _, w := range rep.Warnings {
		i.logger.Warn("import warning", "warning", w)
	}
	i.logger.Info("import applied",
		"guests_created", rep.GuestsCreated, "guests_updated", rep.GuestsUpdated,
		"hosts_created", rep.HostsCreated, "hosts_updated", rep.HostsUpdated)
	return rep, nil
}

// FindCUEFiles returns every .cue file under dir in lexical order.
func FindCUEFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, domain.Validationf("import directory %s: %v", dir, err)
	}
	if !info.IsDir() {
		return nil, domain.Validationf("not a directory: %s", dir)
	}
	var files []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, domain.Validationf("no .cue files found in %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// Load validates files against the registration schema and decodes them.
func Load(files ...string) (Batch, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return Batch{}, fmt.Errorf("compile schema: %w", err)
	}
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return Batch{}, fmt.Errorf("read %s: %w", f, err)
		}
		fv := ctx.CompileBytes(src, cue.Filename(f))
		if err := fv.Err(); err != nil {
			return Batch{}, cueError(err)
		}
		v = v.Unify(fv)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Batch{}, cueError(err)
	}

	var b Batch
	guests, err := fields(v, "guest")
	if err != nil {
		return Batch{}, err
	}
	for _, f := range guests {
		var rec guestRecord
		if err := f.value.Decode(&rec); err != nil {
			return Batch{}, cueError(err)
		}
		g, warn, err := rec.toGuest(f.id)
		if err != nil {
			return Batch{}, err
		}
		b.Guests = append(b.Guests, g)
		b.Warnings = append(b.Warnings, warn...)
	}

	hosts, err := fields(v, "host")
	if err != nil {
		return Batch{}, err
	}
	for _, f := range hosts {
		var rec hostRecord
		if err := f.value.Decode(&rec); err != nil {
			return Batch{}, cueError(err)
		}
		h, warn := rec.toHost(f.id)
		b.Hosts = append(b.Hosts, h)
		b.Warnings = append(b.Warnings, warn...)
	}
	return b, nil
}

type field struct {
	id    string
	value cue.Value
}

func fields(v cue.Value, name string) ([]field, error) {
	sub := v.LookupPath(cue.ParsePath(name))
	if !sub.Exists() {
		return nil, nil
	}
	iter, err := sub.Fields()
	if err != nil {
		return nil, cueError(err)
	}
	var out []field
	for iter.Next() {
		out = append(out, field{id: iter.Label(), value: iter.Value()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

// cueError reports the first CUE error with its file position.
func cueError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return domain.Validationf("%v", err)
	}
	first := errs[0]
	if pos := cueerrors.Positions(first); len(pos) > 0 && pos[0].IsValid() {
		p := pos[0]
		return domain.Validationf("%s:%d:%d: %v", p.Filename(), p.Line(), p.Column(), first)
	}
	return domain.Validationf("%v", first)
}

type guestRecord struct {
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	Phone         string      `json:"phone"`
	PartySize     int         `json:"party_size"`
	Neighborhood  string      `json:"neighborhood"`
	MaxTravelTime int         `json:"max_travel_time"`
	Languages     []string    `json:"languages"`
	Kosher        string      `json:"kosher_requirement"`
	Contribution  string      `json:"contribution_range"`
	Vibe          domain.Vibe `json:"vibe"`
	IsFlagged     bool        `json:"is_flagged"`
	RegisteredAt  string      `json:"registered_at"`
}

func (r guestRecord) toGuest(id string) (domain.Guest, []string, error) {
	hood, warn := neighborhood("guest", id, r.Neighborhood)
	g := domain.Guest{
		ID:            id,
		Name:          cleanText(r.Name),
		Email:         strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:         strings.TrimSpace(r.Phone),
		PartySize:     r.PartySize,
		Neighborhood:  hood,
		MaxTravelTime: r.MaxTravelTime,
		Languages:     cleanLanguages(r.Languages),
		Kosher:        domain.Requirement(r.Kosher),
		Contribution:  domain.Contribution(r.Contribution),
		Vibe:          r.Vibe,
		IsFlagged:     r.IsFlagged,
	}
	if r.RegisteredAt != "" {
		at, err := time.Parse(time.RFC3339Nano, r.RegisteredAt)
		if err != nil {
			return domain.Guest{}, nil, domain.Validationf("guest %s: registered_at: %v", id, err)
		}
		g.CreatedAt = at.UTC()
	}
	return g, warn, nil
}

type hostRecord struct {
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Phone        string      `json:"phone"`
	Address      string      `json:"address"`
	Neighborhood string      `json:"neighborhood"`
	Seats        int         `json:"seats_available"`
	Languages    []string    `json:"languages"`
	Kosher       string      `json:"kosher_level"`
	Contribution string      `json:"contribution_preference"`
	Vibe         domain.Vibe `json:"vibe"`
	Tagline      string      `json:"tagline"`
	PrivateNotes string      `json:"private_notes"`
}

func (r hostRecord) toHost(id string) (domain.Host, []string) {
	hood, warn := neighborhood("host", id, r.Neighborhood)
	return domain.Host{
		ID:           id,
		Name:         cleanText(r.Name),
		Email:        strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:        strings.TrimSpace(r.Phone),
		Address:      cleanText(r.Address),
		Neighborhood: hood,
		Seats:        r.Seats,
		Languages:    cleanLanguages(r.Languages),
		Kosher:       domain.KosherLevel(r.Kosher),
		Contribution: domain.Contribution(r.Contribution),
		Vibe:         r.Vibe,
		Tagline:      strings.TrimSpace(r.Tagline),
		PrivateNotes: strings.TrimSpace(r.PrivateNotes),
	}, warn
}

// neighborhood maps name onto the travel table's spelling. Unknown names
// are kept and scored with the default travel time.
func neighborhood(kind, id, name string) (string, []string) {
	canonical, ok := scoring.CanonicalNeighborhood(name)
	if ok {
		return canonical, nil
	}
	return cleanText(name), []string{fmt.Sprintf("%s %s: unknown neighborhood %q, travel time defaults to %d minutes",
		kind, id, name, scoring.UnknownTravelMinutes)}
}

func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// cleanLanguages composes, title-cases and de-duplicates language names,
// keeping first occurrence order.
func cleanLanguages(in []string) []string {
	title := cases.Title(language.English)
	fold := cases.Fold()
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, l := range in {
		l = cleanText(l)
		key := fold.String(l)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, title.String(l))
	}
	return out
}
