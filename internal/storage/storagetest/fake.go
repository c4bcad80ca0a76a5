// Package storagetest provides an in-memory storage.Repository that records
// every call, for tests of packages that drive a repository.
package storagetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"destsync/internal/record"
	"destsync/internal/storage"
)

// Op is one recorded repository call.
type Op struct {
	Name  string // create_schema, create_table, tx, insert, exec
	Table string
	SQL   []string
	Rows  int
}

func (o Op) String() string {
	switch o.Name {
	case "tx", "exec":
		return o.Name + ":" + strings.Join(o.SQL, ";")
	case "insert":
		return fmt.Sprintf("insert:%s:%d", o.Table, o.Rows)
	default:
		return o.Name + ":" + o.Table
	}
}

// Repo is a fake storage.Repository. Error fields are read under the same
// lock as the calls, so tests may set them before use only.
type Repo struct {
	KindName string

	// InsertErr fails InsertRecords for a table FQN.
	InsertErr map[string]error
	// CreateErr fails CreateTableIfNotExists for a table FQN.
	CreateErr map[string]error
	// TxErr fails every ExecuteTransaction.
	TxErr error
	// ExecErr fails Exec for statements containing the key.
	ExecErr map[string]error
	// InsertHook runs outside the lock before rows are stored; a non-nil
	// error fails the insert. Tests use it to stall or observe flushes.
	InsertHook func(ctx context.Context, fqn string, n int) error

	mu      sync.Mutex
	ops     []Op
	rows    map[string][]record.Record
	closed  bool
	schemas map[string]struct{}
	tables  map[string]struct{}
}

var _ storage.Repository = (*Repo)(nil)

// New returns an empty fake of the given kind.
func New(kind string) *Repo {
	return &Repo{
		KindName: kind,
		rows:     map[string][]record.Record{},
		schemas:  map[string]struct{}{},
		tables:   map[string]struct{}{},
	}
}

func (r *Repo) Kind() string { return r.KindName }

func (r *Repo) CreateSchemaIfNotExists(_ context.Context, schema string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, Op{Name: "create_schema", Table: schema})
	r.schemas[schema] = struct{}{}
	return nil
}

func (r *Repo) CreateTableIfNotExists(_ context.Context, t storage.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, Op{Name: "create_table", Table: t.FQN()})
	if err := r.CreateErr[t.FQN()]; err != nil {
		return err
	}
	r.tables[t.FQN()] = struct{}{}
	return nil
}

func (r *Repo) TruncateTableQuery(t storage.Table) string {
	return "TRUNCATE " + t.FQN()
}

// ExecuteTransaction records the batch; TRUNCATE statements empty the
// matching table when the batch succeeds.
func (r *Repo) ExecuteTransaction(_ context.Context, statements []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, Op{Name: "tx", SQL: append([]string(nil), statements...)})
	if r.TxErr != nil {
		return r.TxErr
	}
	for _, s := range statements {
		if fqn, ok := strings.CutPrefix(s, "TRUNCATE "); ok {
			delete(r.rows, fqn)
		}
	}
	return nil
}

func (r *Repo) InsertRecords(ctx context.Context, t storage.Table, _ int64, recs []record.Record) (int64, error) {
	if r.InsertHook != nil {
		if err := r.InsertHook(ctx, t.FQN(), len(recs)); err != nil {
			r.mu.Lock()
			r.ops = append(r.ops, Op{Name: "insert", Table: t.FQN(), Rows: len(recs)})
			r.mu.Unlock()
			return 0, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, Op{Name: "insert", Table: t.FQN(), Rows: len(recs)})
	if err := r.InsertErr[t.FQN()]; err != nil {
		return 0, err
	}
	r.rows[t.FQN()] = append(r.rows[t.FQN()], recs...)
	return int64(len(recs)), nil
}

func (r *Repo) Exec(_ context.Context, sql string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, Op{Name: "exec", SQL: []string{sql}})
	for k, err := range r.ExecErr {
		if strings.Contains(sql, k) {
			return err
		}
	}
	return nil
}

func (r *Repo) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Ops returns a copy of the recorded calls in order.
func (r *Repo) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Op(nil), r.ops...)
}

// OpNames returns the String form of every recorded call.
func (r *Repo) OpNames() []string {
	ops := r.Ops()
	out := make([]string, len(ops))
	for i, o := range ops {
		out[i] = o.String()
	}
	return out
}

// Rows returns the records currently stored in table fqn.
func (r *Repo) Rows(fqn string) []record.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]record.Record(nil), r.rows[fqn]...)
}

// Seed puts records into table fqn without recording an op.
func (r *Repo) Seed(fqn string, recs ...record.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[fqn] = append(r.rows[fqn], recs...)
}

// HasTable reports whether CreateTableIfNotExists succeeded for fqn.
func (r *Repo) HasTable(fqn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tables[fqn]
	return ok
}

// Closed reports whether Close was called.
func (r *Repo) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// MigratingRepo is a Repo that also implements storage.Migrator.
type MigratingRepo struct {
	*Repo
	MigrateErr error

	migrations int
}

var _ storage.Migrator = (*MigratingRepo)(nil)

func (m *MigratingRepo) Migrate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.migrations++
	m.ops = append(m.ops, Op{Name: "migrate"})
	return m.MigrateErr
}

// Migrations returns how many times Migrate ran.
func (m *MigratingRepo) Migrations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.migrations
}
