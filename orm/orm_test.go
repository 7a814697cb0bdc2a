package orm

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/entitybug/generator"
	"github.com/example/entitybug/processor"
)

const generatedPkg = "github.com/example/entitybug/processor/testdata/generated"

func TestSplitClassName(t *testing.T) {
	testCases := []struct {
		in      string
		pkg     string
		name    string
		invalid bool
	}{
		{in: "github.com/a/b.MyTestGeneratedEntity", pkg: "github.com/a/b", name: "MyTestGeneratedEntity"},
		{in: "app.Order", pkg: "app", name: "Order"},
		{in: "github.com/a/b", invalid: true},
		{in: "github.com/a/b.", invalid: true},
		{in: ".Order", invalid: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			pkg, name, ok := SplitClassName(tc.in)
			if tc.invalid {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.pkg, pkg)
			assert.Equal(t, tc.name, name)
		})
	}
}

func TestArtifactNotFoundError(t *testing.T) {
	var err error = &ArtifactNotFoundError{ClassName: "app.Order", Scope: "tool"}
	assert.True(t, errors.Is(err, ErrArtifactNotFound))
	assert.Equal(t, "artifact for app.Order not found in tool scope", err.Error())
	assert.False(t, errors.Is(errors.New("other"), ErrArtifactNotFound))
}

func TestModuleResolver(t *testing.T) {
	r := ModuleResolver("", false, "../processor/testdata/generated")
	assert.Equal(t, "module", r.Scope())

	data, err := r.ReadArtifact(context.Background(), generatedPkg+".MyTestGeneratedEntity")
	require.NoError(t, err)
	assert.Contains(t, string(data), "type MyTestGeneratedEntity struct")

	data, err = r.ReadArtifact(context.Background(), generatedPkg+".MyService")
	require.NoError(t, err)
	assert.Contains(t, string(data), "type MyService struct")

	_, err = r.ReadArtifact(context.Background(), generatedPkg+".Missing")
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	_, err = r.ReadArtifact(context.Background(), "not a class")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrArtifactNotFound))
}

func TestModuleResolver_OutputDir(t *testing.T) {
	const appPkg = "github.com/example/entitybug/processor/testdata/app"
	out := t.TempDir()
	src, err := generator.Generate(appPkg, "MyTest", "")
	require.NoError(t, err)
	dir := filepath.Join(out, filepath.FromSlash(appPkg))
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mytest_generated_entity.go"), src, 0644))

	_, err = ModuleResolver("", false, "../processor/testdata/app").ReadArtifact(context.Background(), appPkg+".MyTestGeneratedEntity")
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	r := ModuleResolver("", false, "../processor/testdata/app")
	r.OutputDir = out
	data, err := r.ReadArtifact(context.Background(), appPkg+".MyTestGeneratedEntity")
	require.NoError(t, err)
	assert.Equal(t, src, data)

	// hand-written sources are still found in the package directory
	data, err = r.ReadArtifact(context.Background(), appPkg+".MyService")
	require.NoError(t, err)
	assert.Contains(t, string(data), "type MyService struct")
}

func TestToolResolver(t *testing.T) {
	r := ToolResolver()
	assert.Equal(t, "tool", r.Scope())

	data, err := r.ReadArtifact(context.Background(), processor.AnnotationsPackage()+".GenerateEntity")
	require.NoError(t, err)
	assert.Contains(t, string(data), "type GenerateEntity struct")

	for _, name := range []string{"MyTestGeneratedEntity", "MyService"} {
		_, err := r.ReadArtifact(context.Background(), generatedPkg+"."+name)
		require.Error(t, err)
		var nf *ArtifactNotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, generatedPkg+"."+name, nf.ClassName)
		assert.Equal(t, "tool", nf.Scope)
	}
}

func TestEnhancer(t *testing.T) {
	models := []AdditionalModel{
		NewAdditionalModel(generatedPkg+".MyTestGeneratedEntity", "<default>"),
		NewAdditionalModel(generatedPkg+".OrderGeneratedEntity", "orders-pu", "orders-pu"),
	}
	e := &Enhancer{Resolver: ModuleResolver("", false, "../processor/testdata/generated")}
	res, err := e.Enhance(context.Background(), models)
	require.NoError(t, err)
	require.Len(t, res, 2)

	columns := []Column{
		{Name: "id", Field: "ID", SQLType: "UUID", PrimaryKey: true},
		{Name: "payload", Field: "Payload", SQLType: "TEXT"},
	}
	assert.Equal(t, EntityModel{
		ClassName:        generatedPkg + ".MyTestGeneratedEntity",
		Table:            "generated_entity",
		Columns:          columns,
		PersistenceUnits: []string{"<default>"},
	}, res[0])
	assert.Equal(t, []string{"orders-pu"}, res[1].PersistenceUnits)
}

func TestEnhancer_ToolScope(t *testing.T) {
	e := &Enhancer{Resolver: ToolResolver()}
	_, err := e.Enhance(context.Background(), []AdditionalModel{
		NewAdditionalModel(generatedPkg+".MyTestGeneratedEntity", "<default>"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.Contains(t, err.Error(), "failed to enhance entity "+generatedPkg+".MyTestGeneratedEntity")
}

func TestAnalyzeEntity(t *testing.T) {
	src := `package app

// Invoice is billed.
//
// @entitybug.Table("invoices_v2")
type Invoice struct {
	Key      string ` + "`gorm:\"primaryKey;column:invoice_key\"`" + `
	Amount   float64 ` + "`gorm:\"not null\"`" + `
	Paid     bool
	internal int
	Scratch  []byte ` + "`gorm:\"-\"`" + `
}

type LineItem struct {
	ID       int64
	HTTPCode int
}

type Alias = string
`
	m, err := AnalyzeEntity("app.Invoice", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "invoices_v2", m.Table)
	assert.Equal(t, []Column{
		{Name: "invoice_key", Field: "Key", SQLType: "TEXT", PrimaryKey: true},
		{Name: "amount", Field: "Amount", SQLType: "REAL", NotNull: true},
		{Name: "paid", Field: "Paid", SQLType: "INTEGER"},
	}, m.Columns)

	m, err = AnalyzeEntity("app.LineItem", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "line_items", m.Table)
	pk, ok := m.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, "id", pk.Name)
	assert.Equal(t, "http_code", m.Columns[1].Name)

	_, err = AnalyzeEntity("app.Alias", []byte(src))
	assert.ErrorContains(t, err, "not a struct")
	_, err = AnalyzeEntity("app.Missing", []byte(src))
	assert.ErrorContains(t, err, "not declared")
	_, err = AnalyzeEntity("app.Invoice", []byte("package"))
	assert.Error(t, err)
}

func TestMapResolver(t *testing.T) {
	r := MapResolver{"app.Account": []byte("package app\n\ntype Account struct{ ID string }\n")}
	res, err := (&Enhancer{Resolver: r}).Enhance(context.Background(), []AdditionalModel{NewAdditionalModel("app.Account", "pu")})
	require.NoError(t, err)
	assert.Equal(t, "accounts", res[0].Table)

	_, err = r.ReadArtifact(context.Background(), "app.B")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestDriversRegistered(t *testing.T) {
	assert.Contains(t, sql.Drivers(), DriverSQLite)
	assert.Contains(t, sql.Drivers(), DriverSQLite3)

	_, err := NewStore(StoreConfig{Driver: "postgres"})
	assert.Error(t, err)
}

func entityModels() []EntityModel {
	columns := []Column{
		{Name: "id", Field: "ID", SQLType: "UUID", PrimaryKey: true},
		{Name: "payload", Field: "Payload", SQLType: "TEXT"},
	}
	return []EntityModel{
		{ClassName: "app.MyTestGeneratedEntity", Table: "generated_entity", Columns: columns, PersistenceUnits: []string{"<default>"}},
		{ClassName: "app.OrderGeneratedEntity", Table: "generated_entity", Columns: columns, PersistenceUnits: []string{"orders-pu"}},
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(StoreConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx, entityModels()))
	// migrating again is harmless
	require.NoError(t, s.Migrate(ctx, entityModels()))
	assert.Equal(t, []string{"<default>", "orders-pu"}, s.Units())

	id, err := s.Insert(ctx, "<default>", "app.MyTestGeneratedEntity", map[string]any{"Payload": "hello"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	_, err = s.Insert(ctx, "<default>", "app.MyTestGeneratedEntity", nil)
	require.NoError(t, err)

	n, err := s.Count(ctx, "<default>", "app.MyTestGeneratedEntity")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.Count(ctx, "orders-pu", "app.OrderGeneratedEntity")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	db, err := s.DB("<default>")
	require.NoError(t, err)
	var payload string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT payload FROM generated_entity WHERE id = ?`, id.String()).Scan(&payload))
	assert.Equal(t, "hello", payload)

	given := uuid.New()
	id, err = s.Insert(ctx, "orders-pu", "app.OrderGeneratedEntity", map[string]any{"ID": given, "Payload": "order"})
	require.NoError(t, err)
	assert.Equal(t, given, id)
	id, err = s.Insert(ctx, "orders-pu", "app.OrderGeneratedEntity", map[string]any{"ID": "6ba7b810-9dad-11d1-80b4-00c04fd430c8"})
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", id.String())
	_, err = s.Insert(ctx, "orders-pu", "app.OrderGeneratedEntity", map[string]any{"ID": "not-a-uuid"})
	assert.ErrorContains(t, err, "invalid ID")
	_, err = s.Insert(ctx, "orders-pu", "app.OrderGeneratedEntity", map[string]any{"ID": given})
	assert.Error(t, err, "primary keys are unique")
	n, err = s.Count(ctx, "orders-pu", "app.OrderGeneratedEntity")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Insert(ctx, "orders-pu", "app.MyTestGeneratedEntity", nil)
	assert.ErrorContains(t, err, "not managed in persistence unit orders-pu")
	_, err = s.Insert(ctx, "<default>", "app.MyTestGeneratedEntity", map[string]any{"Bogus": 1})
	assert.ErrorContains(t, err, "has no field Bogus")
	_, err = s.Insert(ctx, "<default>", "app.Unknown", nil)
	assert.ErrorContains(t, err, "not migrated")

	require.NoError(t, s.Close())
	assert.Empty(t, s.Units())
}

func TestStore_MigrateWithoutUnit(t *testing.T) {
	s, err := NewStore(StoreConfig{})
	require.NoError(t, err)
	models := entityModels()
	models[0].PersistenceUnits = nil
	assert.Error(t, s.Migrate(context.Background(), models))
}
