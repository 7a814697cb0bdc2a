package deployment

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/entitybug/build"
	"github.com/example/entitybug/generator"
	"github.com/example/entitybug/index"
	"github.com/example/entitybug/orm"
	"github.com/example/entitybug/processor"
)

const (
	appPkg       = "github.com/example/entitybug/processor/testdata/app"
	generatedPkg = "github.com/example/entitybug/processor/testdata/generated"
)

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func register(t *testing.T, idx index.Index) ([]orm.AdditionalModel, string) {
	t.Helper()
	logger, buf := testLogger()
	var models build.Producer[orm.AdditionalModel]
	RegisterGeneratedEntities(idx, &models, logger)
	items := models.Items()
	sort.Slice(items, func(i, j int) bool { return items[i].ClassName < items[j].ClassName })
	return items, buf.String()
}

func marker(className string, values map[string]string) index.AnnotationInstance {
	return index.AnnotationInstance{
		Name:   index.GeneratedEntityMarker,
		Target: index.ClassInfo{Name: className},
		Values: values,
	}
}

func TestFeature(t *testing.T) {
	assert.Equal(t, build.FeatureItem{Name: "entity-bug"}, Feature())
}

func TestRegisterGeneratedEntities(t *testing.T) {
	testCases := []struct {
		name   string
		values map[string]string
		pu     string
	}{
		{name: "empty unit", values: map[string]string{"Name": "MyTest", "PersistenceUnit": ""}, pu: "<default>"},
		{name: "absent unit", values: map[string]string{"Name": "MyTest"}, pu: "<default>"},
		{name: "named unit", values: map[string]string{"Name": "Order", "PersistenceUnit": "orders-pu"}, pu: "orders-pu"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			className := "com/example/bug/app." + tc.values["Name"] + "GeneratedEntity"
			models, log := register(t, index.New(marker(className, tc.values)))
			assert.Equal(t, []orm.AdditionalModel{{ClassName: className, PersistenceUnits: []string{tc.pu}}}, models)
			assert.Contains(t, log, "[entity-bug] Registering "+className+" in PU '"+tc.pu+"' via AdditionalModel")
			assert.Equal(t, 1, strings.Count(log, "\n"))
		})
	}
}

func TestRegisterGeneratedEntities_NoMarkers(t *testing.T) {
	idx := index.New(index.AnnotationInstance{
		Name:   index.GenerateEntity,
		Target: index.ClassInfo{Name: "com/example/bug/app.MyService"},
		Values: map[string]string{"Value": "MyTest"},
	})
	models, log := register(t, idx)
	assert.Empty(t, models)
	assert.Empty(t, log)
}

func TestRegisterGeneratedEntities_FromScan(t *testing.T) {
	idx, err := index.Scan(context.Background(), processor.Config{
		Patterns: []string{"../processor/testdata/generated"},
	})
	require.NoError(t, err)

	models, _ := register(t, idx)
	assert.Equal(t, []orm.AdditionalModel{
		{ClassName: generatedPkg + ".MyTestGeneratedEntity", PersistenceUnits: []string{"<default>"}},
		{ClassName: generatedPkg + ".OrderGeneratedEntity", PersistenceUnits: []string{"orders-pu"}},
	}, models)
}

func TestRegisterGeneratedEntities_PositionalMarker(t *testing.T) {
	idx, err := index.Scan(context.Background(), processor.Config{
		Patterns: []string{"../processor/testdata/positional"},
	})
	require.NoError(t, err)

	const pkg = "github.com/example/entitybug/processor/testdata/positional"
	models, log := register(t, idx)
	assert.Equal(t, []orm.AdditionalModel{
		{ClassName: pkg + ".MyTestGeneratedEntity", PersistenceUnits: []string{"<default>"}},
		{ClassName: pkg + ".OrderGeneratedEntity", PersistenceUnits: []string{"orders-pu"}},
	}, models)
	assert.Contains(t, log, "Registering "+pkg+".OrderGeneratedEntity in PU 'orders-pu'")
}

func TestRegisterGeneratedEntities_AfterGeneration(t *testing.T) {
	out := t.TempDir()
	cfg := processor.Config{
		Patterns:      []string{"../processor/testdata/app"},
		Processors:    []processor.Processor{generator.Processor},
		OutputFactory: processor.DirOutputFactory(out),
	}
	require.NoError(t, cfg.Execute(context.Background()))

	idx, err := index.FromManifests(out)
	require.NoError(t, err)
	models, log := register(t, idx)
	assert.Equal(t, []orm.AdditionalModel{
		{ClassName: appPkg + ".MyTestGeneratedEntity", PersistenceUnits: []string{"<default>"}},
		{ClassName: appPkg + ".OrderGeneratedEntity", PersistenceUnits: []string{"orders-pu"}},
	}, models)
	assert.Contains(t, log, "Registering "+appPkg+".MyTestGeneratedEntity in PU '<default>'")
	assert.Contains(t, log, "Registering "+appPkg+".OrderGeneratedEntity in PU 'orders-pu'")
}

func TestSteps(t *testing.T) {
	idx, err := index.FromManifests("../processor/testdata/generated")
	require.NoError(t, err)
	logger, _ := testLogger()

	var features build.Producer[build.FeatureItem]
	var enhanced []orm.EntityModel
	resolver := orm.ModuleResolver("", false, "../processor/testdata/generated")
	p := build.Pipeline{Steps: Steps(idx, resolver, logger, &features, &enhanced), Logger: logger}
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []build.FeatureItem{Feature()}, features.Items())
	require.Len(t, enhanced, 2)
	for _, m := range enhanced {
		assert.Equal(t, "generated_entity", m.Table)
	}
}

func TestSteps_ToolScope(t *testing.T) {
	idx, err := index.FromManifests("../processor/testdata/generated")
	require.NoError(t, err)
	logger, log := testLogger()

	var features build.Producer[build.FeatureItem]
	p := build.Pipeline{Steps: Steps(idx, orm.ToolResolver(), logger, &features, nil), Logger: logger}
	err = p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, orm.ErrArtifactNotFound)

	var stepErr *build.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "enhance-entities", stepErr.Step)

	// registration itself succeeded before the enhancement failed
	assert.Contains(t, log.String(), "Registering "+generatedPkg+".MyTestGeneratedEntity in PU '<default>'")
	assert.Contains(t, log.String(), "Registering "+generatedPkg+".OrderGeneratedEntity in PU 'orders-pu'")
}
