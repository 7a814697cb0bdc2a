// Package deployment contains the build steps of the entity-bug feature. The
// steps discover generated entities in the index and register them with the
// data-mapping layer.
package deployment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/entitybug"
	"github.com/example/entitybug/build"
	"github.com/example/entitybug/index"
	"github.com/example/entitybug/orm"
)

// FeatureName is the name of the feature the steps install.
const FeatureName = "entity-bug"

// Feature returns the feature item announced by the build.
func Feature() build.FeatureItem {
	return build.FeatureItem{Name: FeatureName}
}

// RegisterGeneratedEntities produces an additional model for every type in idx
// that carries the generated-entity marker. The marker's persistence unit is
// used, or entitybug.DefaultPersistenceUnit if it is absent or empty. Nothing
// is produced when no type carries the marker.
func RegisterGeneratedEntities(idx index.Index, models *build.Producer[orm.AdditionalModel], logger *slog.Logger) {
	for _, anno := range idx.Annotations(index.GeneratedEntityMarker) {
		className := anno.Target.Name
		pu, _ := anno.Value("PersistenceUnit")
		pu = entitybug.ResolvePersistenceUnit(pu)

		logger.Info(fmt.Sprintf("[%s] Registering %s in PU '%s' via AdditionalModel", FeatureName, className, pu),
			"class", className, "persistenceUnit", pu)

		models.Produce(orm.NewAdditionalModel(className, pu))
	}
}

// Steps wires the feature into a build. The returned steps announce the
// feature, register generated entities found in idx and enhance the registered
// models using resolver. The enhanced models are stored into enhanced, if it
// is not nil.
func Steps(idx index.Index, resolver orm.ArtifactResolver, logger *slog.Logger, features *build.Producer[build.FeatureItem], enhanced *[]orm.EntityModel) []build.Step {
	var models build.Producer[orm.AdditionalModel]
	return []build.Step{
		{
			Name: "feature",
			Run: func(context.Context) error {
				features.Produce(Feature())
				return nil
			},
		},
		{
			Name: "register-generated-entities",
			Run: func(context.Context) error {
				RegisterGeneratedEntities(idx, &models, logger)
				return nil
			},
		},
		{
			Name: "enhance-entities",
			Run: func(ctx context.Context) error {
				e := &orm.Enhancer{Resolver: resolver, Logger: logger}
				res, err := e.Enhance(ctx, models.Items())
				if err != nil {
					return err
				}
				if enhanced != nil {
					*enhanced = res
				}
				return nil
			},
		},
	}
}
