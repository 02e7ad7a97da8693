package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/data/aggregates"
	"github.com/yungbote/docprov-backend/internal/data/repos"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/observability"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

// Aggregates is the write layer shared by the server and provctl.
type Aggregates struct {
	Provenance domainagg.ProvenanceTracker
	Versioning domainagg.Versioning
	Registry   domainagg.Registry
	Composite  domainagg.CompositeAggregator
	Purger     domainagg.FamilyPurger
}

func wireAggregates(theDB *gorm.DB, log *logger.Logger, cfg Config, set repos.Set, metrics *observability.Metrics) Aggregates {
	log.Info("Wiring aggregates...")
	base := aggregates.BaseDeps{
		DB:       theDB,
		Log:      log,
		Hooks:    aggregates.NewObservabilityHooks(metrics),
		CASGuard: aggregates.NewCASGuard(theDB),
	}
	prov := aggregates.NewProvenanceTracker(aggregates.ProvenanceDeps{
		Base:       base,
		Documents:  set.Documents,
		Entities:   set.ProvenanceEntities,
		Activities: set.ProvenanceActivity,
	})
	versioning := aggregates.NewVersioningAggregate(aggregates.VersioningDeps{
		Base:             base,
		Documents:        set.Documents,
		Changelog:        set.Changelog,
		Temporal:         set.TemporalMetadata,
		Experiments:      set.Experiments,
		ExperimentDocs:   set.ExperimentDocs,
		Provenance:       prov,
		MaxNumberRetries: cfg.Versioning.MaxNumberRetries,
	})
	registry := aggregates.NewRegistryAggregate(aggregates.RegistryDeps{
		Base:      base,
		Documents: set.Documents,
		Groups:    set.Groups,
		Artifacts: set.Artifacts,
	})
	comp := aggregates.NewCompositeAggregate(aggregates.CompositeDeps{
		Base:                  base,
		Versioning:            versioning,
		Provenance:            prov,
		Documents:             set.Documents,
		Changelog:             set.Changelog,
		Sources:               set.CompositeSources,
		Summaries:             set.ProcessingSummary,
		Operations:            set.Operations,
		Groups:                set.Groups,
		MaxNumberRetries:      cfg.Versioning.MaxNumberRetries,
		RecommendMinProcessed: cfg.Composite.RecommendMinProcessed,
	})
	out := Aggregates{
		Provenance: prov,
		Versioning: versioning,
		Registry:   registry,
		Composite:  comp,
		Purger:     aggregates.NewFamilyPurger(aggregates.PurgeDeps{Base: base, Repos: set}),
	}
	for _, a := range out.all() {
		c := a.Contract()
		log.Debug("aggregate wired", "aggregate", c.Name, "reads", c.ReadPolicy, "joins_caller_tx", c.JoinsCallerTx())
	}
	return out
}

func (a Aggregates) all() []domainagg.Aggregate {
	return []domainagg.Aggregate{a.Provenance, a.Versioning, a.Registry, a.Composite, a.Purger}
}
