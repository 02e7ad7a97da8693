package aggregates

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/docprov-backend/internal/data/repos"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/documents"
	"github.com/yungbote/docprov-backend/internal/domain/provenance"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

const defaultVersionNumberRetries = 5

type VersioningDeps struct {
	Base BaseDeps

	Documents      repos.DocumentRepo
	Changelog      repos.ChangelogRepo
	Temporal       repos.TemporalMetadataRepo
	Experiments    repos.ExperimentRepo
	ExperimentDocs repos.ExperimentDocumentRepo
	Provenance     domainagg.ProvenanceTracker

	// MaxNumberRetries bounds re-reads of max(version_number) after a uniqueness race.
	MaxNumberRetries int
}

type versioningAggregate struct {
	deps VersioningDeps
}

func NewVersioningAggregate(deps VersioningDeps) domainagg.Versioning {
	deps.Base = deps.Base.withDefaults()
	if deps.MaxNumberRetries <= 0 {
		deps.MaxNumberRetries = defaultVersionNumberRetries
	}
	deps.Base.Log = deps.Base.Log.With("aggregate", "Versioning")
	return &versioningAggregate{deps: deps}
}

func (a *versioningAggregate) Contract() domainagg.Contract {
	return domainagg.VersioningContract
}

func (a *versioningAggregate) CreateOriginal(dbc dbctx.Context, in domainagg.CreateOriginalInput) (*types.Document, error) {
	const op = "Documents.Versioning.CreateOriginal"
	if err := validateInput(op, in); err != nil {
		return nil, err
	}
	doc := &types.Document{
		Title:            strings.TrimSpace(in.Title),
		OwnerID:          strings.TrimSpace(in.OwnerID),
		VersionNumber:    1,
		VersionType:      documents.VersionTypeOriginal,
		Content:          in.Content,
		ContentType:      in.ContentType,
		WordCount:        documents.CountWords(in.Content),
		CharacterCount:   utf8.RuneCountInString(in.Content),
		DetectedLanguage: in.DetectedLanguage,
	}
	err := executeWrite(dbc, a.deps.Base, op, func(dbc dbctx.Context) error {
		if _, err := a.deps.Documents.Create(dbc, []*types.Document{doc}); err != nil {
			return err
		}
		if in.Temporal != nil {
			if _, err := a.deps.Temporal.Create(dbc, in.Temporal.CloneFor(doc.ID)); err != nil {
				return err
			}
		}
		if a.deps.Provenance != nil {
			if _, err := a.deps.Provenance.RecordVersionCreation(dbc, domainagg.RecordVersionInput{
				NewVersion:   doc,
				ActivityType: provenance.ActivityVersionCreation,
				Agent:        domainagg.Agent{ID: doc.OwnerID},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (a *versioningAggregate) CreateIsolatedVersion(dbc dbctx.Context, in domainagg.CreateIsolatedVersionInput) (*types.Document, error) {
	const op = "Documents.Versioning.CreateIsolatedVersion"
	if err := validateInput(op, in); err != nil {
		return nil, err
	}
	root, err := a.ResolveRoot(dbc, in.DocumentID)
	if err != nil {
		return nil, err
	}
	meta := documents.ProcessingMetadata{
		ProcessingType: strings.TrimSpace(in.ProcessingType),
		Reason:         strings.TrimSpace(in.Reason),
		CreatedBy:      strings.TrimSpace(in.Actor),
		Extra:          in.Extra,
	}
	if meta.Reason == "" {
		meta.Reason = "isolated processing version for " + meta.ProcessingType
	}
	return a.createVersion(dbc, op, root, newVersionPlan{
		versionType:  documents.VersionTypeProcessed,
		meta:         meta,
		changeType:   documents.ChangeTypeProcessingVersion,
		description:  fmt.Sprintf("processed version for %s", meta.ProcessingType),
		actor:        in.Actor,
		activityType: provenance.ActivityVersionCreation,
	})
}

func (a *versioningAggregate) GetOrCreateExperimentVersion(dbc dbctx.Context, in domainagg.ExperimentVersionInput) (*types.Document, bool, error) {
	const op = "Documents.Versioning.GetOrCreateExperimentVersion"
	if err := validateInput(op, in); err != nil {
		return nil, false, err
	}
	root, err := a.ResolveRoot(dbc, in.DocumentID)
	if err != nil {
		return nil, false, err
	}
	exp, err := a.deps.Experiments.GetByID(dbc, in.ExperimentID)
	if err != nil {
		return nil, false, MapError(op, err)
	}
	if exp == nil {
		return nil, false, notFound(op, "experiment", in.ExperimentID)
	}

	existing, err := a.deps.Documents.GetExperimentVersion(dbc, root.ID, exp.ID)
	if err != nil {
		return nil, false, MapError(op, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	expID := exp.ID
	created, err := a.createVersion(dbc, op, root, newVersionPlan{
		versionType:  documents.VersionTypeExperimental,
		experimentID: &expID,
		meta: documents.ProcessingMetadata{
			Reason:       "experiment version for " + exp.Name,
			CreatedBy:    strings.TrimSpace(in.Actor),
			ExperimentID: &expID,
		},
		changeType:     documents.ChangeTypeExperimentVersion,
		description:    fmt.Sprintf("experiment version for %q", exp.Name),
		actor:          in.Actor,
		activityType:   provenance.ActivityExperimentVersion,
		copyTemporal:   true,
		linkExperiment: true,
	})
	if err == nil {
		return created, true, nil
	}
	if !violatesConstraint(err, ExperimentVersionConstraint) {
		return nil, false, err
	}
	// Lost the race for (family, experiment): the partial unique index is the authority.
	winner, ferr := a.deps.Documents.GetExperimentVersion(dbc, root.ID, exp.ID)
	if ferr != nil {
		return nil, false, MapError(op, ferr)
	}
	if winner == nil {
		return nil, false, err
	}
	a.deps.Base.Log.Debug("experiment version race recovered", "root_id", root.ID, "experiment_id", exp.ID, "document_id", winner.ID)
	return winner, false, nil
}

func (a *versioningAggregate) ResolveRoot(dbc dbctx.Context, documentID uuid.UUID) (*types.Document, error) {
	const op = "Documents.Versioning.ResolveRoot"
	if documentID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing document id", nil)
	}
	doc, err := a.deps.Documents.GetByID(dbc, documentID)
	if err != nil {
		return nil, MapError(op, err)
	}
	if doc == nil {
		return nil, notFound(op, "document", documentID)
	}
	if doc.IsRoot() {
		return doc, nil
	}
	root, err := a.deps.Documents.GetByID(dbc, *doc.SourceDocumentID)
	if err != nil {
		return nil, MapError(op, err)
	}
	if root == nil {
		return nil, notFound(op, "root document", *doc.SourceDocumentID)
	}
	if !root.IsRoot() {
		return nil, domainagg.NewErrorWithDetails(domainagg.CodeIntegrityViolation, op,
			"source document is not a root", map[string]any{"document_id": doc.ID, "source_document_id": root.ID})
	}
	return root, nil
}

func (a *versioningAggregate) LatestVersion(dbc dbctx.Context, rootID uuid.UUID) (*types.Document, error) {
	const op = "Documents.Versioning.LatestVersion"
	root, err := a.ResolveRoot(dbc, rootID)
	if err != nil {
		return nil, err
	}
	latest, err := a.deps.Documents.LatestInFamily(dbc, root.ID)
	if err != nil {
		return nil, MapError(op, err)
	}
	if latest == nil {
		return root, nil
	}
	return latest, nil
}

func (a *versioningAggregate) ListFamily(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Document, error) {
	const op = "Documents.Versioning.ListFamily"
	root, err := a.ResolveRoot(dbc, documentID)
	if err != nil {
		return nil, err
	}
	out, err := a.deps.Documents.ListFamily(dbc, root.ID)
	if err != nil {
		return nil, MapError(op, err)
	}
	return out, nil
}

func (a *versioningAggregate) VersionHistory(dbc dbctx.Context, documentID uuid.UUID) ([]*types.VersionChangelog, error) {
	const op = "Documents.Versioning.VersionHistory"
	root, err := a.ResolveRoot(dbc, documentID)
	if err != nil {
		return nil, err
	}
	ids, err := a.deps.Documents.FamilyIDs(dbc, root.ID)
	if err != nil {
		return nil, MapError(op, err)
	}
	out, err := a.deps.Changelog.ListByDocumentIDs(dbc, ids)
	if err != nil {
		return nil, MapError(op, err)
	}
	return out, nil
}

type newVersionPlan struct {
	versionType    string
	experimentID   *uuid.UUID
	meta           documents.ProcessingMetadata
	changeType     string
	description    string
	actor          string
	activityType   string
	copyTemporal   bool
	linkExperiment bool
}

// createVersion writes version + changelog (+ temporal copy, linkage, provenance) in one
// transaction, recomputing the version number when a concurrent writer took it.
func (a *versioningAggregate) createVersion(dbc dbctx.Context, op string, root *types.Document, plan newVersionPlan) (*types.Document, error) {
	actor := strings.TrimSpace(plan.actor)
	var out *types.Document
	write := func(dbc dbctx.Context, number int) error {
		doc := deriveFromRoot(root, number, plan)
		if _, err := a.deps.Documents.Create(dbc, []*types.Document{doc}); err != nil {
			return err
		}
		if _, err := a.deps.Changelog.Create(dbc, []*types.VersionChangelog{{
			DocumentID:    doc.ID,
			VersionNumber: doc.VersionNumber,
			ChangeType:    plan.changeType,
			Description:   plan.description,
			Actor:         actor,
		}}); err != nil {
			return err
		}
		if plan.copyTemporal {
			tm, err := a.deps.Temporal.GetByDocumentID(dbc, root.ID)
			if err != nil {
				return err
			}
			if tm != nil {
				if _, err := a.deps.Temporal.Create(dbc, tm.CloneFor(doc.ID)); err != nil {
					return err
				}
			}
		}
		if plan.linkExperiment && plan.experimentID != nil {
			if err := a.deps.ExperimentDocs.Link(dbc, *plan.experimentID, doc.ID); err != nil {
				return err
			}
		}
		if a.deps.Provenance != nil {
			params := map[string]any{"version_type": doc.VersionType, "version_number": doc.VersionNumber}
			if plan.meta.ProcessingType != "" {
				params["processing_type"] = plan.meta.ProcessingType
			}
			if plan.experimentID != nil {
				params["experiment_id"] = plan.experimentID.String()
			}
			if _, err := a.deps.Provenance.RecordVersionCreation(dbc, domainagg.RecordVersionInput{
				NewVersion:    doc,
				SourceVersion: root,
				ActivityType:  plan.activityType,
				Agent:         domainagg.Agent{ID: actor},
				Parameters:    params,
			}); err != nil {
				return err
			}
		}
		out = doc
		return nil
	}
	// A number conflict is really the experiment slot when a winner for (family, experiment)
	// exists; report it the way the partial unique index would so the caller re-fetches.
	var stop func(dbctx.Context, error) error
	if plan.experimentID != nil {
		stop = func(dbc dbctx.Context, cause error) error {
			winner, err := a.deps.Documents.GetExperimentVersion(dbc, root.ID, *plan.experimentID)
			if err != nil || winner == nil {
				return nil
			}
			return &domainagg.Error{
				Code:    domainagg.CodeIntegrityViolation,
				Op:      op,
				Message: "experiment already has a version in this family",
				Cause:   cause,
				Details: map[string]any{"constraint": ExperimentVersionConstraint, "document_id": winner.ID},
			}
		}
	}
	if err := withNextVersionNumber(dbc, a.deps.Base, op, a.deps.Documents, root.ID, a.deps.MaxNumberRetries, write, stop); err != nil {
		return nil, err
	}
	return out, nil
}

// withNextVersionNumber runs write with max(version_number)+1 for the family inside one
// transaction. A uniqueness conflict re-reads the max and tries again, unless stop returns
// the error the conflict really stands for.
func withNextVersionNumber(
	dbc dbctx.Context,
	base BaseDeps,
	op string,
	docs repos.DocumentRepo,
	rootID uuid.UUID,
	attempts int,
	write func(dbc dbctx.Context, number int) error,
	stop func(dbc dbctx.Context, cause error) error,
) error {
	if attempts <= 0 {
		attempts = defaultVersionNumberRetries
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := executeWrite(dbc, base, op, func(dbc dbctx.Context) error {
			maxNumber, err := docs.MaxVersionNumber(dbc, rootID)
			if err != nil {
				return err
			}
			return write(dbc, maxNumber+1)
		})
		if err == nil {
			return nil
		}
		if !domainagg.IsCode(err, domainagg.CodeConflict) {
			return err
		}
		if stop != nil {
			if settled := stop(dbc, err); settled != nil {
				return settled
			}
		}
		lastErr = err
		base.Hooks.IncRetry(op)
		base.Log.Debug("version number race; retrying", "root_id", rootID, "attempt", attempt)
	}
	return domainagg.NewError(domainagg.CodeConflict, op,
		fmt.Sprintf("could not assign a version number after %d attempts", attempts), lastErr)
}

// deriveFromRoot copies content and counts from the root; analysis results are never inherited.
func deriveFromRoot(root *types.Document, number int, plan newVersionPlan) *types.Document {
	rootID := root.ID
	meta := plan.meta
	meta.DerivedFrom = &documents.DerivedFrom{
		DocumentID:    root.ID,
		VersionType:   root.VersionType,
		VersionNumber: root.VersionNumber,
	}
	return &types.Document{
		Title:              root.Title,
		OwnerID:            root.OwnerID,
		VersionNumber:      number,
		VersionType:        plan.versionType,
		SourceDocumentID:   &rootID,
		ExperimentID:       plan.experimentID,
		Content:            root.Content,
		ContentType:        root.ContentType,
		WordCount:          root.WordCount,
		CharacterCount:     root.CharacterCount,
		DetectedLanguage:   root.DetectedLanguage,
		LanguageConfidence: root.LanguageConfidence,
		ProcessingMetadata: datatypes.NewJSONType(meta),
	}
}
