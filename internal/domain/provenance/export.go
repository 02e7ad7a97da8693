package provenance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RelWasDerivedFrom    = "wasDerivedFrom"
	RelWasGeneratedBy    = "wasGeneratedBy"
	RelWasAssociatedWith = "wasAssociatedWith"
	RelWasAttributedTo   = "wasAttributedTo"
	RelUsed              = "used"
)

// Graph is the serializable PROV-O document for one family.
type Graph struct {
	Context        map[string]string `json:"@context"`
	RootDocumentID uuid.UUID         `json:"root_document_id"`
	Entities       []GraphEntity     `json:"entities"`
	Activities     []GraphActivity   `json:"activities"`
	Agents         []GraphAgent      `json:"agents"`
	Edges          []GraphEdge       `json:"edges"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

type GraphEntity struct {
	ID              string         `json:"@id"`
	Type            string         `json:"@type"`
	Kind            string         `json:"kind"`
	Label           string         `json:"label,omitempty"`
	GeneratedAtTime time.Time      `json:"generatedAtTime"`
	WasAttributedTo string         `json:"wasAttributedTo,omitempty"`
	WasDerivedFrom  string         `json:"wasDerivedFrom,omitempty"`
	WasGeneratedBy  string         `json:"wasGeneratedBy,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"`
}

type GraphActivity struct {
	ID                string           `json:"@id"`
	Type              string           `json:"@type"`
	Kind              string           `json:"kind"`
	StartedAtTime     time.Time        `json:"startedAtTime"`
	EndedAtTime       *time.Time       `json:"endedAtTime,omitempty"`
	WasAssociatedWith string           `json:"wasAssociatedWith,omitempty"`
	Used              []string         `json:"used,omitempty"`
	Metadata          ActivityMetadata `json:"metadata"`
}

type GraphAgent struct {
	ID   string `json:"@id"`
	Type string `json:"@type"`
	Kind string `json:"kind,omitempty"`
}

type GraphEdge struct {
	Relation string `json:"relation"`
	Subject  string `json:"subject"`
	Object   string `json:"object"`
}

// DefaultContext is the JSON-LD prefix map used by exports.
func DefaultContext() map[string]string {
	return map[string]string{
		"prov":    "http://www.w3.org/ns/prov#",
		"xsd":     "http://www.w3.org/2001/XMLSchema#",
		"docprov": "urn:docprov:",
	}
}

func EntityIRI(id uuid.UUID) string   { return fmt.Sprintf("docprov:entity/%s", id) }
func ActivityIRI(id uuid.UUID) string { return fmt.Sprintf("docprov:activity/%s", id) }
func AgentIRI(name string) string     { return fmt.Sprintf("docprov:agent/%s", name) }
