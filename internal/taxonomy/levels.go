// Package taxonomy resolves manifest records against the remote taxonomy,
// one get-or-create call per rank, and registers the image under the
// resolved species.
package taxonomy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/idantify-ai/localsource-scraper/internal/manifest"
)

// Rank names one level of the classification hierarchy.
type Rank string

const (
	Domain  Rank = "domain"
	Kingdom Rank = "kingdom"
	Phylum  Rank = "phylum"
	Class   Rank = "class"
	Order   Rank = "order"
	Family  Rank = "family"
	Genus   Rank = "genus"
	Species Rank = "species"
)

// Level describes how one rank is resolved remotely. Exactly one of Name
// and Field is set: Name is a fixed value, Field names the manifest column
// the value is read from.
type Level struct {
	Rank      Rank
	Endpoint  string
	ParentKey string // payload key carrying the parent id; empty for the root
	Name      string
	Field     string
}

// DefaultLevels is the ant hierarchy used by the Specifier database.
var DefaultLevels = []Level{
	{Rank: Domain, Endpoint: "domains", Name: "eukarya"},
	{Rank: Kingdom, Endpoint: "kingdoms", ParentKey: "domainId", Name: "animalia"},
	{Rank: Phylum, Endpoint: "phyla", ParentKey: "kingdomId", Name: "arthropoda"},
	{Rank: Class, Endpoint: "classes", ParentKey: "phylumId", Name: "insecta"},
	{Rank: Order, Endpoint: "orders", ParentKey: "classId", Name: "hymenoptera"},
	{Rank: Family, Endpoint: "families", ParentKey: "orderId", Name: "formicidae"},
	{Rank: Genus, Endpoint: "genera", ParentKey: "familyId", Field: manifest.FieldGenus},
	{Rank: Species, Endpoint: "species", ParentKey: "genusId", Field: manifest.FieldSpecies},
}

// NameFor returns the canonical node name for rec at this level.
// Values read from the record are lower-cased.
func (l Level) NameFor(rec manifest.Record) string {
	if l.Field == "" {
		return l.Name
	}
	var v string
	switch l.Field {
	case manifest.FieldGenus:
		v = rec.Genus
	case manifest.FieldSpecies:
		v = rec.Species
	case manifest.FieldShotType:
		v = rec.ShotType
	case manifest.FieldFileName:
		v = rec.FileName
	}
	return strings.ToLower(strings.TrimSpace(v))
}

// ValidateLevels checks that a level table forms a single parent chain.
func ValidateLevels(levels []Level) error {
	if len(levels) == 0 {
		return errors.New("taxonomy level table is empty")
	}
	seen := make(map[Rank]bool, len(levels))
	for i, l := range levels {
		if l.Rank == "" || l.Endpoint == "" {
			return fmt.Errorf("level %d: rank and endpoint are required", i)
		}
		if seen[l.Rank] {
			return fmt.Errorf("level %d: duplicate rank %s", i, l.Rank)
		}
		seen[l.Rank] = true
		if (l.Name == "") == (l.Field == "") {
			return fmt.Errorf("level %s: exactly one of name and field must be set", l.Rank)
		}
		if i == 0 && l.ParentKey != "" {
			return fmt.Errorf("level %s: root level cannot have a parent key", l.Rank)
		}
		if i > 0 && l.ParentKey == "" {
			return fmt.Errorf("level %s: parent key is required", l.Rank)
		}
	}
	return nil
}

// Node is one resolved level.
type Node struct {
	Rank Rank
	Name string
	ID   string
}

// Resolved is the chain of nodes from the root down to species.
type Resolved []Node

// IDs returns the node ids in hierarchy order.
func (r Resolved) IDs() []string {
	ids := make([]string, len(r))
	for i, n := range r {
		ids[i] = n.ID
	}
	return ids
}

// Leaf returns the last resolved node.
func (r Resolved) Leaf() Node {
	if len(r) == 0 {
		return Node{}
	}
	return r[len(r)-1]
}

// Equal reports whether both chains hold the same ranks and ids.
func (r Resolved) Equal(other Resolved) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i].Rank != other[i].Rank || r[i].ID != other[i].ID {
			return false
		}
	}
	return true
}
