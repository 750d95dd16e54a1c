package scan

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sitescan/internal/search"
)

// Facet is one enrichment query. Template contains {name}.
type Facet struct {
	Label    string
	Template string
}

// Query renders the facet for an entity name.
func (f Facet) Query(name string) string {
	return strings.ReplaceAll(f.Template, "{name}", name)
}

// Facet labels.
const (
	FacetTutorials          = "tutorials"
	FacetSpecSheets         = "specSheets"
	FacetCertification      = "certificationCourses"
	FacetPurchaseRental     = "purchaseRental"
	FacetManufacturers      = "manufacturers"
	FacetVideosGuide        = "videosGuide"
	FacetSpecs              = "specs"
	FacetRelatedCourses     = "relatedCourses"
	FacetSpecializedCourses = "specializedCourses"
)

var (
	ToolFacets = []Facet{
		{FacetTutorials, "{name} Youtube Video Tutorial"},
		{FacetSpecSheets, "{name} specification sheet filetype:pdf"},
		{FacetCertification, "{name} Courses to get certified in tool usage with detailed description"},
		{FacetPurchaseRental, "{name} (Amazon / Home Depot / Manufacturer links)"},
	}
	MaterialFacets = []Facet{
		{FacetManufacturers, "{name} manufacturers site:.com"},
		{FacetVideosGuide, "{name} installation step by step site:youtube.com"},
		{FacetSpecs, "{name} ASTM specifications fire ratings R-values chemical resistance site:.org OR site:.gov OR site:.edu OR site:.com"},
		{FacetRelatedCourses, "{name} training material behavior installation performance site:.edu OR site:.org OR site:.com"},
	}
	BuildingFacets = []Facet{
		{FacetSpecializedCourses, "Professional courses in {name} design, construction"},
	}
)

// Enrichment maps facet label to result URLs. Every requested facet is
// present and never nil.
type Enrichment map[string][]string

// Get returns the links for label, or an empty list.
func (e Enrichment) Get(label string) []string {
	if links, ok := e[label]; ok && links != nil {
		return links
	}
	return []string{}
}

// Enricher runs facet queries for an entity concurrently.
type Enricher struct {
	search search.Searcher
	log    *zap.Logger
}

// NewEnricher accepts a nil searcher, in which case every facet is empty.
func NewEnricher(s search.Searcher, log *zap.Logger) *Enricher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Enricher{search: s, log: log}
}

// Enrich waits for every query. A failed query yields an empty list.
func (e *Enricher) Enrich(ctx context.Context, facets []Facet, name string) Enrichment {
	results := make([][]string, len(facets))
	if e.search != nil {
		var g errgroup.Group
		for i, f := range facets {
			g.Go(func() error {
				query := f.Query(name)
				links, err := e.search.Links(ctx, query)
				if err != nil {
					e.log.Warn("enrichment query failed",
						zap.String("facet", f.Label),
						zap.String("query", query),
						zap.Error(err),
					)
					return nil
				}
				results[i] = links
				return nil
			})
		}
		_ = g.Wait()
	}

	out := make(Enrichment, len(facets))
	for i, f := range facets {
		links := results[i]
		if links == nil {
			links = []string{}
		}
		out[f.Label] = links
	}
	return out
}
