package scan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sitescan/internal/metrics"
	"sitescan/internal/models"
	"sitescan/internal/search"
)

// Store persists normalized records. Save methods assign ID and CreatedAt.
type Store interface {
	SaveTool(ctx context.Context, rec *models.ToolScan) error
	SaveMaterial(ctx context.Context, rec *models.MaterialScan) error
	SaveBuilding(ctx context.Context, rec *models.BuildingScan) error
}

// Options tune pipeline policy.
type Options struct {
	// FallbackLabel replaces the classification when the classifier call fails.
	FallbackLabel models.Classification
	// EntityConcurrency bounds entities enriched and saved at once.
	EntityConcurrency int
	// ParseRetries re-runs a single-category analyzer after a parse failure.
	ParseRetries int
}

// Deps are the collaborators a Pipeline is assembled from.
type Deps struct {
	Model     Model
	Prompts   *Prompts
	MaxTokens int
	// Lens may be nil, which disables building title resolution.
	Lens search.VisualMatcher
	// Search may be nil, which leaves every enrichment facet empty.
	Search search.Searcher
	Store  Store
	Log    *zap.Logger
}

// Pipeline classifies an image, dispatches it to the matching analyzers,
// enriches the extracted entities and persists them.
type Pipeline struct {
	classifier *Classifier
	analyzers  map[models.Category]*Analyzer
	titles     *TitleResolver
	enricher   *Enricher
	store      Store
	opts       Options
	log        *zap.Logger
	newID      func() string
}

func NewPipeline(d Deps, opts Options) *Pipeline {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	prompts := d.Prompts
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if !opts.FallbackLabel.Valid() {
		opts.FallbackLabel = models.ClassTool
	}
	if opts.EntityConcurrency < 1 {
		opts.EntityConcurrency = 1
	}
	if opts.ParseRetries < 0 {
		opts.ParseRetries = 0
	}

	return &Pipeline{
		classifier: NewClassifier(d.Model, prompts.Classify, d.MaxTokens),
		analyzers: map[models.Category]*Analyzer{
			models.CategoryTool:     NewAnalyzer(models.CategoryTool, d.Model, prompts.Tool, d.MaxTokens),
			models.CategoryMaterial: NewAnalyzer(models.CategoryMaterial, d.Model, prompts.Material, d.MaxTokens),
			models.CategoryBuilding: NewAnalyzer(models.CategoryBuilding, d.Model, prompts.Building, d.MaxTokens),
		},
		titles:   NewTitleResolver(d.Lens, d.Model, prompts, d.MaxTokens, log),
		enricher: NewEnricher(d.Search, log),
		store:    d.Store,
		opts:     opts,
		log:      log,
		newID:    uuid.NewString,
	}
}

// Result holds the saved records of one scan. Only the lists matching the
// classification are populated; the others are empty.
type Result struct {
	ScanID         string
	Classification models.Classification
	ImageURL       string
	Tools          []models.ToolScan
	Materials      []models.MaterialScan
	Buildings      []models.BuildingScan
	// FallbackUsed is set when the classifier failed and FallbackLabel was used.
	FallbackUsed bool
}

// Payload is the client response body for the result.
func (r *Result) Payload() map[string]any {
	out := map[string]any{
		"scanId":   r.ScanID,
		"imageUrl": r.ImageURL,
	}
	switch r.Classification {
	case models.ClassTool:
		out["savedTools"] = r.Tools
	case models.ClassMaterial:
		out["savedMaterials"] = r.Materials
	case models.ClassBuilding:
		out["savedBuilding"] = r.Buildings
	case models.ClassBoth:
		out["classification"] = string(models.ClassBoth)
		out["tool"] = r.Tools
		out["material"] = r.Materials
		out["building"] = r.Buildings
	}
	return out
}

// Run scans one stored image. Failures are returned as *Error.
func (p *Pipeline) Run(ctx context.Context, img *models.ImageAsset) (*Result, error) {
	if img == nil || (img.DataURI == "" && img.URL == "") {
		return nil, newError(KindBadRequest, MsgNoImage, nil)
	}
	imageRef := img.DataURI
	if imageRef == "" {
		imageRef = img.URL
	}

	res := &Result{
		ScanID:    p.newID(),
		ImageURL:  img.URL,
		Tools:     []models.ToolScan{},
		Materials: []models.MaterialScan{},
		Buildings: []models.BuildingScan{},
	}
	log := p.log.With(zap.String("scan_id", res.ScanID))
	start := time.Now()

	outcome := p.classifier.Classify(ctx, imageRef)
	res.Classification = outcome.Label
	if outcome.Unavailable() {
		res.Classification = p.opts.FallbackLabel
		res.FallbackUsed = true
		log.Warn("classifier unavailable, using fallback label",
			zap.String("fallback", string(p.opts.FallbackLabel)),
			zap.Error(outcome.Err),
		)
	}
	log = log.With(zap.String("classification", string(res.Classification)))

	var err error
	switch res.Classification {
	case models.ClassTool:
		err = p.runTool(ctx, log, imageRef, res)
	case models.ClassMaterial:
		err = p.runMaterial(ctx, log, imageRef, res)
	case models.ClassBuilding:
		err = p.runBuilding(ctx, log, imageRef, res)
	case models.ClassBoth:
		err = p.runBoth(ctx, log, imageRef, res)
	default:
		res.Classification = models.ClassNone
		err = newError(KindUnrecognized, MsgUnrecognized, nil)
	}

	outcomeLabel := "ok"
	if err != nil {
		outcomeLabel = KindOf(err).String()
	}
	metrics.ScansTotal.WithLabelValues(string(res.Classification), outcomeLabel).Inc()
	if err != nil {
		return nil, err
	}

	log.Info("scan completed",
		zap.Int("tools", len(res.Tools)),
		zap.Int("materials", len(res.Materials)),
		zap.Int("buildings", len(res.Buildings)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) runTool(ctx context.Context, log *zap.Logger, imageRef string, res *Result) error {
	ents, err := p.analyzeEntities(ctx, log, models.CategoryTool, imageRef)
	if err != nil {
		return err
	}
	tools, err := p.saveTools(ctx, res.ScanID, res.ImageURL, ents)
	if err != nil {
		return newError(KindPersistence, MsgSaveTools, err)
	}
	res.Tools = tools
	return nil
}

func (p *Pipeline) runMaterial(ctx context.Context, log *zap.Logger, imageRef string, res *Result) error {
	ents, err := p.analyzeEntities(ctx, log, models.CategoryMaterial, imageRef)
	if err != nil {
		return err
	}
	materials, err := p.saveMaterials(ctx, res.ScanID, res.ImageURL, ents)
	if err != nil {
		return newError(KindPersistence, MsgSaveMaterials, err)
	}
	res.Materials = materials
	return nil
}

func (p *Pipeline) runBuilding(ctx context.Context, log *zap.Logger, imageRef string, res *Result) error {
	var (
		ents  []map[string]any
		title string
		g     errgroup.Group
	)
	g.Go(func() error {
		var err error
		ents, err = p.analyzeEntities(ctx, log, models.CategoryBuilding, imageRef)
		return err
	})
	g.Go(func() error {
		title = p.titles.Resolve(ctx, res.ImageURL)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	buildings, err := p.saveBuildings(ctx, res.ScanID, res.ImageURL, title, ents)
	if err != nil {
		return newError(KindPersistence, MsgSaveBuilding, err)
	}
	res.Buildings = buildings
	return nil
}

// runBoth runs all three analyzers. A parse failure empties that category;
// a failed model call fails the scan. Building titles are not resolved.
func (p *Pipeline) runBoth(ctx context.Context, log *zap.Logger, imageRef string, res *Result) error {
	categories := []models.Category{models.CategoryTool, models.CategoryMaterial, models.CategoryBuilding}
	found := make([][]map[string]any, len(categories))

	var g errgroup.Group
	for i, category := range categories {
		g.Go(func() error {
			raw, err := p.analyzers[category].Analyze(ctx, imageRef)
			if err != nil {
				return newError(KindAnalysis, MsgProcessCombined, err)
			}
			ents, ok := parseEntities(category, raw.Text)
			if !ok {
				log.Warn("unparseable analyzer output, category left empty",
					zap.String("category", string(category)),
					zap.String("response", head(raw.Text, 200)),
				)
				return nil
			}
			found[i] = ents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var save errgroup.Group
	save.Go(func() (err error) {
		res.Tools, err = p.saveTools(ctx, res.ScanID, res.ImageURL, found[0])
		return err
	})
	save.Go(func() (err error) {
		res.Materials, err = p.saveMaterials(ctx, res.ScanID, res.ImageURL, found[1])
		return err
	})
	save.Go(func() (err error) {
		res.Buildings, err = p.saveBuildings(ctx, res.ScanID, res.ImageURL, "", found[2])
		return err
	})
	if err := save.Wait(); err != nil {
		return newError(KindPersistence, MsgProcessCombined, err)
	}
	return nil
}

// analyzeEntities runs one analyzer and parses its output, retrying the
// pair up to ParseRetries times when the output cannot be parsed.
func (p *Pipeline) analyzeEntities(ctx context.Context, log *zap.Logger, category models.Category, imageRef string) ([]map[string]any, error) {
	log = log.With(zap.String("category", string(category)))
	var text string
	for attempt := 0; attempt <= p.opts.ParseRetries; attempt++ {
		raw, err := p.analyzers[category].Analyze(ctx, imageRef)
		if err != nil {
			log.Error("analyzer failed", zap.Error(err))
			return nil, newError(KindAnalysis, MsgAnalysisFailed, err)
		}
		if ents, ok := parseEntities(category, raw.Text); ok {
			return ents, nil
		}
		text = raw.Text
		log.Warn("unparseable analyzer output",
			zap.Int("attempt", attempt+1),
			zap.String("response", head(text, 200)),
		)
	}
	return nil, newError(KindParse, MsgInvalidAIResponse,
		eris.Errorf("%s analyzer: no structured data in response", category))
}

func parseEntities(category models.Category, text string) ([]map[string]any, bool) {
	v, ok := ExtractJSON(text)
	if !ok {
		return nil, false
	}
	return Entities(category, v)
}

func (p *Pipeline) group() *errgroup.Group {
	g := new(errgroup.Group)
	g.SetLimit(p.opts.EntityConcurrency)
	return g
}

// The save helpers enrich and persist each entity. Every entity runs to
// completion; the first error is returned and records already saved stay.

func (p *Pipeline) saveTools(ctx context.Context, scanID, imageURL string, ents []map[string]any) ([]models.ToolScan, error) {
	out := make([]models.ToolScan, len(ents))
	g := p.group()
	for i, ent := range ents {
		g.Go(func() error {
			rec := ToolFromEntity(ent)
			rec.ScanID, rec.ImageURL = scanID, imageURL

			links := p.enricher.Enrich(ctx, ToolFacets, rec.ToolName)
			rec.TutorialURLs = links.Get(FacetTutorials)
			rec.SpecSheetURLs = links.Get(FacetSpecSheets)
			rec.CertificationCoursesURLs = links.Get(FacetCertification)
			rec.PurchaseRentalURLs = links.Get(FacetPurchaseRental)

			if err := p.store.SaveTool(ctx, &rec); err != nil {
				return eris.Wrapf(err, "save tool %q", rec.ToolName)
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) saveMaterials(ctx context.Context, scanID, imageURL string, ents []map[string]any) ([]models.MaterialScan, error) {
	out := make([]models.MaterialScan, len(ents))
	g := p.group()
	for i, ent := range ents {
		g.Go(func() error {
			rec := MaterialFromEntity(ent)
			rec.ScanID, rec.ImageURL = scanID, imageURL

			name := rec.MaterialName
			if name == "" {
				name = UnnamedMaterial
			}
			links := p.enricher.Enrich(ctx, MaterialFacets, name)
			rec.ManufacturersName = links.Get(FacetManufacturers)
			rec.VideosGuide = links.Get(FacetVideosGuide)
			rec.SpecsName = links.Get(FacetSpecs)
			rec.RelatedCourses = links.Get(FacetRelatedCourses)

			if err := p.store.SaveMaterial(ctx, &rec); err != nil {
				return eris.Wrapf(err, "save material %q", name)
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) saveBuildings(ctx context.Context, scanID, imageURL, title string, ents []map[string]any) ([]models.BuildingScan, error) {
	out := make([]models.BuildingScan, len(ents))
	g := p.group()
	for i, ent := range ents {
		g.Go(func() error {
			rec := BuildingFromEntity(ent)
			rec.ScanID, rec.ImageURL = scanID, imageURL
			rec.CleanedTitle = title

			kind := rec.BuildingType
			if kind == "" {
				kind = UnnamedBuilding
			}
			links := p.enricher.Enrich(ctx, BuildingFacets, kind)
			rec.SpecializedCourseURLs = links.Get(FacetSpecializedCourses)

			if err := p.store.SaveBuilding(ctx, &rec); err != nil {
				return eris.Wrapf(err, "save building %q", kind)
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
