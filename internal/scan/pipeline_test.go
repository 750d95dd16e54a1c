package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitescan/internal/models"
)

const (
	testDataURI = "data:image/png;base64,iVBORw0KGgo="
	testURL     = "http://localhost:5000/uploads/tool-scan-1.png"

	toolReply = `{"found":"1","toolsDetected":[{"detailedView":{
		"toolName":"Hammer Drill","category":"Power tool","description":"Rotary drill",
		"primaryUses":["Drilling concrete","Chiseling"],"skillLevel":"Intermediate",
		"manufacturers":["Bosch","Makita"],"safetyGuidelines":"Wear eye protection"}}]}`
	materialReply = `Here you go:
[{"materialName":"Gypsum Board","materialCategory":"Interior finish",
  "materialDescription":"Panels for walls","applications":["Walls","Ceilings"],
  "handlingNotes":["Keep dry"],"environmentalImpact":["Recyclable"]}]
Hope that helps.`
	buildingReply = `[{"buildingType":"Mausoleum","description":"White marble tomb",
		"keyFeatures":"1. Dome: central","yearBuilt":"Built 1st of January 1653"},
		{"buildingType":"Mosque","description":"Red sandstone"}]`
)

type harness struct {
	model  *fakeModel
	search *fakeSearch
	lens   *fakeLens
	store  *memStore
	opts   Options
}

func newHarness() *harness {
	return &harness{
		model:  newFakeModel(),
		search: &fakeSearch{},
		lens:   &fakeLens{},
		store:  &memStore{},
		opts:   Options{FallbackLabel: models.ClassTool, EntityConcurrency: 4},
	}
}

func (h *harness) pipeline() *Pipeline {
	return NewPipeline(Deps{
		Model:     h.model,
		Prompts:   testPrompts(),
		MaxTokens: 2000,
		Lens:      h.lens,
		Search:    h.search,
		Store:     h.store,
	}, h.opts)
}

func (h *harness) run(t *testing.T) (*Result, error) {
	t.Helper()
	return h.pipeline().Run(context.Background(), &models.ImageAsset{DataURI: testDataURI, URL: testURL})
}

func requireKind(t *testing.T, err error, kind Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	var se *Error
	require.True(t, errors.As(err, &se), "want *scan.Error, got %T", err)
	assert.Equal(t, kind, se.Kind)
	assert.Equal(t, msg, se.Message)
}

func TestRunRejectsMissingImage(t *testing.T) {
	h := newHarness()
	_, err := h.pipeline().Run(context.Background(), &models.ImageAsset{})
	requireKind(t, err, KindBadRequest, MsgNoImage)
	assert.Zero(t, h.model.totalCalls())
}

func TestRunNoneStopsAfterClassification(t *testing.T) {
	h := newHarness()
	h.model.on("classify", reply{text: "none"})

	_, err := h.run(t)
	requireKind(t, err, KindUnrecognized, MsgUnrecognized)
	assert.Equal(t, 1, h.model.totalCalls())
	assert.Empty(t, h.search.seen())
	assert.Zero(t, h.lens.callCount())
	assert.Empty(t, h.store.tools)
}

func TestRunToolEnrichesAndSaves(t *testing.T) {
	h := newHarness()
	h.model.on("classify", reply{text: "Tool."}).on("tool", reply{text: toolReply})

	res, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, models.ClassTool, res.Classification)
	assert.False(t, res.FallbackUsed)
	assert.NotEmpty(t, res.ScanID)
	require.Len(t, res.Tools, 1)

	tool := res.Tools[0]
	assert.Equal(t, "Hammer Drill", tool.ToolName)
	assert.Equal(t, "Power tool", tool.Category)
	assert.Equal(t, []string{"Drilling concrete", "Chiseling"}, tool.PrimaryUses)
	assert.Equal(t, []string{"Bosch", "Makita"}, tool.Manufacturers)
	assert.Equal(t, testURL, tool.ImageURL)
	assert.Equal(t, res.ScanID, tool.ScanID)
	assert.NotZero(t, tool.ID)
	assert.Equal(t, []string{"https://example.com/?q=Hammer+Drill+Youtube+Video+Tutorial"}, tool.TutorialURLs)
	assert.Equal(t, []string{"https://example.com/?q=Hammer+Drill+specification+sheet+filetype:pdf"}, tool.SpecSheetURLs)
	assert.Len(t, tool.CertificationCoursesURLs, 1)
	assert.Len(t, tool.PurchaseRentalURLs, 1)
	assert.Len(t, h.search.seen(), len(ToolFacets))

	require.Len(t, h.store.tools, 1)
	assert.Equal(t, tool, h.store.tools[0])

	// every model call carries the inline image
	for _, ref := range h.model.imageRefs {
		assert.Equal(t, testDataURI, ref)
	}

	payload := res.Payload()
	assert.Equal(t, res.Tools, payload["savedTools"])
	assert.Equal(t, testURL, payload["imageUrl"])
	assert.NotContains(t, payload, "classification")
}

func TestRunSearchFailuresDegradeToEmptyLists(t *testing.T) {
	h := newHarness()
	h.search.err = errors.New("quota exceeded")
	h.model.on("classify", reply{text: "tool"}).on("tool", reply{text: toolReply})

	res, err := h.run(t)
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	tool := res.Tools[0]
	for _, links := range [][]string{tool.TutorialURLs, tool.SpecSheetURLs, tool.CertificationCoursesURLs, tool.PurchaseRentalURLs} {
		assert.NotNil(t, links)
		assert.Empty(t, links)
	}
	assert.Len(t, h.store.tools, 1)
}

func TestRunMaterialInProse(t *testing.T) {
	h := newHarness()
	h.model.on("classify", reply{text: "material"}).on("material", reply{text: materialReply})

	res, err := h.run(t)
	require.NoError(t, err)
	require.Len(t, res.Materials, 1)
	m := res.Materials[0]
	assert.Equal(t, "Gypsum Board", m.MaterialName)
	assert.Equal(t, []string{"Walls", "Ceilings"}, m.Applications)
	assert.Equal(t, []string{"https://example.com/?q=Gypsum+Board+manufacturers+site:.com"}, m.ManufacturersName)
	assert.Len(t, m.VideosGuide, 1)
	assert.Len(t, m.SpecsName, 1)
	assert.Len(t, m.RelatedCourses, 1)
	assert.Len(t, h.store.materials, 1)
	assert.Equal(t, res.Materials, res.Payload()["savedMaterials"])
}

func TestRunMaterialWithoutNameQueriesPlaceholder(t *testing.T) {
	h := newHarness()
	h.model.on("classify", reply{text: "material"}).on("material", reply{text: `[{"materialCategory":"Masonry"}]`})

	res, err := h.run(t)
	require.NoError(t, err)
	require.Len(t, res.Materials, 1)
	assert.Empty(t, res.Materials[0].MaterialName)
	assert.Contains(t, h.search.seen(), "Unnamed Material manufacturers site:.com")
}

func TestRunBuildingResolvesTitle(t *testing.T) {
	h := newHarness()
	h.lens.title = "Stream Taj Mahal - Jorge Ben Jor | SoundCloud"
	h.model.complete = reply{text: `"Taj Mahal"`}
	h.model.on("classify", reply{text: "building"}).on("building", reply{text: buildingReply})

	res, err := h.run(t)
	require.NoError(t, err)
	require.Len(t, res.Buildings, 2)
	for _, b := range res.Buildings {
		assert.Equal(t, "Taj Mahal", b.CleanedTitle)
		assert.Len(t, b.SpecializedCourseURLs, 1)
	}
	assert.Equal(t, "Mausoleum", res.Buildings[0].BuildingType)
	assert.Equal(t, "1. Dome: central", res.Buildings[0].KeyFeatures)
	assert.Equal(t, 1, h.lens.callCount())
	require.Len(t, h.model.completes, 1)
	assert.Equal(t, "clean Stream Taj Mahal - Jorge Ben Jor | SoundCloud", h.model.completes[0])
	assert.ElementsMatch(t, []string{
		"Professional courses in Mausoleum design, construction",
		"Professional courses in Mosque design, construction",
	}, h.search.seen())
	assert.Equal(t, res.Buildings, res.Payload()["savedBuilding"])
}

func TestRunBuildingWithoutVisualMatch(t *testing.T) {
	h := newHarness()
	h.model.on("classify", reply{text: "building"}).on("building", reply{text: `[{"description":"A shed"}]`})

	res, err := h.run(t)
	require.NoError(t, err)
	require.Len(t, res.Buildings, 1)
	assert.Equal(t, "", res.Buildings[0].CleanedTitle)
	assert.Empty(t, h.model.completes)
	assert.Equal(t, []string{"Professional courses in Unnamed Building design, construction"}, h.search.seen())
}

func TestRunBothRunsAnalyzersConcurrently(t *testing.T) {
	h := newHarness()
	h.model.on("classify", reply{text: "both"}).
		on("tool", reply{text: toolReply}).
		on("material", reply{text: materialReply}).
		on("building", reply{text: buildingReply})
	delay := 150 * time.Millisecond
	h.model.delays["tool"] = delay
	h.model.delays["material"] = delay
	h.model.delays["building"] = delay

	start := time.Now()
	res, err := h.run(t)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, 3*delay, "analyzers should overlap")
	assert.Equal(t, 1, h.model.callCount("tool"))
	assert.Equal(t, 1, h.model.callCount("material"))
	assert.Equal(t, 1, h.model.callCount("building"))
	assert.Zero(t, h.lens.callCount())

	assert.Len(t, res.Tools, 1)
	assert.Len(t, res.Materials, 1)
	assert.Len(t, res.Buildings, 2)
	for _, b := range res.Buildings {
		assert.Empty(t, b.CleanedTitle)
	}

	payload := res.Payload()
	assert.Equal(t, "both", payload["classification"])
	assert.Equal(t, res.Tools, payload["tool"])
	assert.Equal(t, res.Materials, payload["material"])
	assert.Equal(t, res.Buildings, payload["building"])
	assert.Equal(t, testURL, payload["imageUrl"])
}

func TestRunBothToleratesParseFailures(t *testing.T) {
	h := newHarness()
	h.model.on("classify", reply{text: "both"}).
		on("tool", reply{text: toolReply}).
		on("material", reply{text: "I could not find any materials."}).
		on("building", reply{text: "\"just a string\""})

	res, err := h.run(t)
	require.NoError(t, err)
	assert.Len(t, res.Tools, 1)
	assert.NotNil(t, res.Materials)
	assert.Empty(t, res.Materials)
	assert.Empty(t, res.Buildings)
}

func TestRunBothFailsOnAnalyzerError(t *testing.T) {
	h := newHarness()
	h.model.on("classify", reply{text: "both"}).
		on("tool", reply{text: toolReply}).
		on("material", reply{err: errors.New("upstream 503")}).
		on("building", reply{text: buildingReply})

	_, err := h.run(t)
	requireKind(t, err, KindAnalysis, MsgProcessCombined)
	assert.ErrorIs(t, err, ErrModelCall)
}

func TestRunClassifierFailureUsesFallback(t *testing.T) {
	h := newHarness()
	h.model.on("classify", reply{err: errors.New("timeout")}).on("tool", reply{text: toolReply})

	res, err := h.run(t)
	require.NoError(t, err)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, models.ClassTool, res.Classification)
	assert.Len(t, res.Tools, 1)
}

func TestRunConfiguredFallbackLabel(t *testing.T) {
	h := newHarness()
	h.opts.FallbackLabel = models.ClassNone
	h.model.on("classify", reply{err: errors.New("timeout")})

	_, err := h.run(t)
	requireKind(t, err, KindUnrecognized, MsgUnrecognized)
	assert.Equal(t, 0, h.model.callCount("tool"))
}

func TestRunParseFailure(t *testing.T) {
	h := newHarness()
	h.model.on("classify", reply{text: "tool"}).on("tool", reply{text: "Sorry, I cannot help with that."})

	_, err := h.run(t)
	requireKind(t, err, KindParse, MsgInvalidAIResponse)
	assert.Equal(t, 1, h.model.callCount("tool"))
	assert.Empty(t, h.store.tools)
	assert.Empty(t, h.search.seen())
}

func TestRunParseRetry(t *testing.T) {
	h := newHarness()
	h.opts.ParseRetries = 1
	h.model.on("classify", reply{text: "tool"}).
		on("tool", reply{text: "no json here"}, reply{text: toolReply})

	res, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, 2, h.model.callCount("tool"))
	assert.Len(t, res.Tools, 1)
}

func TestRunAnalyzerFailures(t *testing.T) {
	for name, r := range map[string]reply{
		"call error": {err: errors.New("connection reset")},
		"empty":      {text: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			h.model.on("classify", reply{text: "material"}).on("material", r)

			_, err := h.run(t)
			requireKind(t, err, KindAnalysis, MsgAnalysisFailed)
		})
	}
}

func TestRunPersistenceFailure(t *testing.T) {
	cases := []struct {
		label    string
		category models.Category
		reply    string
		msg      string
	}{
		{"tool", models.CategoryTool, toolReply, MsgSaveTools},
		{"material", models.CategoryMaterial, materialReply, MsgSaveMaterials},
		{"building", models.CategoryBuilding, buildingReply, MsgSaveBuilding},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			h := newHarness()
			h.store.fail = map[models.Category]error{tc.category: errors.New("disk full")}
			h.model.on("classify", reply{text: tc.label}).on(tc.label, reply{text: tc.reply})

			_, err := h.run(t)
			requireKind(t, err, KindPersistence, tc.msg)
		})
	}
}

func TestRunBothPersistenceFailure(t *testing.T) {
	h := newHarness()
	h.store.fail = map[models.Category]error{models.CategoryBuilding: errors.New("disk full")}
	h.model.on("classify", reply{text: "both"}).
		on("tool", reply{text: toolReply}).
		on("material", reply{text: materialReply}).
		on("building", reply{text: buildingReply})

	_, err := h.run(t)
	requireKind(t, err, KindPersistence, MsgProcessCombined)
	// sibling categories stay committed
	assert.Len(t, h.store.tools, 1)
	assert.Len(t, h.store.materials, 1)
}
