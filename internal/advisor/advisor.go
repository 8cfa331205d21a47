package advisor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"agriguardian/internal/agent"
	"agriguardian/internal/models"
	"agriguardian/internal/rag"
)

const QueryAll = "all"

// Searcher retrieves context chunks for an instruction.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]rag.Hit, error)
}

// Recorder observes how each agent response was handled.
type Recorder interface {
	AgentOutcome(kind, outcome string)
}

type VectorResult struct {
	Content  string `json:"content"`
	Metadata string `json:"metadata"`
}

type DiseaseInfo struct {
	Disease                 string         `json:"disease"`
	QueryType               string         `json:"query_type"`
	About                   string         `json:"about"`
	Causes                  string         `json:"causes"`
	Treatment               string         `json:"treatment"`
	RecommendedCrops        string         `json:"recommended_crops"`
	WeedControl             string         `json:"weed_control"`
	InterculturalOperations string         `json:"intercultural_operations"`
	Irrigation              string         `json:"irrigation"`
	StorageTechniques       string         `json:"storage_techniques"`
	PlantingMethods         string         `json:"planting_methods"`
	SoilManagement          string         `json:"soil_management"`
	VectorResults           []VectorResult `json:"vector_results"`
}

type MarketInfo struct {
	QueryType        string         `json:"query_type"`
	CurrentPrice     string         `json:"current_price"`
	AveragePrice     string         `json:"average_price"`
	SellingAdvice    string         `json:"selling_advice"`
	MarketInsights   string         `json:"market_insights"`
	MarketDemand     string         `json:"market_demand"`
	MarketSupply     string         `json:"market_supply"`
	GovernmentPolicy string         `json:"government_policy"`
	RiskAlert        string         `json:"risk_alert"`
	VectorResults    []VectorResult `json:"vector_results"`
}

// diseaseContract is the response shape the agent is asked for.
type diseaseContract struct {
	About                   string `json:"about" validate:"required"`
	Causes                  string `json:"causes" validate:"required"`
	Treatment               string `json:"treatment" validate:"required"`
	RecommendedCrops        string `json:"recommended_crops" validate:"required"`
	WeedControl             string `json:"weed_control" validate:"required"`
	InterculturalOperations string `json:"intercultural_operations" validate:"required"`
	Irrigation              string `json:"irrigation" validate:"required"`
	StorageTechniques       string `json:"storage_techniques" validate:"required"`
	PlantingMethods         string `json:"planting_methods" validate:"required"`
	SoilManagement          string `json:"soil_management" validate:"required"`
}

func (c *diseaseContract) fields() map[string]string {
	return map[string]string{
		"about":                    c.About,
		"causes":                   c.Causes,
		"treatment":                c.Treatment,
		"recommended_crops":        c.RecommendedCrops,
		"weed_control":             c.WeedControl,
		"intercultural_operations": c.InterculturalOperations,
		"irrigation":               c.Irrigation,
		"storage_techniques":       c.StorageTechniques,
		"planting_methods":         c.PlantingMethods,
		"soil_management":          c.SoilManagement,
	}
}

type marketContract struct {
	CurrentPrice     string `json:"current_price" validate:"required"`
	AveragePrice     string `json:"average_price" validate:"required"`
	SellingAdvice    string `json:"selling_advice" validate:"required"`
	MarketInsights   string `json:"market_insights" validate:"required"`
	MarketDemand     string `json:"market_demand" validate:"required"`
	MarketSupply     string `json:"market_supply" validate:"required"`
	GovernmentPolicy string `json:"government_policy" validate:"required"`
	RiskAlert        string `json:"risk_alert" validate:"required"`
}

func (c *marketContract) fields() map[string]string {
	return map[string]string{
		"current_price":     c.CurrentPrice,
		"average_price":     c.AveragePrice,
		"selling_advice":    c.SellingAdvice,
		"market_insights":   c.MarketInsights,
		"market_demand":     c.MarketDemand,
		"market_supply":     c.MarketSupply,
		"government_policy": c.GovernmentPolicy,
		"risk_alert":        c.RiskAlert,
	}
}

type contract interface {
	fields() map[string]string
}

// field is a response key; primary fields are only kept when the query type asks for them.
type field struct {
	key     string
	primary string
}

var diseaseFields = []field{
	{"about", "about"},
	{"causes", "causes"},
	{"treatment", "treatment"},
	{"recommended_crops", ""},
	{"weed_control", ""},
	{"intercultural_operations", ""},
	{"irrigation", ""},
	{"storage_techniques", ""},
	{"planting_methods", ""},
	{"soil_management", ""},
}

var marketFields = []field{
	{"current_price", "current_price"},
	{"average_price", "average_price"},
	{"selling_advice", "selling_advice"},
	{"market_insights", ""},
	{"market_demand", ""},
	{"market_supply", ""},
	{"government_policy", ""},
	{"risk_alert", ""},
}

func diseasePlaceholders(disease string) map[string]string {
	return map[string]string{
		"about":                    fmt.Sprintf("Information about %s is currently unavailable.", disease),
		"causes":                   fmt.Sprintf("Causes of %s are currently unavailable.", disease),
		"treatment":                fmt.Sprintf("Treatment recommendations for %s are currently unavailable.", disease),
		"recommended_crops":        "Crop recommendations are currently unavailable.",
		"weed_control":             "Weed control recommendations are currently unavailable.",
		"intercultural_operations": "Intercultural operations recommendations are currently unavailable.",
		"irrigation":               "Irrigation recommendations are currently unavailable.",
		"storage_techniques":       "Storage techniques recommendations are currently unavailable.",
		"planting_methods":         "Planting methods recommendations are currently unavailable.",
		"soil_management":          "Soil management recommendations are currently unavailable.",
	}
}

var marketPlaceholders = map[string]string{
	"current_price":     "N/A",
	"average_price":     "N/A",
	"selling_advice":    "Selling Advice not available.",
	"market_insights":   "Market Insights not available.",
	"market_demand":     "Market Demand not available.",
	"market_supply":     "Market Supply not available.",
	"government_policy": "Government Policy not available.",
	"risk_alert":        "Risk Alert not available.",
}

// Advisor turns a disease name or market query into a structured record by
// retrieving context and running the tool-calling agent.
type Advisor struct {
	retriever Searcher
	agent     agent.Runner
	memory    *agent.Memory
	recorder  Recorder
	validate  *validator.Validate
	topK      int
}

type Option func(*Advisor)

func WithRecorder(r Recorder) Option {
	return func(a *Advisor) { a.recorder = r }
}

func WithTopK(k int) Option {
	return func(a *Advisor) { a.topK = k }
}

func New(retriever Searcher, runner agent.Runner, memory *agent.Memory, opts ...Option) *Advisor {
	a := &Advisor{
		retriever: retriever,
		agent:     runner,
		memory:    memory,
		validate:  validator.New(),
		topK:      10,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Disease never fails; missing information is reported through placeholder text.
func (a *Advisor) Disease(ctx context.Context, disease, queryType string, conditions map[string]float64) DiseaseInfo {
	if queryType == "" {
		queryType = QueryAll
	}
	instruction := withConditions(diseaseInstruction(disease, queryType), conditions)

	values, vectors := a.synthesize(ctx, synthesis{
		kind:         "disease",
		instruction:  instruction,
		system:       diseaseSystem,
		queryType:    queryType,
		fields:       diseaseFields,
		contract:     &diseaseContract{},
		placeholders: diseasePlaceholders(disease),
	})

	return DiseaseInfo{
		Disease:                 disease,
		QueryType:               queryType,
		About:                   values["about"],
		Causes:                  values["causes"],
		Treatment:               values["treatment"],
		RecommendedCrops:        values["recommended_crops"],
		WeedControl:             values["weed_control"],
		InterculturalOperations: values["intercultural_operations"],
		Irrigation:              values["irrigation"],
		StorageTechniques:       values["storage_techniques"],
		PlantingMethods:         values["planting_methods"],
		SoilManagement:          values["soil_management"],
		VectorResults:           vectors,
	}
}

// Market never fails; missing information is reported through placeholder text.
func (a *Advisor) Market(ctx context.Context, query, queryType string, conditions map[string]float64) MarketInfo {
	if queryType == "" {
		queryType = QueryAll
	}
	instruction := withConditions(marketInstruction(query, queryType), conditions)

	values, vectors := a.synthesize(ctx, synthesis{
		kind:        "market",
		instruction: instruction,
		system: func(retrieved string) string {
			return marketSystem(query, retrieved)
		},
		queryType:    queryType,
		fields:       marketFields,
		contract:     &marketContract{},
		placeholders: marketPlaceholders,
	})

	return MarketInfo{
		QueryType:        queryType,
		CurrentPrice:     values["current_price"],
		AveragePrice:     values["average_price"],
		SellingAdvice:    values["selling_advice"],
		MarketInsights:   values["market_insights"],
		MarketDemand:     values["market_demand"],
		MarketSupply:     values["market_supply"],
		GovernmentPolicy: values["government_policy"],
		RiskAlert:        values["risk_alert"],
		VectorResults:    vectors,
	}
}

type synthesis struct {
	kind         string
	instruction  string
	system       func(retrieved string) string
	queryType    string
	fields       []field
	contract     contract
	placeholders map[string]string
}

func (a *Advisor) synthesize(ctx context.Context, s synthesis) (map[string]string, []VectorResult) {
	hits, err := a.retriever.Search(ctx, s.instruction, a.topK)
	if err != nil {
		log.Error().Err(err).Str("kind", s.kind).Msg("Error in vector similarity search")
		hits = nil
	}
	vectors := vectorResults(hits)

	output, err := a.agent.Run(ctx, s.system(rag.BuildContext(hits)), s.instruction)
	if err != nil {
		log.Error().Err(err).Str("kind", s.kind).Msg("Error in agent execution")
		a.observe(s.kind, "agent_error")
		placeholder, _ := json.Marshal(s.placeholders)
		a.remember(ctx, s.instruction, string(placeholder))
		return s.placeholders, vectors
	}
	a.remember(ctx, s.instruction, output)

	cleaned := cleanOutput(output)
	var parsed map[string]string
	if err := decodeStrict(cleaned, s.contract, a.validate); err == nil {
		parsed = s.contract.fields()
		a.observe(s.kind, "strict")
	} else if fields, ok := decodeLoose(cleaned); ok {
		log.Debug().Err(err).Str("kind", s.kind).Msg("Agent response failed strict contract, used loose parse")
		parsed = fields
		a.observe(s.kind, "loose")
	} else {
		log.Error().Str("kind", s.kind).Str("response", output).Msg("Error parsing JSON from response")
		a.observe(s.kind, "unparsed")
	}

	return gate(s.fields, parsed, s.queryType), vectors
}

// gate keeps auxiliary fields always and primary fields only when requested.
func gate(fields []field, parsed map[string]string, queryType string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.key] = models.NotAvailable
		v, ok := parsed[f.key]
		if !ok {
			continue
		}
		if f.primary != "" && queryType != QueryAll && queryType != f.primary {
			continue
		}
		out[f.key] = v
	}
	return out
}

func vectorResults(hits []rag.Hit) []VectorResult {
	out := make([]VectorResult, 0, 2)
	for _, hit := range hits[:min(2, len(hits))] {
		meta, err := json.MarshalIndent(hit.Metadata, "", "  ")
		if err != nil {
			meta = []byte("{}")
		}
		out = append(out, VectorResult{Content: rag.StripMarkup(hit.Content), Metadata: string(meta)})
	}
	return out
}

func (a *Advisor) remember(ctx context.Context, input, output string) {
	if a.memory == nil {
		return
	}
	if err := a.memory.Save(ctx, input, output); err != nil {
		log.Warn().Err(err).Msg("Failed to save conversation memory")
	}
}

func (a *Advisor) observe(kind, outcome string) {
	if a.recorder != nil {
		a.recorder.AgentOutcome(kind, outcome)
	}
}
