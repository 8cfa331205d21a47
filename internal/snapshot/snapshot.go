package snapshot

import (
	"errors"
	"strings"
	"sync"
	"time"

	"agriguardian/internal/advisor"
)

var ErrNoSnapshot = errors.New("no snapshot available")

// Prediction is the record shown for the latest classified image.
type Prediction struct {
	DiseasePrediction       string `json:"Disease Prediction"`
	About                   string `json:"About"`
	Causes                  string `json:"Causes"`
	TreatmentPlan           string `json:"Treatment Plan"`
	RecommendedCrops        string `json:"Recommended Crops"`
	WeedControl             string `json:"Weed Control"`
	InterculturalOperations string `json:"Intercultural Operations"`
	Irrigation              string `json:"Irrigation"`
	StorageTechniques       string `json:"Storage Techniques"`
	PlantingMethods         string `json:"Planting Methods"`
	SoilManagement          string `json:"Soil Management"`
	Model                   string `json:"model"`
	Timestamp               string `json:"timestamp"`
}

type MarketInsights struct {
	CurrentPrice     string `json:"Current Price"`
	AveragePrice     string `json:"Average Price"`
	SellingAdvice    string `json:"Selling Advice"`
	MarketInsights   string `json:"Market Insights"`
	MarketDemand     string `json:"Market Demand"`
	MarketSupply     string `json:"Market Supply"`
	GovernmentPolicy string `json:"Government Policy"`
	RiskAlert        string `json:"Risk Alert"`
	Timestamp        string `json:"timestamp"`
}

type Snapshot struct {
	Image      string     `json:"image"`
	Prediction Prediction `json:"prediction"`
	Version    uint64     `json:"-"`
}

// Timestamp formats t as UTC ISO-8601 with a Z suffix.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Store owns the latest snapshot and market record. Every Replace bumps the
// version; merges computed for an older version are dropped.
type Store struct {
	mu      sync.RWMutex
	current *Snapshot
	version uint64
	market  *MarketInsights
}

func NewStore() *Store {
	return &Store{}
}

// Replace installs a new snapshot and returns its version.
func (s *Store) Replace(image string, p Prediction) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	s.current = &Snapshot{Image: image, Prediction: p, Version: s.version}
	return s.version
}

func (s *Store) Latest() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	return *s.current, nil
}

// MergeDisease fills every info field if version is still the current snapshot.
func (s *Store) MergeDisease(version uint64, info advisor.DiseaseInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Version != version {
		return false
	}
	p := &s.current.Prediction
	p.About = info.About
	p.Causes = info.Causes
	p.TreatmentPlan = info.Treatment
	mergeRecommendations(p, info)
	return true
}

// MergeQuery applies a disease query result when it concerns the current
// snapshot's disease. Only the requested primary field is copied unless the
// query type is "all"; recommendations are always copied.
func (s *Store) MergeQuery(info advisor.DiseaseInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || !strings.EqualFold(s.current.Prediction.DiseasePrediction, info.Disease) {
		return false
	}
	p := &s.current.Prediction
	all := info.QueryType == advisor.QueryAll
	if all || info.QueryType == "about" {
		p.About = info.About
	}
	if all || info.QueryType == "causes" {
		p.Causes = info.Causes
	}
	if all || info.QueryType == "treatment" {
		p.TreatmentPlan = info.Treatment
	}
	mergeRecommendations(p, info)
	return true
}

func mergeRecommendations(p *Prediction, info advisor.DiseaseInfo) {
	p.RecommendedCrops = info.RecommendedCrops
	p.WeedControl = info.WeedControl
	p.InterculturalOperations = info.InterculturalOperations
	p.Irrigation = info.Irrigation
	p.StorageTechniques = info.StorageTechniques
	p.PlantingMethods = info.PlantingMethods
	p.SoilManagement = info.SoilManagement
}

// SetMarket replaces the market record with info stamped at now.
func (s *Store) SetMarket(info advisor.MarketInfo, now time.Time) MarketInsights {
	m := MarketInsights{
		CurrentPrice:     info.CurrentPrice,
		AveragePrice:     info.AveragePrice,
		SellingAdvice:    info.SellingAdvice,
		MarketInsights:   info.MarketInsights,
		MarketDemand:     info.MarketDemand,
		MarketSupply:     info.MarketSupply,
		GovernmentPolicy: info.GovernmentPolicy,
		RiskAlert:        info.RiskAlert,
		Timestamp:        Timestamp(now),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.market = &m
	return m
}

func (s *Store) Market() (MarketInsights, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.market == nil {
		return MarketInsights{}, false
	}
	return *s.market, true
}
