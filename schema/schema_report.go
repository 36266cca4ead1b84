package schema

import "time"

// Point is one projected match in the 2-D embedding.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TeamDetail is a single match belonging to an archetype.
type TeamDetail struct {
	ClusterID int                `json:"cluster_id" bson:"cluster_id"`
	Rank      int                `json:"rank" bson:"rank"`
	X         float64            `json:"x" bson:"x"`
	Y         float64            `json:"y" bson:"y"`
	Entities  map[string]float64 `json:"pokemons" bson:"pokemons"`
}

// MetaReportEntry summarizes one archetype (a non-noise cluster with a defined category signature).
type MetaReportEntry struct {
	ReportID  string  `json:"report_id" bson:"report_id"`
	ClusterID int     `json:"cluster_id" bson:"cluster_id"`
	Count     int     `json:"count" bson:"count"`
	Ratio     float64 `json:"ratio" bson:"ratio"`
	// Winrate is the share of ALL matches that are first places inside this cluster.
	Winrate    float64            `json:"winrate" bson:"winrate"`
	MeanRank   float64            `json:"mean_rank" bson:"mean_rank"`
	Categories map[string]float64 `json:"types" bson:"types"`
	Entities   map[string]float64 `json:"pokemons" bson:"pokemons"`
	// Synergies maps a representative category to the highest trigger threshold its median reaches.
	Synergies map[string]int `json:"synergies,omitempty" bson:"synergies,omitempty"`
	Teams     []TeamDetail   `json:"teams" bson:"teams"`
}

// SkippedCluster is a cluster dropped from the report because no category median exceeded the threshold.
type SkippedCluster struct {
	ClusterID int `json:"cluster_id"`
	Size      int `json:"size"`
}

// SweepResult is the clustering outcome of one (perplexity, epsilon, min-samples) combination.
type SweepResult struct {
	Perplexity  float64 `json:"perplexity"`
	Epsilon     float64 `json:"epsilon"`
	MinSamples  int     `json:"min_samples"`
	Clusters    int     `json:"clusters"`
	Reported    int     `json:"reported"`
	NoisePoints int     `json:"noise_points"`
	// NoiseRatio is the percentage of matches labeled noise, like MetaReportEntry.Ratio.
	NoiseRatio float64 `json:"noise_ratio"`
}

// MetaReport is the full outcome of one meta analysis run.
type MetaReport struct {
	ReportID     string            `json:"report_id"`
	Name         string            `json:"name"`
	GeneratedAt  time.Time         `json:"generated_at"`
	Since        time.Time         `json:"since"`
	TotalMatches int               `json:"total_matches"`
	Clusters     int               `json:"clusters"`
	NoisePoints  int               `json:"noise_points"`
	Entries      []MetaReportEntry `json:"entries"`
	Skipped      []SkippedCluster  `json:"skipped"`
}
